package scenario

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hk-gateway/internal/order"
	exchange "hk-gateway/pkg/exchanges/common"
)

func TestZapTradeLogLines(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tl := NewZapTradeLog(zap.New(core))

	tl.Record("run-1", Step{
		Iteration: 0,
		Symbol:    "BTCUSDT",
		Side:      exchange.SideBuy,
		Price:     decimal.RequireFromString("30000"),
		Quantity:  decimal.RequireFromString("0.00322"),
		Response:  []byte(`{"orderId":"1"}`),
		Order:     &order.Placed{OrderID: "1"},
	})
	tl.Record("run-1", Step{
		Iteration: 1,
		Symbol:    "BTCUSDT",
		Side:      exchange.SideSell,
		Rejected:  true,
		Reason:    "quantity floors to zero",
	})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	buy := entries[0]
	if buy.Message != "BUY" || buy.Level != zapcore.InfoLevel {
		t.Fatalf("buy entry = %+v", buy.Entry)
	}
	fields := buy.ContextMap()
	if fields["price"] != "30000" || fields["quantity"] != "0.00322" || fields["run"] != "run-1" || fields["order_id"] != "1" {
		t.Fatalf("buy fields = %v", fields)
	}
	sell := entries[1]
	if _, ok := sell.ContextMap()["order_id"]; ok {
		t.Fatalf("rejected step logged an order id")
	}
	if sell.Message != "SELL rejected" || sell.Level != zapcore.WarnLevel || sell.ContextMap()["reason"] != "quantity floors to zero" {
		t.Fatalf("sell entry = %+v %v", sell.Entry, sell.ContextMap())
	}
}
