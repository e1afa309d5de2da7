package scenario

import (
	"go.uber.org/zap"
)

// TradeLog records every step that reached (or was meant for) the exchange.
type TradeLog interface {
	Record(runID string, step Step)
}

// NopTradeLog discards entries.
type NopTradeLog struct{}

func (NopTradeLog) Record(string, Step) {}

// ZapTradeLog writes one line per step to a zap logger.
type ZapTradeLog struct {
	log *zap.Logger
}

// NewZapTradeLog wraps l, typically the append-only trade log from pkg/logging.
func NewZapTradeLog(l *zap.Logger) *ZapTradeLog {
	return &ZapTradeLog{log: l}
}

func (t *ZapTradeLog) Record(runID string, step Step) {
	fields := []zap.Field{
		zap.String("run", runID),
		zap.Int("iteration", step.Iteration),
		zap.String("symbol", step.Symbol),
		zap.String("side", string(step.Side)),
		zap.String("price", step.Price.String()),
		zap.String("quantity", step.Quantity.String()),
		zap.ByteString("response", step.Response),
	}
	if step.Order != nil && step.Order.OrderID != "" {
		fields = append(fields, zap.String("order_id", step.Order.OrderID))
	}
	if step.Rejected {
		t.log.Warn(string(step.Side)+" rejected", append(fields, zap.String("reason", step.Reason))...)
		return
	}
	t.log.Info(string(step.Side), fields...)
}
