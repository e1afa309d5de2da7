package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"hk-gateway/pkg/config"
	"hk-gateway/pkg/exchanges/common"
	"hk-gateway/pkg/exchanges/hashkey"
	"hk-gateway/pkg/logging"
	"hk-gateway/pkg/quantity"
)

// api_check probes the HashKey endpoints the gateway relies on, using the
// gateway's own configuration:
//
//	go run ./scripts/api_check
//
// CHECK_CANCEL_ALL=true additionally cancels every open order on the account.
// No order is ever placed.

func main() {
	log, err := logging.New("info")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", zap.Error(err))
	}
	cancelAll := os.Getenv("CHECK_CANCEL_ALL") == "true"

	c := hashkey.New(hashkey.Config{
		APIKey:     cfg.AccessKey,
		APISecret:  cfg.SecretKey,
		BaseURL:    cfg.BaseURL,
		RecvWindow: cfg.RecvWindow,
		TimeOffset: cfg.TimeOffset,
		Timeout:    cfg.HTTPTimeout,
	}, hashkey.WithLogger(log.Named("hashkey")))

	log.Info("=== HashKey API check starting ===", zap.String("venue", cfg.BaseURL), zap.Bool("cancel_all", cancelAll))
	checkClock(log, c, cfg.TimeOffset)
	checkDepth(log, c, cfg.Scenario.Symbol, cfg.Scenario.Depth)
	checkAccount(log, c, cfg.AccountID, cfg.Scenario.BaseAsset, cfg.Scenario.QuoteAsset)
	checkOpenOrders(log, c, cancelAll)
	log.Info("=== HashKey API check finished ===")
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func checkClock(log *zap.Logger, c *hashkey.Client, offset time.Duration) {
	ctx, cancel := timeout()
	defer cancel()
	server, err := c.ServerTime(ctx)
	if err != nil {
		log.Error("server time", zap.Error(err))
		return
	}
	local := common.NewTimeSync(offset, nil, log).NowMillis()
	log.Info("server time",
		zap.Int64("server_ms", server),
		zap.Int64("signed_ms", local),
		zap.Duration("skew", time.Duration(local-server)*time.Millisecond),
	)
}

func checkDepth(log *zap.Logger, c *hashkey.Client, symbol string, limit int) {
	ctx, cancel := timeout()
	defer cancel()
	resp, err := c.Depth(ctx, symbol, limit)
	if err != nil {
		log.Error("depth", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	var depth hashkey.Depth
	if err := resp.Decode(&depth); err != nil {
		log.Error("depth decode", zap.Error(err))
		return
	}
	fields := []zap.Field{zap.String("symbol", symbol), zap.Int("bids", len(depth.Bids)), zap.Int("asks", len(depth.Asks))}
	if len(depth.Asks) > 0 && len(depth.Bids) > 0 {
		fields = append(fields,
			zap.String("best_ask", depth.Asks[0].Price.String()),
			zap.String("deepest_bid", depth.Bids[len(depth.Bids)-1].Price.String()),
		)
	}
	log.Info("depth", fields...)
}

func checkAccount(log *zap.Logger, c *hashkey.Client, accountID, base, quote string) {
	ctx, cancel := timeout()
	defer cancel()
	resp, err := c.Account(ctx, accountID)
	if err != nil {
		log.Error("account", zap.Error(err))
		return
	}
	var acct hashkey.Account
	if err := resp.Decode(&acct); err != nil {
		log.Error("account decode", zap.Error(err))
		return
	}
	baseFree, _ := acct.Free(base)
	quoteFree, _ := acct.Free(quote)
	log.Info("account",
		zap.Int("balances", len(acct.Balances)),
		zap.String(base, quantity.Floor(baseFree, quantity.BasePlaces).String()),
		zap.String(quote, quantity.Floor(quoteFree, quantity.QuotePlaces).String()),
	)
}

func checkOpenOrders(log *zap.Logger, c *hashkey.Client, cancelAll bool) {
	ctx, cancel := timeout()
	defer cancel()
	resp, err := c.OpenOrders(ctx)
	if err != nil {
		log.Error("open orders", zap.Error(err))
		return
	}
	var open []map[string]any
	_ = resp.Decode(&open)
	log.Info("open orders", zap.Int("count", len(open)))

	if !cancelAll {
		log.Info("skip cancel-all (CHECK_CANCEL_ALL=false)")
		return
	}
	if _, err := c.CancelAllOpenOrders(ctx); err != nil {
		log.Error("cancel all", zap.Error(err))
		return
	}
	log.Info("cancel all OK")
}
