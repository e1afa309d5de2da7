package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hk-gateway/internal/api"
	"hk-gateway/internal/events"
	"hk-gateway/internal/monitor"
	"hk-gateway/internal/order"
	"hk-gateway/internal/scenario"
	"hk-gateway/pkg/config"
	"hk-gateway/pkg/exchanges/hashkey"
	"hk-gateway/pkg/logging"
)

var buildVersion = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hk-gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tradeLogger, closeTradeLog, err := logging.NewTradeLog(cfg.TradeLogPath)
	if err != nil {
		return fmt.Errorf("trade log: %w", err)
	}
	defer func() { _ = closeTradeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	sysMetrics := monitor.NewSystemMetrics()
	mon := &monitor.Monitor{Bus: bus, Metrics: sysMetrics, Log: logger.Named("monitor")}
	monDone := mon.Start(ctx)

	client := hashkey.New(hashkey.Config{
		APIKey:     cfg.AccessKey,
		APISecret:  cfg.SecretKey,
		BaseURL:    cfg.BaseURL,
		RecvWindow: cfg.RecvWindow,
		TimeOffset: cfg.TimeOffset,
		TimeSync:   cfg.TimeSync,
		Timeout:    cfg.HTTPTimeout,
		RateRPS:    cfg.RateLimitRPS,
		RateBurst:  cfg.RateLimitBurst,
	}, hashkey.WithObserver(sysMetrics), hashkey.WithLogger(logger.Named("hashkey")))
	client.StartTimeSync(ctx)

	orders := order.NewService(client, order.Config{
		AccountID:       cfg.AccountID,
		Symbol:          cfg.Scenario.Symbol,
		BaseAsset:       cfg.Scenario.BaseAsset,
		QuoteAsset:      cfg.Scenario.QuoteAsset,
		MarketBuyAmount: cfg.Scenario.MarketBuyAmount,
		DepthLimit:      cfg.Scenario.Depth,
	}, bus, logger.Named("order"))

	runner := scenario.NewRunner(orders, scenario.Config{
		Symbol:     cfg.Scenario.Symbol,
		BaseAsset:  cfg.Scenario.BaseAsset,
		QuoteAsset: cfg.Scenario.QuoteAsset,
		Markup:     cfg.Scenario.Markup,
		Depth:      cfg.Scenario.Depth,
		Jitter:     cfg.Scenario.Jitter,
		Settle:     cfg.Scenario.Settle,
	},
		scenario.WithBus(bus),
		scenario.WithTradeLog(scenario.NewZapTradeLog(tradeLogger)),
		scenario.WithLogger(logger.Named("scenario")),
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(ctx, orders, runner, bus, sysMetrics, logger.Named("api"),
		api.SystemMeta{
			Version: buildVersion,
			BaseURL: cfg.BaseURL,
			Symbol:  cfg.Scenario.Symbol,
		},
		api.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			RequestTimeout: cfg.RequestTimeout,
			RateLimit:      rate.Limit(20),
			RateBurst:      50,
		},
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			zap.String("addr", httpServer.Addr),
			zap.String("venue", cfg.BaseURL),
			zap.Duration("time_offset", cfg.TimeOffset),
			zap.String("version", buildVersion),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// ctx is done: a running scenario stops at its next exchange call or sleep.
	runner.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	<-monDone
	return nil
}
