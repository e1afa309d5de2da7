package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hk-gateway/internal/events"
	exchange "hk-gateway/pkg/exchanges/common"
	"hk-gateway/pkg/exchanges/hashkey"
	"hk-gateway/pkg/quantity"
)

// Exchange is the subset of the HashKey client the service needs.
type Exchange interface {
	CreateOrder(ctx context.Context, req exchange.OrderRequest) (*hashkey.Response, error)
	OpenOrders(ctx context.Context) (*hashkey.Response, error)
	Account(ctx context.Context, accountID string) (*hashkey.Response, error)
	CancelAllOpenOrders(ctx context.Context) (*hashkey.Response, error)
	Depth(ctx context.Context, symbol string, limit int) (*hashkey.Response, error)
}

// Config holds the account and instrument defaults of the convenience operations.
type Config struct {
	AccountID       string
	Symbol          string
	BaseAsset       string
	QuoteAsset      string
	MarketBuyAmount decimal.Decimal
	DepthLimit      int
}

// Service maps typed requests onto single exchange calls.
type Service struct {
	ex  Exchange
	cfg Config
	bus *events.Bus
	log *zap.Logger
}

// NewService builds an order service. bus and log may be nil.
func NewService(ex Exchange, cfg Config, bus *events.Bus, log *zap.Logger) *Service {
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "BTC"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ex: ex, cfg: cfg, bus: bus, log: log}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Create validates req and places it.
func (s *Service) Create(ctx context.Context, req Request) (*Placed, error) {
	exReq, err := req.toExchange()
	if err != nil {
		return nil, err
	}
	return s.place(ctx, exReq)
}

func (s *Service) place(ctx context.Context, req exchange.OrderRequest) (*Placed, error) {
	publish(s.bus, events.EventOrderSubmitted, req)
	resp, err := s.ex.CreateOrder(ctx, req)
	if err != nil {
		s.log.Warn("order rejected",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		publish(s.bus, events.EventOrderRejected, OrderFailure{Request: req, Error: err.Error()})
		return nil, err
	}
	placed := &Placed{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      string(req.Type),
		Price:     req.Price,
		Quantity:  req.Qty,
		ClientID:  req.ClientID,
		Response:  resp.Body,
		CreatedAt: time.Now(),
	}
	var ack hashkey.OrderAck
	if err := resp.Decode(&ack); err != nil {
		s.log.Debug("order ack not decodable", zap.String("symbol", req.Symbol), zap.Error(err))
	} else {
		placed.OrderID = ack.OrderID
		placed.Status = ack.Status
		if placed.ClientID == "" {
			placed.ClientID = ack.ClientOrderID
		}
	}
	publish(s.bus, events.EventOrderAccepted, *placed)
	return placed, nil
}

// OpenOrders lists open orders.
func (s *Service) OpenOrders(ctx context.Context) (*hashkey.Response, error) {
	return s.ex.OpenOrders(ctx)
}

// Balance returns the raw balance snapshot of the configured account.
func (s *Service) Balance(ctx context.Context) (*hashkey.Response, error) {
	return s.ex.Account(ctx, s.cfg.AccountID)
}

// Account returns the decoded balance snapshot.
func (s *Service) Account(ctx context.Context) (*hashkey.Account, error) {
	resp, err := s.Balance(ctx)
	if err != nil {
		return nil, err
	}
	var acct hashkey.Account
	if err := resp.Decode(&acct); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return &acct, nil
}

// CancelAll cancels every open order regardless of symbol.
func (s *Service) CancelAll(ctx context.Context) (*hashkey.Response, error) {
	resp, err := s.ex.CancelAllOpenOrders(ctx)
	if err == nil {
		publish(s.bus, events.EventOrdersCancelled, resp.Body)
	}
	return resp, err
}

// OrderBook returns the raw order book. Empty symbol and non-positive limit use the defaults.
func (s *Service) OrderBook(ctx context.Context, symbol string, limit int) (*hashkey.Response, error) {
	if strings.TrimSpace(symbol) == "" {
		symbol = s.cfg.Symbol
	}
	symbol, ok := exchange.ParseSymbol(symbol)
	if !ok {
		return nil, invalid("symbol must contain only letters and digits")
	}
	if limit <= 0 {
		limit = s.cfg.DepthLimit
	}
	return s.ex.Depth(ctx, symbol, limit)
}

// Depth returns the decoded order book.
func (s *Service) Depth(ctx context.Context, symbol string, limit int) (*hashkey.Depth, error) {
	resp, err := s.OrderBook(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	var depth hashkey.Depth
	if err := resp.Decode(&depth); err != nil {
		return nil, fmt.Errorf("order book: %w", err)
	}
	return &depth, nil
}

// BuyMarket spends the configured quote amount at market.
func (s *Service) BuyMarket(ctx context.Context) (*Placed, error) {
	amount := quantity.Floor(s.cfg.MarketBuyAmount, quantity.QuotePlaces)
	if !amount.IsPositive() {
		return nil, invalid("market buy amount is not configured")
	}
	return s.place(ctx, exchange.OrderRequest{
		Symbol:      s.cfg.Symbol,
		Side:        exchange.SideBuy,
		Type:        exchange.OrderTypeMarket,
		Qty:         amount,
		TimeInForce: exchange.TIFIOC,
	})
}

// SellMarket sells the whole free base balance, floored to 5 decimals.
// A balance failure is returned without placing an order.
func (s *Service) SellMarket(ctx context.Context) (*Placed, error) {
	acct, err := s.Account(ctx)
	if err != nil {
		return nil, err
	}
	free, err := acct.Free(s.cfg.BaseAsset)
	if err != nil {
		return nil, err
	}
	qty := quantity.Floor(free, quantity.BasePlaces)
	if !qty.IsPositive() {
		return nil, invalid(fmt.Sprintf("no free %s balance to sell", s.cfg.BaseAsset))
	}
	return s.place(ctx, exchange.OrderRequest{
		Symbol:      s.cfg.Symbol,
		Side:        exchange.SideSell,
		Type:        exchange.OrderTypeMarket,
		Qty:         qty,
		TimeInForce: exchange.TIFIOC,
	})
}

// BuyLimit places a GTC BUY limit order.
func (s *Service) BuyLimit(ctx context.Context, symbol string, price, qty decimal.Decimal) (*Placed, error) {
	return s.limit(ctx, exchange.SideBuy, symbol, price, qty)
}

// SellLimit places a GTC SELL limit order.
func (s *Service) SellLimit(ctx context.Context, symbol string, price, qty decimal.Decimal) (*Placed, error) {
	return s.limit(ctx, exchange.SideSell, symbol, price, qty)
}

func (s *Service) limit(ctx context.Context, side exchange.Side, symbol string, price, qty decimal.Decimal) (*Placed, error) {
	if symbol == "" {
		symbol = s.cfg.Symbol
	}
	return s.Create(ctx, Request{
		Symbol:      symbol,
		Side:        string(side),
		Type:        string(exchange.OrderTypeLimit),
		Quantity:    qty,
		Price:       price,
		TimeInForce: string(exchange.TIFGTC),
	})
}
