package order

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	exchange "hk-gateway/pkg/exchanges/common"
)

// ErrInvalidRequest marks caller input that cannot become an order.
var ErrInvalidRequest = errors.New("invalid order request")

// Request is an order intent as received from a caller.
type Request struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Amount        decimal.Decimal // MARKET only: used when Quantity is zero
	Price         decimal.Decimal // LIMIT only
	ClientOrderID string
	TimeInForce   string
}

// Placed is an order accepted by the exchange together with its raw ack.
type Placed struct {
	Symbol    string          `json:"symbol"`
	Side      exchange.Side   `json:"side"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	ClientID  string          `json:"client_order_id,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

// toExchange validates r and converts it into an exchange order request.
func (r Request) toExchange() (exchange.OrderRequest, error) {
	if strings.TrimSpace(r.Symbol) == "" {
		return exchange.OrderRequest{}, invalid("symbol is required")
	}
	symbol, ok := exchange.ParseSymbol(r.Symbol)
	if !ok {
		return exchange.OrderRequest{}, invalid("symbol must contain only letters and digits")
	}
	side, ok := exchange.ParseSide(r.Side)
	if !ok {
		return exchange.OrderRequest{}, invalid("side must be BUY or SELL")
	}
	typ, ok := exchange.ParseOrderType(r.Type)
	if !ok {
		return exchange.OrderRequest{}, invalid("type must be LIMIT or MARKET")
	}
	tif, ok := exchange.ParseTimeInForce(r.TimeInForce)
	if !ok {
		return exchange.OrderRequest{}, invalid("timeInForce must be GTC or IOC")
	}

	qty := r.Quantity
	if typ == exchange.OrderTypeMarket && qty.IsZero() {
		qty = r.Amount
	}
	if !qty.IsPositive() {
		return exchange.OrderRequest{}, invalid("quantity must be > 0")
	}

	req := exchange.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Qty:         qty,
		TimeInForce: tif,
		ClientID:    strings.TrimSpace(r.ClientOrderID),
	}
	if typ == exchange.OrderTypeLimit {
		if !r.Price.IsPositive() {
			return exchange.OrderRequest{}, invalid("price must be > 0 for LIMIT orders")
		}
		req.Price = r.Price
	}
	return req, nil
}

func invalid(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrInvalidRequest }
