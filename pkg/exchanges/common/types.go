package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns SELL for BUY and BUY for SELL.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the order types supported by the spot venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
)

// ParseSide normalizes user input into a Side.
func ParseSide(v string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(v))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// ParseOrderType normalizes user input into an OrderType.
func ParseOrderType(v string) (OrderType, bool) {
	switch OrderType(strings.ToUpper(strings.TrimSpace(v))) {
	case OrderTypeMarket:
		return OrderTypeMarket, true
	case OrderTypeLimit:
		return OrderTypeLimit, true
	}
	return "", false
}

// ParseTimeInForce normalizes user input; empty input means GTC.
func ParseTimeInForce(v string) (TimeInForce, bool) {
	switch TimeInForce(strings.ToUpper(strings.TrimSpace(v))) {
	case "", TIFGTC:
		return TIFGTC, true
	case TIFIOC:
		return TIFIOC, true
	}
	return "", false
}

// ParseSymbol normalizes v to an upper-case instrument name made only of
// letters and digits, e.g. BTCUSDT.
func ParseSymbol(v string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	return s, true
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         decimal.Decimal
	Price       decimal.Decimal // required for LIMIT
	TimeInForce TimeInForce
	ClientID    string // optional client order id
}
