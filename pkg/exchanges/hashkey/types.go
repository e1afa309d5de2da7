package hashkey

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance represents an asset balance.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
	Total  string `json:"total,omitempty"`
}

// Account holds the balances of one account.
type Account struct {
	UserID   string    `json:"userId,omitempty"`
	Balances []Balance `json:"balances"`
}

// Free returns the free amount of asset, zero when the asset is absent.
func (a *Account) Free(asset string) (decimal.Decimal, error) {
	for _, b := range a.Balances {
		if b.Asset != asset {
			continue
		}
		if b.Free == "" {
			return decimal.Zero, nil
		}
		v, err := decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s free balance %q: %w", asset, b.Free, err)
		}
		return v, nil
	}
	return decimal.Zero, nil
}

// Level is one (price, size) order book row. The exchange sends it as a
// two-element array of decimal strings.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var row []json.Number
	if err := json.Unmarshal(b, &row); err != nil {
		return fmt.Errorf("order book level: %w", err)
	}
	if len(row) < 2 {
		return fmt.Errorf("order book level: want 2 fields, got %d", len(row))
	}
	price, err := decimal.NewFromString(row[0].String())
	if err != nil {
		return fmt.Errorf("order book price %q: %w", row[0], err)
	}
	size, err := decimal.NewFromString(row[1].String())
	if err != nil {
		return fmt.Errorf("order book size %q: %w", row[1], err)
	}
	l.Price, l.Size = price, size
	return nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{l.Price.String(), l.Size.String()})
}

// Depth is the order book snapshot returned by /quote/v1/depth.
type Depth struct {
	Time int64   `json:"t"`
	Bids []Level `json:"b"`
	Asks []Level `json:"a"`
}

// OrderAck is the subset of the order response the gateway reads.
type OrderAck struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
}
