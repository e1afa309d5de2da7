// Package quantity holds the rounding rules applied to order sizes.
package quantity

import (
	"github.com/shopspring/decimal"
)

const (
	// BasePlaces is the precision of base-asset (BTC) quantities.
	BasePlaces int32 = 5
	// QuotePlaces is the precision of quote-asset (USDT) amounts.
	QuotePlaces int32 = 2
)

// Floor truncates v toward negative infinity at the given number of decimal places.
// A floored balance never exceeds the balance it was derived from.
func Floor(v decimal.Decimal, places int32) decimal.Decimal {
	return v.RoundFloor(places)
}

// FloorDiv returns floor(num/den) at the given places without intermediate rounding.
// It returns zero when den is not positive.
func FloorDiv(num, den decimal.Decimal, places int32) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	q, r := num.QuoRem(den, places)
	// QuoRem truncates toward zero; step down for negative non-exact quotients.
	if num.Sign()*den.Sign() < 0 && !r.IsZero() {
		q = q.Sub(decimal.New(1, -places))
	}
	return q
}

// Parse reads a decimal string as returned by the exchange. Empty input is zero.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
