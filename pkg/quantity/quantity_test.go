package quantity

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFloorNeverExceedsBalance(t *testing.T) {
	tests := []struct {
		in     string
		places int32
		want   string
	}{
		{"0.123456", 5, "0.12345"},
		{"0.123459", 5, "0.12345"},
		{"0.00001", 5, "0.00001"},
		{"0.000009", 5, "0"},
		{"100.999", 2, "100.99"},
		{"42", 2, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			in := decimal.RequireFromString(tt.in)
			got := Floor(in, tt.places)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("Floor(%s, %d) = %s, want %s", tt.in, tt.places, got, tt.want)
			}
			if got.GreaterThan(in) {
				t.Fatalf("Floor(%s) = %s exceeds input", tt.in, got)
			}
		})
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		name     string
		num, den string
		want     string
	}{
		{"scenario buy sizing", "100", "31000", "0.00322"},
		{"exact", "1", "4", "0.25"},
		{"tiny", "0.01", "31000", "0"},
		{"zero denominator", "100", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FloorDiv(decimal.RequireFromString(tt.num), decimal.RequireFromString(tt.den), BasePlaces)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("FloorDiv(%s, %s) = %s, want %s", tt.num, tt.den, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	if v, err := Parse(""); err != nil || !v.IsZero() {
		t.Fatalf("Parse(\"\") = %s, %v; want 0, nil", v, err)
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("Parse(abc) expected error")
	}
	v, err := Parse("0.5")
	if err != nil || !v.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("Parse(0.5) = %s, %v", v, err)
	}
}
