package scenario

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"hk-gateway/internal/order"
	exchange "hk-gateway/pkg/exchanges/common"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while another is in flight.
	ErrAlreadyRunning = errors.New("scenario already running")
	// ErrInvalidBook marks an order book that cannot price a step.
	ErrInvalidBook = errors.New("order book cannot price the order")
	// ErrInvalidParams marks bad run parameters.
	ErrInvalidParams = errors.New("invalid scenario parameters")
)

// Config holds the instrument and pacing settings of the camp2 scenario.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Markup     decimal.Decimal // added to the ask when sizing a BUY
	Depth      int
	Jitter     time.Duration // upper bound added to the per-step delay
	Settle     time.Duration // pause after cancelling open orders
}

// DefaultConfig mirrors the production deployment.
func DefaultConfig() Config {
	return Config{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Markup:     decimal.NewFromInt(1000),
		Depth:      5,
		Jitter:     2 * time.Second,
		Settle:     500 * time.Millisecond,
	}
}

// Params are supplied per run.
type Params struct {
	Iterations int
	Delay      time.Duration
}

// Step is the outcome of one iteration.
type Step struct {
	Iteration int             `json:"iteration"`
	Symbol    string          `json:"symbol"`
	Side      exchange.Side   `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Rejected  bool            `json:"rejected,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Response  json.RawMessage `json:"response"`
	Order     *order.Placed   `json:"-"`
}

// Report describes a run. NextSide is the state the machine is in.
type Report struct {
	ID         string        `json:"id"`
	Iterations int           `json:"iterations"`
	Completed  int           `json:"completed"`
	NextSide   exchange.Side `json:"next_side"`
	Steps      []Step        `json:"steps"`
	Running    bool          `json:"running"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// Responses returns the raw exchange response of every step, in order.
func (r *Report) Responses() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Response)
	}
	return out
}

func (r *Report) clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Steps = append([]Step(nil), r.Steps...)
	return &cp
}
