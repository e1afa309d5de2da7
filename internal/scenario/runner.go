package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hk-gateway/internal/events"
	"hk-gateway/internal/order"
	exchange "hk-gateway/pkg/exchanges/common"
	"hk-gateway/pkg/exchanges/hashkey"
	"hk-gateway/pkg/quantity"
)

// Orders is the subset of order.Service the scenario drives.
type Orders interface {
	Depth(ctx context.Context, symbol string, limit int) (*hashkey.Depth, error)
	Account(ctx context.Context) (*hashkey.Account, error)
	BuyLimit(ctx context.Context, symbol string, price, qty decimal.Decimal) (*order.Placed, error)
	SellLimit(ctx context.Context, symbol string, price, qty decimal.Decimal) (*order.Placed, error)
	CancelAll(ctx context.Context) (*hashkey.Response, error)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner executes the alternating BUY/SELL limit-order scenario. At most one
// run is in flight per Runner.
type Runner struct {
	orders Orders
	cfg    Config
	sleep  Sleeper
	jitter func(max time.Duration) time.Duration
	trades TradeLog
	bus    *events.Bus
	log    *zap.Logger

	mu      sync.Mutex
	current *Report
	last    *Report
	cancel  context.CancelFunc
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSleeper replaces the pacing function.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// WithJitter replaces the random delay source; it must return a value in [0, max].
func WithJitter(f func(max time.Duration) time.Duration) Option {
	return func(r *Runner) { r.jitter = f }
}

// WithTradeLog sets the trade log sink.
func WithTradeLog(t TradeLog) Option {
	return func(r *Runner) { r.trades = t }
}

// WithBus publishes run progress on bus.
func WithBus(bus *events.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner builds a Runner. Zero-valued Config fields take DefaultConfig values.
func NewRunner(orders Orders, cfg Config, opts ...Option) *Runner {
	def := DefaultConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = def.BaseAsset
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = def.QuoteAsset
	}
	if cfg.Depth <= 0 {
		cfg.Depth = def.Depth
	}
	r := &Runner{
		orders: orders,
		cfg:    cfg,
		sleep:  ContextSleep,
		jitter: uniformJitter,
		trades: NopTradeLog{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

// Status returns the in-flight run, or the last finished one, or nil.
func (r *Runner) Status() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current.clone()
	}
	return r.last.clone()
}

// Cancel stops the in-flight run. It reports whether a run was cancelled.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Run executes p.Iterations steps starting in the BUY state. On failure the
// returned report holds the steps completed before the failure point.
func (r *Runner) Run(ctx context.Context, p Params) (*Report, error) {
	if p.Iterations < 0 || p.Delay < 0 {
		return nil, fmt.Errorf("%w: iteration and delay must be >= 0", ErrInvalidParams)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	rep := &Report{
		ID:         uuid.NewString(),
		Iterations: p.Iterations,
		NextSide:   exchange.SideBuy,
		Steps:      []Step{},
		Running:    true,
		StartedAt:  time.Now(),
	}
	r.current = rep
	r.cancel = cancel
	r.mu.Unlock()

	r.publish(events.EventScenarioStarted, rep.clone())
	r.log.Info("scenario started",
		zap.String("run", rep.ID),
		zap.Int("iterations", p.Iterations),
		zap.Duration("delay", p.Delay),
	)

	err := r.loop(runCtx, rep, p)

	r.mu.Lock()
	rep.Running = false
	rep.FinishedAt = time.Now()
	if err != nil {
		rep.Error = err.Error()
	}
	final := rep.clone()
	r.last = rep
	r.current = nil
	r.cancel = nil
	r.mu.Unlock()

	if err != nil {
		r.log.Error("scenario aborted",
			zap.String("run", final.ID),
			zap.Int("completed", final.Completed),
			zap.Int("steps", len(final.Steps)),
			zap.Error(err),
		)
		r.publish(events.EventScenarioFailed, final)
		return final, err
	}
	r.log.Info("scenario finished", zap.String("run", final.ID), zap.Int("steps", len(final.Steps)))
	r.publish(events.EventScenarioDone, final)
	return final, nil
}

func (r *Runner) loop(ctx context.Context, rep *Report, p Params) error {
	side := exchange.SideBuy
	for i := 0; i < p.Iterations; i++ {
		step, err := r.Step(ctx, side)
		if err != nil {
			return fmt.Errorf("iteration %d %s: %w", i, side, err)
		}
		step.Iteration = i
		r.trades.Record(rep.ID, step)

		side = side.Opposite()
		r.mu.Lock()
		rep.Steps = append(rep.Steps, step)
		rep.NextSide = side
		r.mu.Unlock()
		r.publish(events.EventScenarioStep, step)

		if err := r.sleep(ctx, p.Delay+r.jitter(r.cfg.Jitter)); err != nil {
			return err
		}
		if _, err := r.orders.CancelAll(ctx); err != nil {
			if _, rejected := hashkey.AsAPIError(err); !rejected {
				return fmt.Errorf("iteration %d cancel open orders: %w", i, err)
			}
			r.log.Warn("cancel open orders rejected", zap.String("run", rep.ID), zap.Error(err))
		}
		if err := r.sleep(ctx, r.cfg.Settle); err != nil {
			return err
		}

		r.mu.Lock()
		rep.Completed = i + 1
		r.mu.Unlock()
	}
	return nil
}

// Step prices and places one order for side using a fresh order book and
// balance snapshot. An exchange rejection of the order is reported in the
// step, not as an error.
func (r *Runner) Step(ctx context.Context, side exchange.Side) (Step, error) {
	depth, err := r.orders.Depth(ctx, r.cfg.Symbol, r.cfg.Depth)
	if err != nil {
		return Step{}, err
	}
	acct, err := r.orders.Account(ctx)
	if err != nil {
		return Step{}, err
	}

	step := Step{Symbol: r.cfg.Symbol, Side: side}
	switch side {
	case exchange.SideBuy:
		step.Price, step.Quantity, err = r.sizeBuy(depth, acct)
	case exchange.SideSell:
		step.Price, step.Quantity, err = r.sizeSell(depth, acct)
	default:
		err = fmt.Errorf("unknown side %q", side)
	}
	if err != nil {
		return Step{}, err
	}

	if !step.Quantity.IsPositive() {
		step.Rejected = true
		step.Reason = "quantity floors to zero"
		step.Response = rejection(step.Reason)
		return step, nil
	}

	var placed *order.Placed
	if side == exchange.SideBuy {
		placed, err = r.orders.BuyLimit(ctx, r.cfg.Symbol, step.Price, step.Quantity)
	} else {
		placed, err = r.orders.SellLimit(ctx, r.cfg.Symbol, step.Price, step.Quantity)
	}
	if apiErr, ok := hashkey.AsAPIError(err); ok {
		step.Rejected = true
		step.Reason = apiErr.Error()
		step.Response = apiErr.Body
		return step, nil
	}
	if err != nil {
		return Step{}, err
	}
	step.Order = placed
	step.Response = placed.Response
	return step, nil
}

// sizeBuy prices at the best ask and spends the free quote balance, floored
// to cents, at ask+markup.
func (r *Runner) sizeBuy(depth *hashkey.Depth, acct *hashkey.Account) (decimal.Decimal, decimal.Decimal, error) {
	if len(depth.Asks) == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: no asks", ErrInvalidBook)
	}
	price := depth.Asks[0].Price
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: ask price %s", ErrInvalidBook, price)
	}
	free, err := acct.Free(r.cfg.QuoteAsset)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	quote := quantity.Floor(free, quantity.QuotePlaces)
	qty := quantity.FloorDiv(quote, price.Add(r.cfg.Markup), quantity.BasePlaces)
	return price, qty, nil
}

// sizeSell prices at the deepest tracked bid and sells the whole free base balance.
func (r *Runner) sizeSell(depth *hashkey.Depth, acct *hashkey.Account) (decimal.Decimal, decimal.Decimal, error) {
	if len(depth.Bids) == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: no bids", ErrInvalidBook)
	}
	price := depth.Bids[len(depth.Bids)-1].Price
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: bid price %s", ErrInvalidBook, price)
	}
	free, err := acct.Free(r.cfg.BaseAsset)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return price, quantity.Floor(free, quantity.BasePlaces), nil
}

func (r *Runner) publish(e events.Event, payload any) {
	if r.bus != nil {
		r.bus.Publish(e, payload)
	}
}

func rejection(reason string) []byte {
	return []byte(fmt.Sprintf(`{"status":"rejected","message":%q}`, reason))
}

// IsCancelled reports whether err stems from a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
