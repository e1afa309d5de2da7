package monitor

import (
	"context"

	"go.uber.org/zap"

	"hk-gateway/internal/events"
)

// Monitor folds bus events into metrics and raises alerts for failures.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	Log     *zap.Logger
	AlertFn func(events.Message)
}

// Start consumes events until ctx is done. The returned channel is closed once
// the consumer has unsubscribed.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if m.Bus == nil || m.Metrics == nil {
		if m.Log != nil {
			m.Log.Warn("monitor not fully configured; skipping")
		}
		close(done)
		return done
	}
	stream, unsub := m.Bus.Subscribe(64,
		events.EventOrderAccepted,
		events.EventOrderRejected,
		events.EventScenarioStarted,
		events.EventScenarioFailed,
	)
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				m.handle(msg)
			}
		}
	}()
	return done
}

func (m *Monitor) handle(msg events.Message) {
	switch msg.Event {
	case events.EventOrderAccepted:
		m.Metrics.IncrementOrders()
	case events.EventOrderRejected:
		m.Metrics.IncrementRejections()
		m.alert(msg)
	case events.EventScenarioStarted:
		m.Metrics.IncrementScenarioRuns()
	case events.EventScenarioFailed:
		m.Metrics.IncrementScenarioFailures()
		m.alert(msg)
	}
}

func (m *Monitor) alert(msg events.Message) {
	if m.Log != nil {
		m.Log.Warn("alert", zap.String("event", string(msg.Event)), zap.Time("at", msg.Time), zap.Any("payload", msg.Payload))
	}
	if m.AlertFn != nil {
		m.AlertFn(msg)
	}
}
