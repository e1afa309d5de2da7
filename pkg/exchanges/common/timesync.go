package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock produces request timestamps in milliseconds.
type Clock interface {
	NowMillis() int64
}

// TimeSync stamps requests with local time shifted by a fixed offset and,
// when a server time source is set, by the measured drift to the server.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	fixed         time.Duration
	offset        int64 // milliseconds offset (server - local)
	lastSync      time.Time
	syncInterval  time.Duration
	now           func() time.Time
	log           *zap.Logger
	mu            sync.RWMutex
}

// NewTimeSync creates a clock with a fixed offset. getServerTime may be nil.
func NewTimeSync(fixed time.Duration, getServerTime func(ctx context.Context) (int64, error), log *zap.Logger) *TimeSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeSync{
		getServerTime: getServerTime,
		fixed:         fixed,
		syncInterval:  30 * time.Minute, // sync every 30 minutes
		now:           time.Now,
		log:           log,
	}
}

// Start begins periodic time synchronization. It is a no-op without a server time source.
func (ts *TimeSync) Start(ctx context.Context) {
	if ts.getServerTime == nil {
		return
	}
	if err := ts.Sync(ctx); err != nil {
		ts.log.Warn("initial time sync failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					ts.log.Warn("time sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sync synchronizes with server time.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := ts.now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := ts.now().UnixMilli()

	// Assume network latency is symmetric
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = ts.now()
	ts.mu.Unlock()

	ts.log.Info("time sync", zap.Int64("offset_ms", serverTime-localTime), zap.Int64("server", serverTime), zap.Int64("local", localTime))
	return nil
}

// NowMillis returns current time in ms adjusted by the fixed and synced offsets.
func (ts *TimeSync) NowMillis() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.now().Add(ts.fixed).UnixMilli() + ts.offset
}

// Offset returns the synced offset in milliseconds, excluding the fixed offset.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
