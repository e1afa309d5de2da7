package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks façade and exchange performance.
type SystemMetrics struct {
	// Latency histograms
	APILatency      *LatencyHistogram
	ExchangeLatency *LatencyHistogram

	// Counters
	apiRequests    uint64
	apiErrors      uint64
	exchangeCalls  uint64
	exchangeErrors uint64
	ordersPlaced   uint64
	ordersRejected uint64
	scenarioRuns   uint64
	scenarioFails  uint64

	mu        sync.RWMutex
	perPath   map[string]uint64
	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next Record.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:      NewLatencyHistogram(1000),
		ExchangeLatency: NewLatencyHistogram(1000),
		perPath:         make(map[string]uint64),
		startedAt:       time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// ObserveRequest records one handled façade request.
func (m *SystemMetrics) ObserveRequest(route string, status int, latency time.Duration) {
	atomic.AddUint64(&m.apiRequests, 1)
	if status >= 400 {
		atomic.AddUint64(&m.apiErrors, 1)
	}
	m.APILatency.RecordDuration(latency)

	if route == "" {
		route = "unmatched"
	}
	m.mu.Lock()
	m.perPath[route]++
	m.mu.Unlock()
}

// ObserveExchangeCall records one outbound exchange call. It satisfies
// hashkey.Observer.
func (m *SystemMetrics) ObserveExchangeCall(method, path string, latency time.Duration, err error) {
	atomic.AddUint64(&m.exchangeCalls, 1)
	if err != nil {
		atomic.AddUint64(&m.exchangeErrors, 1)
	}
	m.ExchangeLatency.RecordDuration(latency)
}

// IncrementOrders counts an order accepted by the exchange.
func (m *SystemMetrics) IncrementOrders() {
	atomic.AddUint64(&m.ordersPlaced, 1)
}

// IncrementRejections counts an order the exchange refused.
func (m *SystemMetrics) IncrementRejections() {
	atomic.AddUint64(&m.ordersRejected, 1)
}

// IncrementScenarioRuns counts a started scenario run.
func (m *SystemMetrics) IncrementScenarioRuns() {
	atomic.AddUint64(&m.scenarioRuns, 1)
}

// IncrementScenarioFailures counts a scenario run that aborted.
func (m *SystemMetrics) IncrementScenarioFailures() {
	atomic.AddUint64(&m.scenarioFails, 1)
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	APILatency       LatencyStats      `json:"api_latency"`
	ExchangeLatency  LatencyStats      `json:"exchange_latency"`
	APIRequests      uint64            `json:"api_requests"`
	APIErrors        uint64            `json:"api_errors"`
	RequestsByRoute  map[string]uint64 `json:"requests_by_route"`
	ExchangeCalls    uint64            `json:"exchange_calls"`
	ExchangeErrors   uint64            `json:"exchange_errors"`
	OrdersPlaced     uint64            `json:"orders_placed"`
	OrdersRejected   uint64            `json:"orders_rejected"`
	ScenarioRuns     uint64            `json:"scenario_runs"`
	ScenarioFailures uint64            `json:"scenario_failures"`
	GoroutineCount   int               `json:"goroutine_count"`
	HeapAlloc        uint64            `json:"heap_alloc_bytes"`
	HeapSys          uint64            `json:"heap_sys_bytes"`
	Uptime           string            `json:"uptime"`
	Timestamp        time.Time         `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	routes := make(map[string]uint64, len(m.perPath))
	for k, v := range m.perPath {
		routes[k] = v
	}
	m.mu.RUnlock()

	return MetricsSnapshot{
		APILatency:       m.APILatency.Stats(),
		ExchangeLatency:  m.ExchangeLatency.Stats(),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		RequestsByRoute:  routes,
		ExchangeCalls:    atomic.LoadUint64(&m.exchangeCalls),
		ExchangeErrors:   atomic.LoadUint64(&m.exchangeErrors),
		OrdersPlaced:     atomic.LoadUint64(&m.ordersPlaced),
		OrdersRejected:   atomic.LoadUint64(&m.ordersRejected),
		ScenarioRuns:     atomic.LoadUint64(&m.scenarioRuns),
		ScenarioFailures: atomic.LoadUint64(&m.scenarioFails),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		HeapSys:          memStats.HeapSys,
		Uptime:           time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp:        time.Now(),
	}
}
