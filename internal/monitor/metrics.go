package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"alert-executor/internal/gateway"
)

// SystemMetrics tracks pipeline throughput and latency.
type SystemMetrics struct {
	mu sync.RWMutex

	// Latency histograms
	ExecutionLatency *LatencyHistogram
	GatewayLatency   *LatencyHistogram

	// Counters
	alertsReceived uint64
	duplicates     uint64
	executed       uint64
	failed         uint64
	ignored        uint64
	errorsCount    uint64

	gatewayStats func() gateway.PoolStats
	queueDepth   func() int
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
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
		ExecutionLatency: NewLatencyHistogram(1000),
		GatewayLatency:   NewLatencyHistogram(1000),
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

// IncrementReceived counts an alert accepted by an entry point.
func (m *SystemMetrics) IncrementReceived() {
	atomic.AddUint64(&m.alertsReceived, 1)
}

// IncrementDuplicates counts a redelivered alert that was dropped.
func (m *SystemMetrics) IncrementDuplicates() {
	atomic.AddUint64(&m.duplicates, 1)
}

// IncrementExecuted counts an alert that reached executed.
func (m *SystemMetrics) IncrementExecuted() {
	atomic.AddUint64(&m.executed, 1)
}

// IncrementFailed counts an alert that reached failed.
func (m *SystemMetrics) IncrementFailed() {
	atomic.AddUint64(&m.failed, 1)
}

// IncrementIgnored counts an alert that reached ignored.
func (m *SystemMetrics) IncrementIgnored() {
	atomic.AddUint64(&m.ignored, 1)
}

// IncrementErrors counts storage and internal errors.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// MetricsSnapshot is a point-in-time view served by the API.
type MetricsSnapshot struct {
	ExecutionLatency LatencyStats      `json:"execution_latency"`
	GatewayLatency   LatencyStats      `json:"gateway_latency"`
	AlertsReceived   uint64            `json:"alerts_received"`
	Duplicates       uint64            `json:"duplicates"`
	Executed         uint64            `json:"executed"`
	Failed           uint64            `json:"failed"`
	Ignored          uint64            `json:"ignored"`
	ErrorsCount      uint64            `json:"errors_count"`
	QueueDepth       int               `json:"queue_depth"`
	Gateways         gateway.PoolStats `json:"gateways"`
	GoroutineCount   int               `json:"goroutine_count"`
	HeapAlloc        uint64            `json:"heap_alloc_bytes"`
	Timestamp        time.Time         `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	gwStats, depth := m.gatewayStats, m.queueDepth
	m.mu.RUnlock()

	snap := MetricsSnapshot{
		ExecutionLatency: m.ExecutionLatency.Stats(),
		GatewayLatency:   m.GatewayLatency.Stats(),
		AlertsReceived:   atomic.LoadUint64(&m.alertsReceived),
		Duplicates:       atomic.LoadUint64(&m.duplicates),
		Executed:         atomic.LoadUint64(&m.executed),
		Failed:           atomic.LoadUint64(&m.failed),
		Ignored:          atomic.LoadUint64(&m.ignored),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Timestamp:        time.Now(),
	}
	if gwStats != nil {
		snap.Gateways = gwStats()
	}
	if depth != nil {
		snap.QueueDepth = depth()
	}
	return snap
}

// SetGatewayStats installs the provider read on every snapshot.
func (m *SystemMetrics) SetGatewayStats(fn func() gateway.PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayStats = fn
}

// SetQueueDepth installs the background queue depth provider.
func (m *SystemMetrics) SetQueueDepth(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = fn
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
