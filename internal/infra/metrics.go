package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ordersAccepted atomic.Uint64
	ordersRejected atomic.Uint64
	fills          atomic.Uint64
	filledQty      atomic.Uint64
	ordersFilled   atomic.Uint64
	expiries       atomic.Uint64
	conflicts      atomic.Uint64

	// Matching attempt latency (start to Filled/Expired)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeMatchers    atomic.Int32
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordAccepted records an order inserted into a book.
func (m *Metrics) RecordAccepted() {
	m.ordersAccepted.Add(1)
}

// RecordRejected records a submission refused before touching a book.
func (m *Metrics) RecordRejected() {
	m.ordersRejected.Add(1)
}

// RecordFill records one committed match of quantity units.
func (m *Metrics) RecordFill(quantity int64) {
	m.fills.Add(1)
	if quantity > 0 {
		m.filledQty.Add(uint64(quantity))
	}
}

// RecordConflict records a commit that failed its version check.
func (m *Metrics) RecordConflict() {
	m.conflicts.Add(1)
}

// RecordOrderFilled records a BUY order whose attempt ended fully filled.
func (m *Metrics) RecordOrderFilled(latency time.Duration) {
	m.ordersFilled.Add(1)
	m.recordLatency(latency)
}

// RecordExpiry records a BUY order whose attempt timed out.
func (m *Metrics) RecordExpiry(latency time.Duration) {
	m.expiries.Add(1)
	m.recordLatency(latency)
}

func (m *Metrics) recordLatency(latency time.Duration) {
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// MatcherStarted increments the running-attempt gauge.
func (m *Metrics) MatcherStarted() {
	m.activeMatchers.Add(1)
}

// MatcherStopped decrements the running-attempt gauge.
func (m *Metrics) MatcherStopped() {
	m.activeMatchers.Add(-1)
}

// IncrementConnections increments active feed connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active feed connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OrdersAccepted    uint64
	OrdersRejected    uint64
	Fills             uint64
	FilledQuantity    uint64
	OrdersFilled      uint64
	Expiries          uint64
	Conflicts         uint64
	AvgLatencyNs      int64
	ActiveMatchers    int32
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		OrdersAccepted:    m.ordersAccepted.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		Fills:             m.fills.Load(),
		FilledQuantity:    m.filledQty.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		Expiries:          m.expiries.Load(),
		Conflicts:         m.conflicts.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveMatchers:    m.activeMatchers.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ordersAccepted.Store(0)
	m.ordersRejected.Store(0)
	m.fills.Store(0)
	m.filledQty.Store(0)
	m.ordersFilled.Store(0)
	m.expiries.Store(0)
	m.conflicts.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeMatchers.Store(0)
	m.activeConnections.Store(0)
}
