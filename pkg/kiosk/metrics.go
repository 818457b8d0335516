package kiosk

import (
	"sync"
	"time"
)

// Metrics tracks control-loop health. The tick rate is recomputed over a
// smoothing window instead of per-tick so the dashboard number is stable.
type Metrics struct {
	mu sync.Mutex

	interval    time.Duration
	windowStart time.Time
	windowTicks int

	tps      float64
	total    uint64
	lastTick time.Time
}

// MetricsSnapshot is a point-in-time copy for status reporting.
type MetricsSnapshot struct {
	TicksPerSecond float64
	TotalTicks     uint64
	LastTickAt     time.Time
}

// NewMetrics creates a tracker with the given smoothing interval.
// Zero uses one second.
func NewMetrics(interval time.Duration) *Metrics {
	if interval <= 0 {
		interval = time.Second
	}
	return &Metrics{interval: interval}
}

// MarkTick records one completed control-loop iteration.
func (m *Metrics) MarkTick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.lastTick = now
	if m.windowStart.IsZero() {
		m.windowStart = now
	}
	m.windowTicks++

	if elapsed := now.Sub(m.windowStart); elapsed >= m.interval {
		m.tps = float64(m.windowTicks) / elapsed.Seconds()
		m.windowStart = now
		m.windowTicks = 0
	}
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		TicksPerSecond: m.tps,
		TotalTicks:     m.total,
		LastTickAt:     m.lastTick,
	}
}
