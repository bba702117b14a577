package simulation

import (
	"math"
	"sync"
	"time"
)

// FrameMetricsSnapshot summarises observed frame durations.
type FrameMetricsSnapshot struct {
	Samples int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AverageFPS derives the frames-per-second equivalent of the sampled frame duration.
func (s FrameMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// SanitizeFPS returns a usable frame rate. Non-finite or non-positive reports are
// replaced with the rate implied by the last frame delta, falling back to zero.
func SanitizeFPS(measured float64, lastDelta time.Duration) float64 {
	if !math.IsNaN(measured) && !math.IsInf(measured, 0) && measured > 0 {
		return measured
	}
	if lastDelta > 0 {
		derived := float64(time.Second) / float64(lastDelta)
		if !math.IsInf(derived, 0) && derived > 0 {
			return derived
		}
	}
	return 0
}

// FrameMonitor accumulates timing statistics for rendered frames over a sliding window.
type FrameMonitor struct {
	mu      sync.Mutex
	window  []time.Duration
	next    int
	filled  int
	total   time.Duration
	max     time.Duration
	last    time.Duration
	samples int
}

// NewFrameMonitor constructs a monitor averaging over the most recent window frames.
func NewFrameMonitor(window int) *FrameMonitor {
	if window <= 0 {
		window = 60
	}
	return &FrameMonitor{window: make([]time.Duration, window)}
}

// Observe records the duration of a completed frame.
func (m *FrameMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	//1.- Replace the oldest sample in the ring so the average tracks recent load.
	m.total -= m.window[m.next]
	m.window[m.next] = duration
	m.total += duration
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
	m.samples++
	//2.- Track the worst-case frame so spikes stay visible.
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated frame statistics.
func (m *FrameMonitor) Snapshot() FrameMetricsSnapshot {
	if m == nil {
		return FrameMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	average := time.Duration(0)
	if m.filled > 0 {
		average = m.total / time.Duration(m.filled)
	}
	return FrameMetricsSnapshot{Samples: m.samples, Average: average, Max: m.max, Last: m.last}
}

// Reset clears the accumulated statistics.
func (m *FrameMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.next = 0
	m.filled = 0
	m.total = 0
	m.max = 0
	m.last = 0
	m.samples = 0
	m.mu.Unlock()
}
