package scheduler

import "sync"

// Metrics tracks scheduler counters. Writers are the frame driver; readers may be
// diagnostics running on other goroutines.
type Metrics struct {
	mu          sync.RWMutex
	frames      uint64
	gateRuns    map[Category]int64
	laneUpdates map[string]int64
	laneFaults  map[string]int64
	lastLane    map[string]LaneOutcome
	band        Band
	bandChanges int64
	disposed    int64
}

// NewMetrics constructs an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		gateRuns:    make(map[Category]int64),
		laneUpdates: make(map[string]int64),
		laneFaults:  make(map[string]int64),
		lastLane:    make(map[string]LaneOutcome),
	}
}

// ObserveFrame counts a completed frame.
func (m *Metrics) ObserveFrame() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.frames++
	m.mu.Unlock()
}

// ObserveGate counts a category whose gate opened.
func (m *Metrics) ObserveGate(c Category) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.gateRuns[c]++
	m.mu.Unlock()
}

// ObserveLane accumulates one distributor pass.
func (m *Metrics) ObserveLane(outcome LaneOutcome) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.laneUpdates[outcome.Lane] += int64(outcome.Updated)
	m.laneFaults[outcome.Lane] += int64(outcome.Faulted)
	m.lastLane[outcome.Lane] = outcome
	m.mu.Unlock()
}

// ObserveBand records the band chosen by a rate recomputation.
func (m *Metrics) ObserveBand(band Band, changed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.band = band
	if changed {
		m.bandChanges++
	}
	m.mu.Unlock()
}

// ObserveDisposed counts networked entities removed from the scene.
func (m *Metrics) ObserveDisposed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.mu.Lock()
	m.disposed += int64(count)
	m.mu.Unlock()
}

// Frames returns the number of completed frames.
func (m *Metrics) Frames() uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frames
}

// GateRuns returns a copy of the per-category gate counters.
func (m *Metrics) GateRuns() map[Category]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Category]int64, len(m.gateRuns))
	for c, count := range m.gateRuns {
		out[c] = count
	}
	return out
}

// LaneUpdates returns a copy of the cumulative successful updates per lane.
func (m *Metrics) LaneUpdates() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyCounts(m.laneUpdates)
}

// LaneFaults returns a copy of the cumulative faults per lane.
func (m *Metrics) LaneFaults() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyCounts(m.laneFaults)
}

// LastLane returns the most recent outcome for lane.
func (m *Metrics) LastLane(lane string) (LaneOutcome, bool) {
	if m == nil {
		return LaneOutcome{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	outcome, ok := m.lastLane[lane]
	return outcome, ok
}

// Band returns the last recomputed band and how many times it changed.
func (m *Metrics) Band() (Band, int64) {
	if m == nil {
		return BandNominal, 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.band, m.bandChanges
}

// Disposed returns the cumulative number of disposed networked entities.
func (m *Metrics) Disposed() int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
