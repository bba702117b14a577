package reconcile

import (
	"time"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
)

// Snapshot is one authoritative observation of a networked entity.
type Snapshot struct {
	Position  physics.Vec3
	Velocity  physics.Vec3
	Timestamp time.Time
}

// History is a small bounded list of snapshots ordered by non-decreasing timestamp.
type History struct {
	entries  []Snapshot
	capacity int
	window   time.Duration
}

// NewHistory constructs a history bounded by capacity entries and a time window.
func NewHistory(capacity int, window time.Duration) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &History{
		entries:  make([]Snapshot, 0, capacity+1),
		capacity: capacity,
		window:   window,
	}
}

// Add inserts the snapshot in timestamp order, then evicts entries older than the
// window relative to the newest entry and trims to capacity from the oldest end.
// Equal timestamps are kept; the later arrival sorts after the earlier one.
func (h *History) Add(s Snapshot) {
	//1.- Walk back from the tail so in-order arrivals stay O(1).
	idx := len(h.entries)
	for idx > 0 && h.entries[idx-1].Timestamp.After(s.Timestamp) {
		idx--
	}
	h.entries = append(h.entries, Snapshot{})
	copy(h.entries[idx+1:], h.entries[idx:])
	h.entries[idx] = s

	//2.- Drop entries that fell out of the time window.
	cutoff := h.entries[len(h.entries)-1].Timestamp.Add(-h.window)
	drop := 0
	for drop < len(h.entries) && h.entries[drop].Timestamp.Before(cutoff) {
		drop++
	}
	//3.- Enforce the capacity bound from the oldest end.
	if remaining := len(h.entries) - drop; remaining > h.capacity {
		drop += remaining - h.capacity
	}
	if drop > 0 {
		n := copy(h.entries, h.entries[drop:])
		h.entries = h.entries[:n]
	}
}

// Len returns the number of buffered snapshots.
func (h *History) Len() int {
	return len(h.entries)
}

// Newest returns the most recent snapshot.
func (h *History) Newest() (Snapshot, bool) {
	if len(h.entries) == 0 {
		return Snapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Entries returns a copy of the buffered snapshots, oldest first.
func (h *History) Entries() []Snapshot {
	out := make([]Snapshot, len(h.entries))
	copy(out, h.entries)
	return out
}

// Bracket finds the adjacent pair (a, b) with a.Timestamp <= at <= b.Timestamp,
// searching from the newest pair so the newest entry wins on timestamp ties.
func (h *History) Bracket(at time.Time) (Snapshot, Snapshot, bool) {
	for i := len(h.entries) - 1; i > 0; i-- {
		a := h.entries[i-1]
		b := h.entries[i]
		if !at.Before(a.Timestamp) && !at.After(b.Timestamp) {
			return a, b, true
		}
	}
	return Snapshot{}, Snapshot{}, false
}

// Sample returns the interpolated position at the given render time.
func (h *History) Sample(at time.Time) (physics.Vec3, bool) {
	a, b, ok := h.Bracket(at)
	if !ok {
		return physics.Vec3{}, false
	}
	span := b.Timestamp.Sub(a.Timestamp)
	if span <= 0 {
		return b.Position, true
	}
	fraction := float64(at.Sub(a.Timestamp)) / float64(span)
	return physics.Lerp(a.Position, b.Position, fraction), true
}

// Clear drops every snapshot while keeping the allocated storage.
func (h *History) Clear() {
	h.entries = h.entries[:0]
}
