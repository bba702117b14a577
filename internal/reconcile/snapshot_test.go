package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
)

func snapAt(base time.Time, ms int, x float64) Snapshot {
	return Snapshot{Position: physics.Vec3{X: x}, Timestamp: base.Add(time.Duration(ms) * time.Millisecond)}
}

func timestamps(h *History, base time.Time) []int64 {
	out := []int64{}
	for _, entry := range h.Entries() {
		out = append(out, entry.Timestamp.Sub(base).Milliseconds())
	}
	return out
}

func TestHistoryCapsAtCapacity(t *testing.T) {
	base := time.Unix(0, 0)
	h := NewHistory(3, 200*time.Millisecond)
	for i := 0; i < 5; i++ {
		h.Add(snapAt(base, i*10, float64(i)))
	}
	require.Equal(t, []int64{20, 30, 40}, timestamps(h, base))
}

func TestHistoryEvictsEntriesOutsideWindow(t *testing.T) {
	base := time.Unix(0, 0)
	h := NewHistory(3, 200*time.Millisecond)
	h.Add(snapAt(base, 0, 0))
	h.Add(snapAt(base, 100, 1))
	h.Add(snapAt(base, 250, 2))
	require.Equal(t, []int64{100, 250}, timestamps(h, base))

	h.Add(snapAt(base, 300, 3))
	require.Equal(t, []int64{100, 250, 300}, timestamps(h, base))
}

func TestHistoryOrdersOutOfOrderArrivals(t *testing.T) {
	base := time.Unix(0, 0)
	h := NewHistory(3, 200*time.Millisecond)
	h.Add(snapAt(base, 100, 1))
	h.Add(snapAt(base, 50, 0))
	h.Add(snapAt(base, 150, 2))
	require.Equal(t, []int64{50, 100, 150}, timestamps(h, base))

	// A late arrival older than everything is dropped by the capacity bound.
	h.Add(snapAt(base, 10, -1))
	require.Equal(t, []int64{50, 100, 150}, timestamps(h, base))
}

func TestHistoryKeepsDuplicateTimestampsAndNewestWins(t *testing.T) {
	base := time.Unix(0, 0)
	h := NewHistory(3, 200*time.Millisecond)
	h.Add(snapAt(base, 0, 0))
	h.Add(snapAt(base, 100, 5))
	h.Add(snapAt(base, 100, 7))
	require.Equal(t, 3, h.Len())

	position, ok := h.Sample(base.Add(100 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, 7.0, position.X)

	position, ok = h.Sample(base.Add(50 * time.Millisecond))
	require.True(t, ok)
	require.InDelta(t, 2.5, position.X, 1e-9)
}

func TestHistorySampleOutsideWindow(t *testing.T) {
	base := time.Unix(0, 0)
	h := NewHistory(3, 200*time.Millisecond)
	_, ok := h.Sample(base)
	require.False(t, ok)
	_, ok = h.Newest()
	require.False(t, ok)

	h.Add(snapAt(base, 0, 0))
	h.Add(snapAt(base, 100, 10))
	_, ok = h.Sample(base.Add(150 * time.Millisecond))
	require.False(t, ok)
	_, ok = h.Sample(base.Add(-time.Millisecond))
	require.False(t, ok)

	h.Clear()
	require.Zero(t, h.Len())
}
