package poscache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AdotEXE/protocol-XT-sub007/internal/simulation"
)

func TestPositionsExcludeStaleRecords(t *testing.T) {
	cache := New(DefaultHorizon)
	cache.SetTick(10)
	cache.Store("fresh", 1, 2, true)
	cache.SetTick(6)
	cache.Store("edge", 3, 4, true)
	cache.SetTick(5)
	cache.Store("stale", 5, 6, false)

	cache.SetTick(10)
	got := cache.Positions(4)
	require.Len(t, got, 2)
	require.Equal(t, "edge", got[0].ID)
	require.Equal(t, "fresh", got[1].ID)
	for _, record := range got {
		require.LessOrEqual(t, simulation.Age(10, record.FrameStamp), uint32(4))
	}

	_, ok := cache.Position("stale")
	require.False(t, ok)
	record, ok := cache.Position("fresh")
	require.True(t, ok)
	require.Equal(t, 1.0, record.X)
	require.Equal(t, 2.0, record.Z)
	require.True(t, record.Alive)
}

func TestPositionsStalenessAcrossTickWrap(t *testing.T) {
	cache := New(DefaultHorizon)
	cache.SetTick(simulation.TickWrap - 1)
	cache.Store("wrapped", 0, 0, true)
	cache.SetTick(2)
	require.Len(t, cache.Positions(0), 1)
	cache.SetTick(4)
	require.Empty(t, cache.Positions(0))
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	cache := New(0)
	cache.Store("a", 1, 1, true)
	cache.StoreYaw("a", 0.5)
	records := cache.Positions(0)
	records[0].X = 99

	record, ok := cache.Position("a")
	require.True(t, ok)
	require.Equal(t, 1.0, record.X)
	require.True(t, record.HasYaw)
	require.Equal(t, 0.5, record.Yaw)

	cache.Store("a", 2, 2, true)
	record, _ = cache.Position("a")
	require.False(t, record.HasYaw)
}

func TestLocalQueryRunsOncePerFrame(t *testing.T) {
	cache := New(0)
	calls := 0
	cache.TrackLocal("player", func() (float64, float64, float64, bool) {
		calls++
		return float64(calls), 0, 1.5, true
	})

	cache.SetTick(1)
	first, ok := cache.Local()
	require.True(t, ok)
	again, _ := cache.Position("player")
	require.Equal(t, first, again)
	require.Equal(t, 1, calls)

	cache.SetTick(2)
	next, _ := cache.Local()
	require.Equal(t, 2, calls)
	require.Equal(t, 2.0, next.X)
	require.Equal(t, uint32(2), next.FrameStamp)
}

func TestLocalWithoutQuery(t *testing.T) {
	_, ok := New(0).Local()
	require.False(t, ok)
	_, ok = New(0).Previous()
	require.False(t, ok)
}

func TestLocalRecordJoinsPositions(t *testing.T) {
	cache := New(0)
	x := 3.0
	cache.TrackLocal("player", func() (float64, float64, float64, bool) { return x, 4, 0.5, true })
	cache.SetTick(1)
	cache.Store("unit", 10, 0, true)

	_, ok := cache.Previous()
	require.False(t, ok)
	_, _ = cache.Local()
	records := cache.Positions(0)
	require.Len(t, records, 2)
	require.Equal(t, "player", records[0].ID)
	require.Equal(t, 3.0, records[0].X)
	require.True(t, records[0].HasYaw)
	require.Equal(t, 0.5, records[0].Yaw)

	// Previous keeps serving the last query without rerunning it.
	cache.SetTick(2)
	x = 7
	previous, ok := cache.Previous()
	require.True(t, ok)
	require.Equal(t, 3.0, previous.X)

	cache.TrackLocal("pilot", func() (float64, float64, float64, bool) { return 0, 0, 0, true })
	_, ok = cache.Position("player")
	require.False(t, ok)
}

func TestPrune(t *testing.T) {
	cache := New(0)
	cache.SetTick(1)
	cache.Store("old", 0, 0, true)
	cache.SetTick(100)
	cache.Store("gone", 0, 0, true)
	cache.Store("kept", 0, 0, true)

	removed := cache.Prune(60, func(id string) bool { return id != "gone" })
	require.Equal(t, 2, removed)
	require.Equal(t, 1, cache.Len())
	_, ok := cache.Position("kept")
	require.True(t, ok)

	cache.Remove("kept")
	require.Zero(t, cache.Len())
}
