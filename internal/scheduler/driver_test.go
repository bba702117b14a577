package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
	"github.com/AdotEXE/protocol-XT-sub007/internal/state"
)

const frameDelta = 16 * time.Millisecond

func staticSource(entities ...Entity) EntitySource {
	return EntitySourceFunc(func() []Entity { return entities })
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = logging.NewTestLogger()
	return opts
}

type fakeFeed struct {
	pending []state.SnapshotUpdate
}

func (f *fakeFeed) Drain() []state.SnapshotUpdate {
	out := f.pending
	f.pending = nil
	return out
}

type reportSink struct {
	reports []FrameReport
}

func (r *reportSink) ObserveFrame(report FrameReport) {
	r.reports = append(r.reports, report)
}

func TestDriverRunsHandlersAfterCacheRefresh(t *testing.T) {
	unit := &testEntity{id: "unit", x: 10}
	driver := NewDriver(staticSource(unit), testOptions())

	var ticks []uint32
	driver.Handle(AICoordination, func(info FrameInfo) {
		record, ok := driver.CachedPosition("unit")
		require.True(t, ok)
		require.Equal(t, info.Tick, record.FrameStamp)
		ticks = append(ticks, info.Tick)
	})
	for i := 0; i < 6; i++ {
		driver.OnFrame(frameDelta, 60)
	}
	require.Equal(t, []uint32{2, 4, 6}, ticks)
	require.Equal(t, 3, unit.behavior)
	require.Equal(t, 3, unit.physics)
	require.Equal(t, uint32(6), driver.Tick())
}

func TestDriverReplacesAndClearsHandlers(t *testing.T) {
	driver := NewDriver(nil, testOptions())
	first, second := 0, 0
	driver.Handle(WorldStreaming, func(FrameInfo) { first++ })
	driver.Handle(WorldStreaming, func(FrameInfo) { second++ })
	for i := 0; i < 4; i++ {
		driver.OnFrame(frameDelta, 60)
	}
	require.Zero(t, first)
	require.Equal(t, 2, second)

	driver.Handle(WorldStreaming, nil)
	for i := 0; i < 4; i++ {
		driver.OnFrame(frameDelta, 60)
	}
	require.Equal(t, 2, second)
	require.EqualValues(t, 4, driver.Metrics().GateRuns()[WorldStreaming])
}

func TestDriverRecoversPanickingHandlers(t *testing.T) {
	driver := NewDriver(nil, testOptions())
	ran := 0
	driver.Handle(WorldStreaming, func(FrameInfo) { panic("streaming exploded") })
	driver.Handle(AICoordination, func(FrameInfo) { ran++ })

	require.NotPanics(t, func() {
		driver.OnFrame(frameDelta, 60)
		driver.OnFrame(frameDelta, 60)
	})
	require.Equal(t, 1, ran)
	require.EqualValues(t, 2, driver.Metrics().Frames())
}

func TestDriverKeepsSyncRunningUnderLoad(t *testing.T) {
	opts := testOptions()
	opts.RecomputeEvery = 1
	driver := NewDriver(nil, opts)
	syncs, pickups := 0, 0
	driver.Handle(MultiplayerSync, func(FrameInfo) { syncs++ })
	driver.Handle(PickupChecks, func(FrameInfo) { pickups++ })

	for i := 0; i < 48; i++ {
		driver.OnFrame(100*time.Millisecond, 10)
	}
	require.Equal(t, 48, syncs)
	require.Equal(t, 2, pickups)
	require.Equal(t, BandCritical, driver.Rates().Band())
	band, changes := driver.Metrics().Band()
	require.Equal(t, BandCritical, band)
	require.EqualValues(t, 1, changes)
}

func TestDriverSanitizesMissingFrameRate(t *testing.T) {
	opts := testOptions()
	opts.RecomputeEvery = 1
	driver := NewDriver(nil, opts)
	var seen []float64
	driver.Handle(MultiplayerSync, func(info FrameInfo) { seen = append(seen, info.FPS) })

	driver.OnFrame(20*time.Millisecond, 0)
	driver.OnFrame(20*time.Millisecond, -3)
	require.Len(t, seen, 2)
	for _, fps := range seen {
		require.InDelta(t, 50.0, fps, 1e-9)
	}
	require.Equal(t, BandModerate, driver.Rates().Band())
}

func TestDriverUsesLocalEntityAsReferenceAndMemoizesIt(t *testing.T) {
	unit := &testEntity{id: "unit", x: 140}
	driver := NewDriver(staticSource(unit), testOptions())
	queries := 0
	driver.TrackLocal("player", func() (float64, float64, float64, bool) {
		queries++
		return 100, 0, 1.5, true
	})

	for i := 0; i < 4; i++ {
		driver.OnFrame(frameDelta, 60)
		record, ok := driver.CachedPosition("player")
		require.True(t, ok)
		require.Equal(t, 100.0, record.X)
		require.Equal(t, 1.5, record.Yaw)
	}
	require.Equal(t, 4, queries)
	require.Equal(t, 2, unit.behavior)
}

// steppingEntity moves one unit along x per physics step.
type steppingEntity struct {
	testEntity
}

func (e *steppingEntity) StepPhysics(frame Frame) error {
	e.x++
	return e.testEntity.StepPhysics(frame)
}

func TestDriverLocalRecordReflectsThisFramesStep(t *testing.T) {
	player := &steppingEntity{testEntity: testEntity{id: "player"}}
	driver := NewDriver(staticSource(player), testOptions())
	queries := 0
	driver.TrackLocal("player", func() (float64, float64, float64, bool) {
		queries++
		return player.x, player.z, 0, true
	})

	var seen []float64
	driver.Handle(MultiplayerSync, func(FrameInfo) {
		record, ok := driver.CachedPosition("player")
		require.True(t, ok)
		require.Equal(t, player.x, record.X)
		seen = append(seen, record.X)
	})
	for i := 0; i < 4; i++ {
		driver.OnFrame(frameDelta, 60)
	}
	require.Equal(t, []float64{1, 2}, seen)
	require.Equal(t, 4, queries)

	records := driver.CachedPositions(0)
	require.Len(t, records, 1)
	require.Equal(t, 2.0, records[0].X)
}

func TestDriverListsLocalEntityOutsideSource(t *testing.T) {
	driver := NewDriver(staticSource(&testEntity{id: "unit", x: 10}), testOptions())
	driver.TrackLocal("player", func() (float64, float64, float64, bool) { return 3, 4, 0.5, true })
	driver.OnFrame(frameDelta, 60)
	driver.OnFrame(frameDelta, 60)

	records := driver.CachedPositions(0)
	require.Len(t, records, 2)
	require.Equal(t, "player", records[0].ID)
	require.Equal(t, 3.0, records[0].X)
	require.Equal(t, 0.5, records[0].Yaw)
	require.Equal(t, "unit", records[1].ID)
}

func TestDriverCachesYawAndLODState(t *testing.T) {
	track := &testPart{name: "track", visible: true}
	unit := &testEntity{id: "unit", x: 180, yaw: 0.75, parts: []Part{track}}
	driver := NewDriver(staticSource(unit), testOptions())

	for i := 0; i < 8; i++ {
		driver.OnFrame(frameDelta, 60)
	}
	record, ok := driver.CachedPosition("unit")
	require.True(t, ok)
	require.True(t, record.HasYaw)
	require.Equal(t, 0.75, record.Yaw)
	far, known := driver.IsFar("unit")
	require.True(t, known)
	require.True(t, far)
	require.False(t, track.visible)
}

func TestDriverCachedPositionsRespectStaleness(t *testing.T) {
	unit := &testEntity{id: "unit", x: 10}
	driver := NewDriver(staticSource(unit), testOptions())
	driver.OnFrame(frameDelta, 60)
	driver.OnFrame(frameDelta, 60)
	unit.dead = true
	for i := 0; i < 3; i++ {
		driver.OnFrame(frameDelta, 60)
	}

	require.Len(t, driver.CachedPositions(0), 1)
	require.Empty(t, driver.CachedPositions(2))
	driver.OnFrame(frameDelta, 60)
	require.Len(t, driver.CachedPositions(0), 1)
	driver.OnFrame(frameDelta, 60)
	require.Empty(t, driver.CachedPositions(0))
	_, ok := driver.CachedPosition("unit")
	require.False(t, ok)
}

func TestDriverPrunesRemovedEntitiesAtRecompute(t *testing.T) {
	unit := &testEntity{id: "unit", x: 10}
	entities := []Entity{unit}
	opts := testOptions()
	opts.RecomputeEvery = 4
	driver := NewDriver(EntitySourceFunc(func() []Entity { return entities }), opts)

	driver.OnFrame(frameDelta, 60)
	driver.OnFrame(frameDelta, 60)
	require.Len(t, driver.CachedPositions(100), 1)

	entities = nil
	driver.OnFrame(frameDelta, 60)
	require.Len(t, driver.CachedPositions(100), 1)
	driver.OnFrame(frameDelta, 60)
	require.Empty(t, driver.CachedPositions(100))
}

func TestDriverReconcilesAndExpiresNetworkedEntities(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var removed []string
	opts := testOptions()
	opts.Clock = func() time.Time { return now }
	opts.SceneRemoval = func(id string) { removed = append(removed, id) }
	driver := NewDriver(nil, opts)

	driver.ApplySnapshot("proj-1", physics.Vec3{X: 5}, physics.Vec3{X: 10}, now)
	driver.OnFrame(frameDelta, 60)
	record, ok := driver.CachedPosition("proj-1")
	require.True(t, ok)
	require.Equal(t, 5.0, record.X)
	require.Len(t, driver.Networked(), 1)

	now = now.Add(5 * time.Second)
	driver.OnFrame(frameDelta, 60)
	_, ok = driver.CachedPosition("proj-1")
	require.False(t, ok)
	require.Empty(t, driver.Networked())
	require.Equal(t, []string{"proj-1"}, removed)
	require.Equal(t, []string{"proj-1"}, driver.ConsumeDisposed())
	require.EqualValues(t, 1, driver.Metrics().Disposed())
}

func TestDriverDrainsFeedAndReportsFrames(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Clock = func() time.Time { return now }
	driver := NewDriver(staticSource(&testEntity{id: "unit"}), opts)
	feed := &fakeFeed{pending: []state.SnapshotUpdate{
		{EntityID: "proj-1", Position: physics.Vec3{X: 1}, ServerTime: now},
		{EntityID: "proj-2", Position: physics.Vec3{X: 2}, ServerTime: now},
	}}
	sink := &reportSink{}
	driver.SetFeed(feed)
	driver.SetObserver(sink)

	driver.OnFrame(frameDelta, 60)
	require.Len(t, driver.Networked(), 2)

	feed.pending = []state.SnapshotUpdate{{EntityID: "proj-2", Removed: true}}
	driver.OnFrame(frameDelta, 60)
	require.Len(t, driver.Networked(), 1)
	require.Equal(t, []string{"proj-2"}, driver.ConsumeDisposed())

	require.Len(t, sink.reports, 2)
	first, second := sink.reports[0], sink.reports[1]
	require.Equal(t, uint32(1), first.Tick)
	require.Equal(t, 2, first.Applied)
	require.Equal(t, 2, first.Projectiles)
	require.Len(t, first.Lanes, 2)
	require.False(t, first.Gates[MultiplayerSync])
	require.True(t, second.Gates[MultiplayerSync])
	require.Equal(t, 1, second.Lanes[0].Updated)
	require.Equal(t, [CategoryCount]uint32{2, 2, 3, 4, 2}, second.Periods)
}
