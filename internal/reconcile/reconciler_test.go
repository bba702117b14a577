package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestReconciler(clock *fakeClock, position, velocity physics.Vec3, opts ...Option) *Reconciler {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New("proj-1", position, velocity, DefaultTuning(), opts...)
}

func TestUpdateInterpolatesBetweenBracketingSnapshots(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{X: 100})

	r.Sync(physics.Vec3{}, physics.Vec3{X: 100}, start)
	clock.Advance(100 * time.Millisecond)
	r.Sync(physics.Vec3{X: 10}, physics.Vec3{X: 100}, start.Add(100*time.Millisecond))

	require.True(t, r.Update(16*time.Millisecond))
	require.Equal(t, ModeInterpolated, r.Mode())
	got := r.Position()
	require.InDelta(t, 5, got.X, 1e-9)
	require.Greater(t, got.X, 0.0)
	require.Less(t, got.X, 10.0)

	clock.Advance(20 * time.Millisecond)
	r.Update(20 * time.Millisecond)
	require.InDelta(t, 7, r.Position().X, 1e-9)
}

func TestLargePositionErrorSnapsImmediately(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{})

	result := r.Sync(physics.Vec3{X: 5}, physics.Vec3{}, clock.Now())
	require.True(t, result.PositionSnapped)
	require.Equal(t, physics.Vec3{X: 5}, r.Position())

	r.Update(16 * time.Millisecond)
	require.Equal(t, physics.Vec3{X: 5}, r.Position())
}

func TestSnapHoldsAgainstOlderHistory(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{})

	r.Sync(physics.Vec3{}, physics.Vec3{}, start)
	clock.Advance(100 * time.Millisecond)
	r.Update(16 * time.Millisecond)
	require.Equal(t, physics.Vec3{}, r.Position())

	result := r.Sync(physics.Vec3{X: 5}, physics.Vec3{}, clock.Now())
	require.True(t, result.PositionSnapped)
	require.Equal(t, 1, r.History().Len())

	r.Update(16 * time.Millisecond)
	require.Equal(t, physics.Vec3{X: 5}, r.Position())
	clock.Advance(16 * time.Millisecond)
	r.Update(16 * time.Millisecond)
	require.Equal(t, physics.Vec3{X: 5}, r.Position())
}

func TestSnapOfMovingEntityAdvancesFromSnappedPosition(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{X: 10})
	r.Sync(physics.Vec3{}, physics.Vec3{X: 10}, start)
	clock.Advance(100 * time.Millisecond)
	r.Update(16 * time.Millisecond)

	snapAt := clock.Now()
	require.True(t, r.Sync(physics.Vec3{X: 20}, physics.Vec3{X: 10}, snapAt).PositionSnapped)
	r.Update(16 * time.Millisecond)
	require.Equal(t, physics.Vec3{X: 20}, r.Position())

	// Once the render time passes the snapped snapshot it extrapolates forward.
	clock.Advance(100 * time.Millisecond)
	r.Update(16 * time.Millisecond)
	require.Equal(t, ModeExtrapolated, r.Mode())
	require.InDelta(t, 20.5, r.Position().X, 1e-9)
}

func TestExtrapolationIsContinuousAcrossSync(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{X: 1.5}, physics.Vec3{X: 10})
	r.Sync(physics.Vec3{X: 1.5}, physics.Vec3{X: 10}, start.Add(-time.Second))

	result := r.Sync(physics.Vec3{X: 2}, physics.Vec3{X: 10}, start)
	require.False(t, result.PositionSnapped)

	// Render time trails the newest entry by the interpolation delay, so the
	// entity is projected back along its velocity instead of jumping ahead.
	r.Update(16 * time.Millisecond)
	require.Equal(t, ModeExtrapolated, r.Mode())
	require.InDelta(t, 1.5, r.Position().X, 1e-9)

	previous := r.Position().X
	for _, step := range []time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond} {
		clock.Advance(step)
		r.Update(step)
		require.Greater(t, r.Position().X, previous)
		previous = r.Position().X
	}
	require.InDelta(t, 2.1, previous, 1e-9)
}

func TestSmallPositionErrorIsNotSnapped(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{})

	result := r.Sync(physics.Vec3{X: 2.5}, physics.Vec3{}, clock.Now())
	require.False(t, result.PositionSnapped)
	require.Equal(t, physics.Vec3{}, r.Position())
}

func TestVelocityBlendsOrSnaps(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{X: 10})

	result := r.Sync(physics.Vec3{}, physics.Vec3{X: 12}, clock.Now())
	require.False(t, result.VelocitySnapped)
	require.InDelta(t, 10.6, r.Velocity().X, 1e-9)

	// A reflection keeps the speed but reverses direction, which must snap.
	result = r.Sync(physics.Vec3{}, physics.Vec3{X: -10.6}, clock.Now())
	require.True(t, result.VelocitySnapped)
	require.Equal(t, physics.Vec3{X: -10.6}, r.Velocity())
}

func TestExtrapolatesFromNewestWhenRenderTimeIsPastHistory(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{X: 10})
	r.Sync(physics.Vec3{}, physics.Vec3{X: 10}, start)

	clock.Advance(150 * time.Millisecond)
	r.Update(16 * time.Millisecond)
	require.Equal(t, ModeExtrapolated, r.Mode())
	// Render time is 100ms after the only snapshot.
	require.InDelta(t, 1, r.Position().X, 1e-9)
}

func TestStaleSyncFallsBackToLocalPrediction(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{X: 10})
	r.Sync(physics.Vec3{}, physics.Vec3{X: 10}, start)

	clock.Advance(250 * time.Millisecond)
	r.Update(100 * time.Millisecond)
	require.Equal(t, ModePredicted, r.Mode())
	require.InDelta(t, 1, r.Position().X, 1e-9)

	clock.Advance(100 * time.Millisecond)
	r.Update(100 * time.Millisecond)
	require.InDelta(t, 2, r.Position().X, 1e-9)
}

func TestUpdateWithoutAnySyncPredicts(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{Z: 1}, physics.Vec3{Z: 2})
	clock.Advance(time.Second)
	r.Update(500 * time.Millisecond)
	require.Equal(t, ModePredicted, r.Mode())
	require.InDelta(t, 2, r.Position().Z, 1e-9)
}

func TestLifetimeDisposalHappensExactlyAtMaxLifetime(t *testing.T) {
	clock := newFakeClock()
	removed := 0
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{}, WithDisposeHook(func(string) { removed++ }))

	clock.Advance(4999 * time.Millisecond)
	require.True(t, r.Update(16*time.Millisecond))
	require.False(t, r.Disposed())

	clock.Advance(time.Millisecond)
	require.False(t, r.Update(16*time.Millisecond))
	require.True(t, r.Disposed())
	require.Equal(t, ModeDisposed, r.Mode())
	require.Equal(t, 1, removed)
}

func TestSyncRefreshesLifetime(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{})
	clock.Advance(4 * time.Second)
	r.Sync(physics.Vec3{}, physics.Vec3{}, clock.Now())
	clock.Advance(4 * time.Second)
	require.True(t, r.Update(16*time.Millisecond))
	clock.Advance(time.Second)
	require.False(t, r.Update(16*time.Millisecond))
}

func TestDisposeIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	removed := 0
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{}, WithDisposeHook(func(string) { removed++ }))

	require.NotPanics(t, func() {
		r.Dispose()
		r.Dispose()
	})
	require.Equal(t, 1, removed)
	require.False(t, r.Update(16*time.Millisecond))

	result := r.Sync(physics.Vec3{X: 50}, physics.Vec3{}, clock.Now())
	require.Equal(t, SyncResult{}, result)
	require.Zero(t, r.History().Len())
}

func TestSyncIgnoresNonFiniteData(t *testing.T) {
	clock := newFakeClock()
	r := newTestReconciler(clock, physics.Vec3{}, physics.Vec3{})
	r.Sync(physics.Vec3{X: math.NaN()}, physics.Vec3{}, clock.Now())
	require.Zero(t, r.History().Len())
	require.Equal(t, physics.Vec3{}, r.Position())
}

func TestNormalizeTuningFillsInvalidValues(t *testing.T) {
	tuning := normalizeTuning(Tuning{VelocityBlend: 2, PositionSnapDistance: 6})
	require.Equal(t, DefaultVelocityBlend, tuning.VelocityBlend)
	require.Equal(t, 6.0, tuning.PositionSnapDistance)
	require.Equal(t, DefaultMaxLifetime, tuning.MaxLifetime)
	require.Equal(t, "predicted", ModePredicted.String())
}
