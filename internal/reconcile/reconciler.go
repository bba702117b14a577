// Package reconcile turns sparse authoritative snapshots of a networked entity
// into a smooth rendered trajectory. Every branch has a defined fallback so the
// per-frame update never fails on missing data.
package reconcile

import (
	"time"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
)

const (
	// DefaultInterpolationDelay is how far behind "now" the entity is rendered.
	DefaultInterpolationDelay = 50 * time.Millisecond
	// DefaultHistoryWindow bounds snapshot age and defines a recent sync.
	DefaultHistoryWindow = 200 * time.Millisecond
	// DefaultHistoryCapacity bounds how many snapshots are kept.
	DefaultHistoryCapacity = 3
	// DefaultPositionSnapDistance is the rendered error above which a sync snaps.
	DefaultPositionSnapDistance = 3.0
	// DefaultVelocitySnapDelta is the velocity change above which blending is skipped.
	DefaultVelocitySnapDelta = 5.0
	// DefaultVelocityBlend is the blend factor toward a new velocity on each sync.
	DefaultVelocityBlend = 0.3
	// DefaultMaxLifetime disposes entities that stop being refreshed.
	DefaultMaxLifetime = 5 * time.Second
)

// Tuning holds the reconciliation thresholds. PositionSnapDistance is a tunable
// and is not derived from the entity's speed.
type Tuning struct {
	InterpolationDelay   time.Duration
	HistoryWindow        time.Duration
	HistoryCapacity      int
	PositionSnapDistance float64
	VelocitySnapDelta    float64
	VelocityBlend        float64
	MaxLifetime          time.Duration
}

// DefaultTuning returns the production thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		InterpolationDelay:   DefaultInterpolationDelay,
		HistoryWindow:        DefaultHistoryWindow,
		HistoryCapacity:      DefaultHistoryCapacity,
		PositionSnapDistance: DefaultPositionSnapDistance,
		VelocitySnapDelta:    DefaultVelocitySnapDelta,
		VelocityBlend:        DefaultVelocityBlend,
		MaxLifetime:          DefaultMaxLifetime,
	}
}

func normalizeTuning(t Tuning) Tuning {
	d := DefaultTuning()
	if t.InterpolationDelay < 0 {
		t.InterpolationDelay = d.InterpolationDelay
	}
	if t.HistoryWindow <= 0 {
		t.HistoryWindow = d.HistoryWindow
	}
	if t.HistoryCapacity <= 0 {
		t.HistoryCapacity = d.HistoryCapacity
	}
	if !(t.PositionSnapDistance > 0) {
		t.PositionSnapDistance = d.PositionSnapDistance
	}
	if !(t.VelocitySnapDelta > 0) {
		t.VelocitySnapDelta = d.VelocitySnapDelta
	}
	if t.VelocityBlend <= 0 || t.VelocityBlend > 1 {
		t.VelocityBlend = d.VelocityBlend
	}
	if t.MaxLifetime <= 0 {
		t.MaxLifetime = d.MaxLifetime
	}
	return t
}

// Mode describes which branch produced the last rendered position.
type Mode int

const (
	// ModeIdle means no update has run yet.
	ModeIdle Mode = iota
	// ModeInterpolated rendered between two buffered snapshots.
	ModeInterpolated
	// ModeExtrapolated projected from the newest snapshot along its velocity.
	ModeExtrapolated
	// ModePredicted advanced locally with the live velocity, without fresh data.
	ModePredicted
	// ModeDisposed means the entity was removed from the scene.
	ModeDisposed
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeInterpolated:
		return "interpolated"
	case ModeExtrapolated:
		return "extrapolated"
	case ModePredicted:
		return "predicted"
	case ModeDisposed:
		return "disposed"
	default:
		return "idle"
	}
}

// SyncResult reports which corrections a sync applied.
type SyncResult struct {
	PositionSnapped bool
	VelocitySnapped bool
}

// Reconciler owns the rendered transform of one networked entity. Only Update and
// Sync mutate it; the network layer only supplies snapshots.
type Reconciler struct {
	id       string
	tuning   Tuning
	now      func() time.Time
	history  *History
	onRemove func(id string)

	position physics.Vec3
	velocity physics.Vec3
	mode     Mode

	createdAt   time.Time
	lastSync    time.Time
	hasSync     bool
	refreshedAt time.Time
	disposed    bool

	// snapAnchor floors the render time after a snap or the first sync until
	// the interpolation delay has elapsed past that snapshot.
	snapAnchor time.Time
	anchored   bool
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source; primarily used in tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithDisposeHook registers the scene removal callback. It runs at most once.
func WithDisposeHook(hook func(id string)) Option {
	return func(r *Reconciler) {
		r.onRemove = hook
	}
}

// New creates a reconciler for an entity the server just announced at position
// with velocity. Creation starts the lifetime timer.
func New(id string, position, velocity physics.Vec3, tuning Tuning, opts ...Option) *Reconciler {
	r := &Reconciler{
		id:       id,
		tuning:   normalizeTuning(tuning),
		now:      time.Now,
		position: position,
		velocity: velocity,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.history = NewHistory(r.tuning.HistoryCapacity, r.tuning.HistoryWindow)
	r.createdAt = r.now()
	r.refreshedAt = r.createdAt
	return r
}

// ID returns the entity identifier.
func (r *Reconciler) ID() string { return r.id }

// Position returns the current rendered position.
func (r *Reconciler) Position() physics.Vec3 { return r.position }

// Velocity returns the live, smoothed velocity.
func (r *Reconciler) Velocity() physics.Vec3 { return r.velocity }

// Mode returns the branch used by the most recent update.
func (r *Reconciler) Mode() Mode { return r.mode }

// Disposed reports whether the entity has been removed from the scene.
func (r *Reconciler) Disposed() bool { return r.disposed }

// History exposes the snapshot buffer for inspection.
func (r *Reconciler) History() *History { return r.history }

// Sync ingests an authoritative snapshot stamped with the server time it was
// captured at. It is safe to call any number of times before Update.
func (r *Reconciler) Sync(position, velocity physics.Vec3, serverTime time.Time) SyncResult {
	var result SyncResult
	if r.disposed || !position.IsFinite() || !velocity.IsFinite() {
		return result
	}
	//1.- Buffer the observation; the history enforces ordering, window and capacity.
	snapshot := Snapshot{Position: position, Velocity: velocity, Timestamp: serverTime}
	r.history.Add(snapshot)

	//2.- Large velocity changes are discontinuities such as bounces; small ones are noise.
	if velocity.Sub(r.velocity).Length() > r.tuning.VelocitySnapDelta {
		r.velocity = velocity
		result.VelocitySnapped = true
	} else {
		r.velocity = physics.Lerp(r.velocity, velocity, r.tuning.VelocityBlend)
	}

	//3.- Jump when the error is too large to hide; smaller errors are absorbed by Update.
	if r.position.DistanceTo(position) > r.tuning.PositionSnapDistance {
		r.position = position
		result.PositionSnapped = true
		//4.- Restart the timeline from the authoritative state; older entries would
		// pull the next interpolation back toward the pre-snap track.
		r.history.Clear()
		r.history.Add(snapshot)
	}
	//5.- A snap or the first sync has no prior track to blend from, so render
	// starts at the snapshot itself.
	if result.PositionSnapped || !r.hasSync {
		r.snapAnchor = serverTime
		r.anchored = true
	}

	r.lastSync = r.now()
	r.hasSync = true
	r.refreshedAt = r.lastSync
	return result
}

// Update advances the rendered position for one frame. It returns false once the
// entity has been disposed.
func (r *Reconciler) Update(delta time.Duration) bool {
	if r.disposed {
		return false
	}
	now := r.now()

	//1.- Expire entities that were not refreshed within their lifetime.
	if now.Sub(r.refreshedAt) >= r.tuning.MaxLifetime {
		r.Dispose()
		return false
	}

	//2.- With a recent sync, render slightly in the past from the buffered history.
	if r.hasSync && now.Sub(r.lastSync) < r.tuning.HistoryWindow && r.history.Len() > 0 {
		renderAt := now.Add(-r.tuning.InterpolationDelay)
		if r.anchored {
			if renderAt.Before(r.snapAnchor) {
				renderAt = r.snapAnchor
			} else {
				r.anchored = false
			}
		}
		if position, ok := r.history.Sample(renderAt); ok {
			r.position = position
			r.mode = ModeInterpolated
			return true
		}
		//2a.- Without a bracketing pair, project from the newest entry. A render time
		// before that entry projects backwards along its velocity so the track stays
		// continuous across syncs.
		newest, _ := r.history.Newest()
		elapsed := renderAt.Sub(newest.Timestamp)
		r.position = newest.Position.Add(newest.Velocity.Scale(elapsed.Seconds()))
		r.mode = ModeExtrapolated
		return true
	}

	//3.- Without fresh data, predict forward locally with the live velocity.
	r.position = physics.Integrate(r.position, r.velocity, delta.Seconds())
	r.mode = ModePredicted
	return true
}

// Dispose removes the entity from the scene. Repeated calls have no effect.
func (r *Reconciler) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.mode = ModeDisposed
	r.history.Clear()
	if r.onRemove != nil {
		r.onRemove(r.id)
	}
}
