package scheduler

import (
	"fmt"
	"time"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
	"github.com/AdotEXE/protocol-XT-sub007/internal/poscache"
	"github.com/AdotEXE/protocol-XT-sub007/internal/reconcile"
	"github.com/AdotEXE/protocol-XT-sub007/internal/simulation"
	"github.com/AdotEXE/protocol-XT-sub007/internal/state"
)

const (
	// DefaultRecomputeEvery is how many frames pass between rate recomputations.
	DefaultRecomputeEvery uint32 = 60

	// LaneBehavior is the AI/behaviour lane name.
	LaneBehavior = "behavior"
	// LanePhysics is the physics lane name.
	LanePhysics = "physics"
)

// FrameInfo is handed to category handlers when their gate opens.
type FrameInfo struct {
	Tick  uint32
	Delta time.Duration
	FPS   float64
	Band  Band
}

// Handler runs a subsystem for the current frame.
type Handler func(info FrameInfo)

// Feed supplies snapshot updates queued by the network transport since the
// previous frame.
type Feed interface {
	Drain() []state.SnapshotUpdate
}

// FrameReport describes one completed frame for observers such as the recorder.
type FrameReport struct {
	Tick        uint32
	Delta       time.Duration
	FPS         float64
	Band        Band
	Recomputed  bool
	BandChanged bool
	Periods     [CategoryCount]uint32
	Gates       [CategoryCount]bool
	Lanes       []LaneOutcome
	Projectiles int
	Disposed    []string
	Applied     int
}

// Observer receives a report after every frame.
type Observer interface {
	ObserveFrame(report FrameReport)
}

// Options configures a Driver.
type Options struct {
	BehaviorBudget int
	PhysicsBudget  int
	Bands          []DistanceBand
	CategoryRates  map[Category]CategoryRate
	RecomputeEvery uint32
	LODDistance    float64
	CacheHorizon   uint32
	Reconcile      reconcile.Tuning
	Clock          func() time.Time
	Logger         *logging.Logger
	Metrics        *Metrics
	SceneRemoval   func(id string)
}

// DefaultOptions returns the production configuration.
func DefaultOptions() Options {
	return Options{
		BehaviorBudget: DefaultBehaviorBudget,
		PhysicsBudget:  DefaultPhysicsBudget,
		Bands:          DefaultDistanceBands(),
		CategoryRates:  DefaultCategoryRates(),
		RecomputeEvery: DefaultRecomputeEvery,
		LODDistance:    DefaultLODDistance,
		CacheHorizon:   poscache.DefaultHorizon,
		Reconcile:      reconcile.DefaultTuning(),
	}
}

// Driver orchestrates the scheduler once per rendered frame. It is not safe for
// concurrent use: OnFrame, ApplySnapshot and the query methods belong to the
// frame goroutine. Transports on other goroutines hand updates over via a Feed.
type Driver struct {
	tick       simulation.FrameTick
	rates      RateTable
	controller *RateController
	every      uint32

	handlers [CategoryCount]Handler
	gates    [CategoryCount]bool

	lanes       []*Distributor
	source      EntitySource
	reference   func() (x, z float64)
	localID     string
	cache       *poscache.Cache
	lod         *LODTracker
	projectiles *state.ProjectileStore
	feed        Feed
	observer    Observer

	metrics *Metrics
	logger  *logging.Logger

	info      FrameInfo
	lastDelta time.Duration
}

// NewDriver wires the scheduler components. source may be nil when only
// networked entities are simulated.
func NewDriver(source EntitySource, opts Options) *Driver {
	defaults := DefaultOptions()
	if opts.BehaviorBudget <= 0 {
		opts.BehaviorBudget = defaults.BehaviorBudget
	}
	if opts.PhysicsBudget <= 0 {
		opts.PhysicsBudget = defaults.PhysicsBudget
	}
	if opts.RecomputeEvery == 0 {
		opts.RecomputeEvery = defaults.RecomputeEvery
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if source == nil {
		source = EntitySourceFunc(func() []Entity { return nil })
	}

	logger := opts.Logger.With(logging.String("component", "frame_driver"))
	d := &Driver{
		every:   opts.RecomputeEvery,
		source:  source,
		cache:   poscache.New(opts.CacheHorizon),
		lod:     NewLODTracker(opts.LODDistance),
		metrics: opts.Metrics,
		logger:  logger,
	}
	storeOpts := []state.StoreOption{state.WithSceneRemoval(opts.SceneRemoval)}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, state.WithStoreClock(opts.Clock))
	}
	d.projectiles = state.NewProjectileStore(opts.Reconcile, storeOpts...)
	d.controller = NewRateController(&d.rates, opts.CategoryRates)
	d.lanes = []*Distributor{
		NewDistributor(Lane{Name: LaneBehavior, Budget: opts.BehaviorBudget, Bands: opts.Bands, Step: StepBehavior}, logger, d.metrics),
		NewDistributor(Lane{Name: LanePhysics, Budget: opts.PhysicsBudget, Bands: opts.Bands, Step: StepPhysics}, logger, d.metrics),
	}
	d.reference = d.localReference
	return d
}

// Handle registers or replaces the handler for category. A nil handler clears it.
func (d *Driver) Handle(category Category, handler Handler) {
	if !category.valid() {
		return
	}
	d.handlers[category] = handler
}

// TrackLocal registers the local controlled entity. Its position at the end of the
// previous frame is the default reference point for distance buckets.
func (d *Driver) TrackLocal(id string, query poscache.LocalQuery) {
	d.localID = id
	d.cache.TrackLocal(id, query)
}

// SetReference overrides the reference point used for distance buckets.
func (d *Driver) SetReference(reference func() (x, z float64)) {
	if reference == nil {
		reference = d.localReference
	}
	d.reference = reference
}

// SetFeed attaches a network feed drained at the start of each frame.
func (d *Driver) SetFeed(feed Feed) { d.feed = feed }

// SetObserver attaches a per-frame observer.
func (d *Driver) SetObserver(observer Observer) { d.observer = observer }

// ApplySnapshot routes an authoritative update to the matching reconciler.
func (d *Driver) ApplySnapshot(entityID string, position, velocity physics.Vec3, serverTime time.Time) {
	if d.projectiles.Apply(state.SnapshotUpdate{EntityID: entityID, Position: position, Velocity: velocity, ServerTime: serverTime}) {
		d.logger.Debug("networked entity spawned", logging.String("entity_id", entityID))
	}
}

// RemoveNetworked disposes a networked entity explicitly.
func (d *Driver) RemoveNetworked(entityID string) {
	d.projectiles.Remove(entityID)
}

// OnFrame runs one frame. The order is fixed: drain network updates, advance the
// tick, recompute rates when due, decide gates, run the lanes, refresh the
// position cache, reconcile networked entities, then invoke open handlers.
func (d *Driver) OnFrame(delta time.Duration, measuredFPS float64) {
	applied := d.drainFeed()

	tick := d.tick.Advance()
	d.cache.SetTick(tick)
	fps := simulation.SanitizeFPS(measuredFPS, delta)
	d.lastDelta = delta

	recomputed, changed := false, false
	if tick%d.every == 0 {
		var band Band
		band, changed = d.controller.Recompute(fps)
		recomputed = true
		d.metrics.ObserveBand(band, changed)
		if changed {
			d.logger.Info("frame rate band changed",
				logging.String("band", band.String()),
				logging.Float64("fps", fps),
				logging.Uint32("tick", tick),
			)
		}
		d.pruneCache()
	}
	d.info = FrameInfo{Tick: tick, Delta: delta, FPS: fps, Band: d.rates.Band()}

	for _, category := range Categories {
		d.gates[category] = d.rates.Open(category, tick)
	}

	entities := d.source.Entities()
	refX, refZ := d.reference()
	var outcomes []LaneOutcome
	if d.observer != nil {
		outcomes = make([]LaneOutcome, 0, len(d.lanes))
	}
	for _, lane := range d.lanes {
		outcome := lane.Run(tick, entities, refX, refZ, fps, delta, d.recordUpdated)
		if outcomes != nil {
			outcomes = append(outcomes, outcome)
		}
	}
	//1.- The local query runs once per frame, after the lanes stepped the local
	// entity, so handlers read this frame's position.
	d.cache.Local()

	disposed := d.projectiles.Update(delta)
	for _, id := range disposed {
		d.cache.Remove(id)
	}
	d.metrics.ObserveDisposed(len(disposed))
	for _, projectile := range d.projectiles.Snapshot() {
		d.cache.Store(projectile.ID, projectile.Position.X, projectile.Position.Z, true)
	}

	for _, category := range Categories {
		if !d.gates[category] {
			continue
		}
		d.metrics.ObserveGate(category)
		if handler := d.handlers[category]; handler != nil {
			d.runHandler(category, handler)
		}
	}
	d.metrics.ObserveFrame()

	if d.observer != nil {
		d.observer.ObserveFrame(FrameReport{
			Tick:        tick,
			Delta:       delta,
			FPS:         fps,
			Band:        d.rates.Band(),
			Recomputed:  recomputed,
			BandChanged: changed,
			Periods:     d.rates.Periods(),
			Gates:       d.gates,
			Lanes:       outcomes,
			Projectiles: d.projectiles.Len(),
			Disposed:    disposed,
			Applied:     applied,
		})
	}
}

// CachedPositions returns copies of every cached record within maxStaleness frames.
func (d *Driver) CachedPositions(maxStaleness uint32) []poscache.Record {
	return d.cache.Positions(maxStaleness)
}

// CachedPosition returns a copy of the cached record for id.
func (d *Driver) CachedPosition(id string) (poscache.Record, bool) {
	return d.cache.Position(id)
}

// Networked returns copies of every live networked entity.
func (d *Driver) Networked() []state.ProjectileState {
	return d.projectiles.Snapshot()
}

// ConsumeDisposed returns networked ids disposed since the previous call.
func (d *Driver) ConsumeDisposed() []string {
	return d.projectiles.ConsumeDiff().Disposed
}

// GateOpen reports whether category's gate opened this frame.
func (d *Driver) GateOpen(category Category) bool {
	return category.valid() && d.gates[category]
}

// Rates exposes the rate table for reading.
func (d *Driver) Rates() *RateTable { return &d.rates }

// Tick returns the current frame tick.
func (d *Driver) Tick() uint32 { return d.tick.Value() }

// Metrics returns the scheduler counters.
func (d *Driver) Metrics() *Metrics { return d.metrics }

// IsFar reports the cached level-of-detail state for id.
func (d *Driver) IsFar(id string) (bool, bool) { return d.lod.IsFar(id) }

func (d *Driver) recordUpdated(entity Entity, distance float64) {
	id := entity.ID()
	x, z := entity.GroundPosition()
	d.cache.Store(id, x, z, entity.Alive())
	if yawed, ok := entity.(Yawed); ok {
		d.cache.StoreYaw(id, yawed.Yaw())
	}
	d.lod.Apply(id, entity, distance)
}

func (d *Driver) drainFeed() int {
	if d.feed == nil {
		return 0
	}
	updates := d.feed.Drain()
	for _, update := range updates {
		d.projectiles.Apply(update)
	}
	return len(updates)
}

func (d *Driver) pruneCache() {
	live := make(map[string]struct{})
	for _, entity := range d.source.Entities() {
		if entity != nil {
			live[entity.ID()] = struct{}{}
		}
	}
	for _, projectile := range d.projectiles.Snapshot() {
		live[projectile.ID] = struct{}{}
	}
	if d.localID != "" {
		live[d.localID] = struct{}{}
	}
	keep := func(id string) bool {
		_, ok := live[id]
		return ok
	}
	d.cache.Prune(d.every, keep)
	d.lod.Prune(keep)
}

// localReference is the local entity's position as of the end of the previous
// frame; the origin until the first frame has run.
func (d *Driver) localReference() (float64, float64) {
	if local, ok := d.cache.Previous(); ok {
		return local.X, local.Z
	}
	return 0, 0
}

func (d *Driver) runHandler(category Category, handler Handler) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("category handler panicked",
				logging.String("category", category.String()),
				logging.Uint32("tick", d.info.Tick),
				logging.String("panic", fmt.Sprint(recovered)),
			)
		}
	}()
	handler(d.info)
}
