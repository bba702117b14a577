package state

import (
	"sort"
	"sync"
	"time"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
	"github.com/AdotEXE/protocol-XT-sub007/internal/reconcile"
)

// SnapshotUpdate is one authoritative update delivered by the network layer.
type SnapshotUpdate struct {
	EntityID   string
	Position   physics.Vec3
	Velocity   physics.Vec3
	ServerTime time.Time
	Removed    bool
}

// ProjectileState is a read-only copy of a networked projectile's rendered state.
type ProjectileState struct {
	ID       string
	Position physics.Vec3
	Velocity physics.Vec3
	Mode     reconcile.Mode
}

// ProjectileDiff lists projectiles disposed since the previous ConsumeDiff.
type ProjectileDiff struct {
	Disposed []string
}

// ProjectileStore owns one reconciler per networked projectile and routes
// snapshots to them.
type ProjectileStore struct {
	mu       sync.RWMutex
	tuning   reconcile.Tuning
	clock    func() time.Time
	onRemove func(id string)
	states   map[string]*reconcile.Reconciler
	disposed map[string]struct{}
}

// StoreOption customises a ProjectileStore.
type StoreOption func(*ProjectileStore)

// WithStoreClock overrides the time source handed to every reconciler.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *ProjectileStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSceneRemoval registers the callback that removes a projectile's renderable.
func WithSceneRemoval(hook func(id string)) StoreOption {
	return func(s *ProjectileStore) {
		s.onRemove = hook
	}
}

// NewProjectileStore constructs a projectile container with initialized maps.
func NewProjectileStore(tuning reconcile.Tuning, opts ...StoreOption) *ProjectileStore {
	s := &ProjectileStore{
		tuning:   tuning,
		clock:    time.Now,
		states:   make(map[string]*reconcile.Reconciler),
		disposed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply routes an update to the matching reconciler, spawning one when the
// server announces a new id. It reports whether a projectile was spawned.
func (s *ProjectileStore) Apply(update SnapshotUpdate) bool {
	if s == nil || update.EntityID == "" {
		return false
	}
	if update.Removed {
		s.Remove(update.EntityID)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	//1.- Route to the live reconciler when one exists.
	if r, ok := s.states[update.EntityID]; ok {
		r.Sync(update.Position, update.Velocity, update.ServerTime)
		return false
	}
	//2.- Otherwise the update announces a new projectile; its first snapshot seeds the history.
	r := reconcile.New(update.EntityID, update.Position, update.Velocity, s.tuning,
		reconcile.WithClock(s.clock),
	)
	r.Sync(update.Position, update.Velocity, update.ServerTime)
	s.states[update.EntityID] = r
	delete(s.disposed, update.EntityID)
	return true
}

// Remove disposes a projectile explicitly and queues its id for the next diff.
func (s *ProjectileStore) Remove(projectileID string) {
	if s == nil || projectileID == "" {
		return
	}
	s.mu.Lock()
	r, ok := s.states[projectileID]
	if ok {
		r.Dispose()
		delete(s.states, projectileID)
		s.disposed[projectileID] = struct{}{}
	}
	s.mu.Unlock()
	if ok {
		s.notifyRemoved([]string{projectileID})
	}
}

// Update advances every reconciler by one frame and returns the ids disposed
// because their lifetime expired, sorted for determinism.
func (s *ProjectileStore) Update(delta time.Duration) []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	var expired []string
	for id, r := range s.states {
		if r.Update(delta) {
			continue
		}
		//1.- Lifetime expiry disposed the reconciler; drop it from the live set.
		delete(s.states, id)
		s.disposed[id] = struct{}{}
		expired = append(expired, id)
	}
	s.mu.Unlock()
	sort.Strings(expired)
	s.notifyRemoved(expired)
	return expired
}

// notifyRemoved runs the scene removal hook outside the store lock so the hook
// may read the store.
func (s *ProjectileStore) notifyRemoved(ids []string) {
	if s.onRemove == nil {
		return
	}
	for _, id := range ids {
		s.onRemove(id)
	}
}

// ConsumeDiff retrieves and clears the ids disposed since the previous call.
func (s *ProjectileStore) ConsumeDiff() ProjectileDiff {
	if s == nil {
		return ProjectileDiff{}
	}
	s.mu.Lock()
	ids := make([]string, 0, len(s.disposed))
	for id := range s.disposed {
		ids = append(ids, id)
	}
	s.disposed = make(map[string]struct{})
	s.mu.Unlock()
	sort.Strings(ids)
	return ProjectileDiff{Disposed: ids}
}

// Get returns a copy of the projectile's rendered state.
func (s *ProjectileStore) Get(id string) (ProjectileState, bool) {
	if s == nil {
		return ProjectileState{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.states[id]
	if !ok {
		return ProjectileState{}, false
	}
	return stateOf(r), true
}

// Snapshot clones and returns every live projectile, ordered by id.
func (s *ProjectileStore) Snapshot() []ProjectileState {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]ProjectileState, 0, len(s.states))
	for _, r := range s.states {
		out = append(out, stateOf(r))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many projectiles are live.
func (s *ProjectileStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

func stateOf(r *reconcile.Reconciler) ProjectileState {
	return ProjectileState{ID: r.ID(), Position: r.Position(), Velocity: r.Velocity(), Mode: r.Mode()}
}
