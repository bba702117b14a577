package scheduler

import "strings"

// DefaultLODDistance is the ground distance beyond which detail parts are hidden.
const DefaultLODDistance = 150.0

// DetailPartKeywords name the sub-parts hidden at distance.
var DetailPartKeywords = []string{"track", "wheel", "detail"}

// Part is a named renderable sub-part of an entity.
type Part interface {
	Name() string
	SetVisible(visible bool)
}

// Detailed is implemented by entities with toggleable sub-parts.
type Detailed interface {
	Parts() []Part
}

// IsDetailPart reports whether a part name marks fine detail.
func IsDetailPart(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range DetailPartKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// LODTracker caches each entity's near/far state so part visibility is only
// touched on a transition.
type LODTracker struct {
	threshold float64
	far       map[string]bool
}

// NewLODTracker constructs a tracker with the given distance threshold.
func NewLODTracker(threshold float64) *LODTracker {
	if !(threshold > 0) {
		threshold = DefaultLODDistance
	}
	return &LODTracker{threshold: threshold, far: make(map[string]bool)}
}

// Apply updates the entity's detail visibility for distance and reports whether
// a transition was applied.
func (l *LODTracker) Apply(id string, entity Entity, distance float64) bool {
	detailed, ok := entity.(Detailed)
	if !ok {
		return false
	}
	far := distance > l.threshold
	if previous, known := l.far[id]; known && previous == far {
		return false
	}
	l.far[id] = far
	for _, part := range detailed.Parts() {
		if part != nil && IsDetailPart(part.Name()) {
			part.SetVisible(!far)
		}
	}
	return true
}

// IsFar reports the cached state for id.
func (l *LODTracker) IsFar(id string) (far bool, known bool) {
	far, known = l.far[id]
	return far, known
}

// Forget drops the cached state for id.
func (l *LODTracker) Forget(id string) {
	delete(l.far, id)
}

// Prune drops cached state for ids keep rejects.
func (l *LODTracker) Prune(keep func(id string) bool) {
	for id := range l.far {
		if !keep(id) {
			delete(l.far, id)
		}
	}
}
