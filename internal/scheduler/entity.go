package scheduler

import "time"

// Entity is a simulated object the distributor may update this frame.
type Entity interface {
	ID() string
	GroundPosition() (x, z float64)
	Alive() bool
}

// Yawed is implemented by entities whose heading is worth caching.
type Yawed interface {
	Yaw() float64
}

// Behaver is implemented by entities with an AI/behaviour step.
type Behaver interface {
	StepBehavior(frame Frame) error
}

// PhysicsBody is implemented by entities with a physics step.
type PhysicsBody interface {
	StepPhysics(frame Frame) error
}

// EntitySource enumerates the currently alive entities. The returned slice is
// only read during the frame it was returned in.
type EntitySource interface {
	Entities() []Entity
}

// EntitySourceFunc adapts a function to EntitySource.
type EntitySourceFunc func() []Entity

// Entities implements EntitySource.
func (f EntitySourceFunc) Entities() []Entity { return f() }

// Frame is the per-entity view of the current frame.
type Frame struct {
	Tick     uint32
	Delta    time.Duration
	FPS      float64
	Distance float64
}

// StepFunc advances one entity for one lane.
type StepFunc func(entity Entity, frame Frame) error

// StepBehavior runs the entity's behaviour step when it has one.
func StepBehavior(entity Entity, frame Frame) error {
	if b, ok := entity.(Behaver); ok {
		return b.StepBehavior(frame)
	}
	return nil
}

// StepPhysics runs the entity's physics step when it has one.
func StepPhysics(entity Entity, frame Frame) error {
	if p, ok := entity.(PhysicsBody); ok {
		return p.StepPhysics(frame)
	}
	return nil
}
