package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
)

const (
	// DefaultBehaviorBudget caps behaviour updates per frame.
	DefaultBehaviorBudget = 10
	// DefaultPhysicsBudget caps physics updates per frame.
	DefaultPhysicsBudget = 15
)

// Lane configures one distributor pass over the population.
type Lane struct {
	Name   string
	Budget int
	Bands  []DistanceBand
	Step   StepFunc
}

// LaneOutcome summarises one distributor pass.
type LaneOutcome struct {
	Lane    string
	Start   int
	Visited int
	Updated int
	Faulted int
}

// Touched is the number of entities that consumed budget this frame.
func (o LaneOutcome) Touched() int {
	return o.Updated + o.Faulted
}

// UpdatedFunc is called for every entity whose step succeeded, with the
// square-rooted ground distance.
type UpdatedFunc func(entity Entity, distance float64)

// Distributor bounds per-frame work for one lane: it rotates the starting index
// every frame and gives each entity a distance-bucketed update interval.
type Distributor struct {
	name    string
	budget  int
	bands   bandSet
	step    StepFunc
	logger  *logging.Logger
	metrics *Metrics
}

// NewDistributor builds a distributor for the lane.
func NewDistributor(lane Lane, logger *logging.Logger, metrics *Metrics) *Distributor {
	if lane.Step == nil {
		lane.Step = func(Entity, Frame) error { return nil }
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Distributor{
		name:    lane.Name,
		budget:  lane.Budget,
		bands:   newBandSet(lane.Bands),
		step:    lane.Step,
		logger:  logger.With(logging.String("lane", lane.Name)),
		metrics: metrics,
	}
}

// Name returns the lane name.
func (d *Distributor) Name() string { return d.name }

// Budget returns the per-frame cap.
func (d *Distributor) Budget() int { return d.budget }

// Run services up to Budget entities for tick. refX and refZ are the reference
// point distances are measured from.
func (d *Distributor) Run(tick uint32, entities []Entity, refX, refZ, fps float64, delta time.Duration, onUpdated UpdatedFunc) LaneOutcome {
	outcome := LaneOutcome{Lane: d.name}
	n := len(entities)
	if n == 0 || d.budget <= 0 {
		d.metrics.ObserveLane(outcome)
		return outcome
	}
	//1.- Rotate the starting point so every entity is eventually first in line.
	outcome.Start = int(tick % uint32(n))
	multiplier := LowFPSMultiplier(fps)

	for i := 0; i < n && outcome.Touched() < d.budget; i++ {
		entity := entities[(outcome.Start+i)%n]
		if entity == nil || !entity.Alive() {
			continue
		}
		outcome.Visited++
		x, z := entity.GroundPosition()
		//2.- Bucket on squared distance; the root is only taken for entities that update.
		distanceSq := physics.GroundDistanceSq(x, z, refX, refZ)
		interval := d.bands.interval(distanceSq) * multiplier
		if tick%interval != 0 {
			continue
		}
		frame := Frame{Tick: tick, Delta: delta, FPS: fps, Distance: math.Sqrt(distanceSq)}
		if err := d.safeStep(entity, frame); err != nil {
			//3.- A faulty entity is skipped for this frame only.
			outcome.Faulted++
			d.logger.Warn("entity step failed",
				logging.String("entity_id", entity.ID()),
				logging.Uint32("tick", tick),
				logging.Error(err),
			)
			continue
		}
		outcome.Updated++
		if onUpdated != nil {
			onUpdated(entity, frame.Distance)
		}
	}
	d.metrics.ObserveLane(outcome)
	return outcome
}

func (d *Distributor) safeStep(entity Entity, frame Frame) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = eris.Errorf("step panicked: %s", fmt.Sprint(recovered))
		}
	}()
	return d.step(entity, frame)
}
