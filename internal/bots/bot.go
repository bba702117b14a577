package bots

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
	"github.com/AdotEXE/protocol-XT-sub007/internal/scheduler"
	"github.com/AdotEXE/protocol-XT-sub007/internal/simulation"
)

const (
	// CruiseSpeed is the ground speed bots drive at in units per second.
	CruiseSpeed = 6.0
	// ArenaRadius bounds where bots pick waypoints and drive.
	ArenaRadius = 400.0

	maxTurnRate     = math.Pi / 2
	waypointArrival = 5.0
)

// part is a toggleable renderable piece of a bot.
type part struct {
	name    string
	visible bool
}

func (p *part) Name() string { return p.name }

func (p *part) SetVisible(visible bool) { p.visible = visible }

// Bot is a synthetic tank that wanders between random waypoints.
type Bot struct {
	id        string
	position  physics.Vec3
	velocity  physics.Vec3
	yaw       float64
	waypoint  physics.Vec3
	alive     atomic.Bool
	rng       *rand.Rand
	parts     []scheduler.Part
	lastTick  uint32
	stepped   bool
	faultNext bool
}

func newBot(id string, seed uint64) *Bot {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := &Bot{
		id:  id,
		rng: rng,
		parts: []scheduler.Part{
			&part{name: "hull", visible: true},
			&part{name: "turret", visible: true},
			&part{name: "track_left", visible: true},
			&part{name: "track_right", visible: true},
			&part{name: "road_wheels", visible: true},
		},
	}
	b.alive.Store(true)
	b.position = b.randomPoint()
	b.waypoint = b.randomPoint()
	b.yaw = rng.Float64() * 2 * math.Pi
	return b
}

func (b *Bot) randomPoint() physics.Vec3 {
	angle := b.rng.Float64() * 2 * math.Pi
	radius := math.Sqrt(b.rng.Float64()) * ArenaRadius
	return physics.Vec3{X: math.Cos(angle) * radius, Z: math.Sin(angle) * radius}
}

// ID implements scheduler.Entity.
func (b *Bot) ID() string { return b.id }

// GroundPosition implements scheduler.Entity.
func (b *Bot) GroundPosition() (float64, float64) { return b.position.X, b.position.Z }

// Alive implements scheduler.Entity.
func (b *Bot) Alive() bool { return b.alive.Load() }

// Yaw implements scheduler.Yawed.
func (b *Bot) Yaw() float64 { return b.yaw }

// Parts implements scheduler.Detailed.
func (b *Bot) Parts() []scheduler.Part { return b.parts }

// Position returns the bot's world position.
func (b *Bot) Position() physics.Vec3 { return b.position }

// DetailVisible reports whether the bot's detail parts are currently shown.
func (b *Bot) DetailVisible() bool {
	for _, p := range b.parts {
		if scheduler.IsDetailPart(p.Name()) {
			return p.(*part).visible
		}
	}
	return true
}

// FailNextStep makes the next behaviour step return an error, for fault drills.
func (b *Bot) FailNextStep() { b.faultNext = true }

// StepBehavior steers toward the current waypoint, picking a new one on arrival.
func (b *Bot) StepBehavior(frame scheduler.Frame) error {
	if b.faultNext {
		b.faultNext = false
		return eris.Errorf("bot %s behaviour fault", b.id)
	}
	offset := b.waypoint.Sub(b.position)
	if physics.GroundDistanceSq(b.position.X, b.position.Z, b.waypoint.X, b.waypoint.Z) < waypointArrival*waypointArrival {
		b.waypoint = b.randomPoint()
		offset = b.waypoint.Sub(b.position)
	}
	desired := math.Atan2(offset.Z, offset.X)
	turn := math.Remainder(desired-b.yaw, 2*math.Pi)
	limit := maxTurnRate * frame.Delta.Seconds()
	if turn > limit {
		turn = limit
	} else if turn < -limit {
		turn = -limit
	}
	b.yaw = math.Mod(b.yaw+turn+2*math.Pi, 2*math.Pi)
	return nil
}

// StepPhysics integrates the bot along its heading for every frame elapsed since
// its previous physics step.
func (b *Bot) StepPhysics(frame scheduler.Frame) error {
	frames := uint32(1)
	if b.stepped {
		frames = simulation.Age(frame.Tick, b.lastTick)
	}
	b.lastTick = frame.Tick
	b.stepped = true
	b.velocity = physics.Vec3{X: math.Cos(b.yaw) * CruiseSpeed, Z: math.Sin(b.yaw) * CruiseSpeed}
	b.position = physics.Integrate(b.position, b.velocity, frame.Delta.Seconds()*float64(frames))
	//1.- Long gaps between steps can overshoot the arena edge; pull the bot back inside.
	b.position = physics.ClampMagnitude(b.position, ArenaRadius)
	return nil
}
