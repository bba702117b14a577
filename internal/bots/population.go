// Package bots provides a synthetic population of wandering tanks that drives
// the frame scheduler when no game client is attached.
package bots

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/poscache"
	"github.com/AdotEXE/protocol-XT-sub007/internal/scheduler"
)

// LocalID is the id of the bot standing in for the local controlled entity.
const LocalID = "bot-000"

// Snapshot exposes the observed population for metrics export.
type Snapshot struct {
	Bots int
}

// Population owns every bot. Entities is called on the frame goroutine; Scale,
// Bot and Snapshot may be called from any goroutine. Retiring a bot only flips
// its atomic alive flag, so the frame goroutine never races a shrink.
type Population struct {
	mu   sync.Mutex
	seed uint64
	bots []*Bot
	next int
}

// NewPopulation constructs an empty population seeded for reproducible runs.
func NewPopulation(seed uint64) *Population {
	return &Population{seed: seed}
}

// Scale grows or shrinks the population to target bots and returns the
// confirmed count. Shrinking retires the newest bots first.
func (p *Population) Scale(target int) (int, error) {
	if target < 0 {
		return 0, eris.New("population must be non-negative")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.bots) < target {
		id := fmt.Sprintf("bot-%03d", p.next)
		p.next++
		p.bots = append(p.bots, newBot(id, p.seedFor(id)))
	}
	for len(p.bots) > target {
		last := len(p.bots) - 1
		p.bots[last].alive.Store(false)
		p.bots = p.bots[:last]
	}
	return len(p.bots), nil
}

func (p *Population) seedFor(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64() ^ p.seed
}

// Entities implements scheduler.EntitySource.
func (p *Population) Entities() []scheduler.Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]scheduler.Entity, len(p.bots))
	for i, bot := range p.bots {
		out[i] = bot
	}
	return out
}

// Bot returns the bot with id.
func (p *Population) Bot(id string) (*Bot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bot := range p.bots {
		if bot.id == id {
			return bot, true
		}
	}
	return nil, false
}

// LocalQuery resolves the stand-in local entity's transform for the position cache.
func (p *Population) LocalQuery() poscache.LocalQuery {
	return func() (float64, float64, float64, bool) {
		bot, ok := p.Bot(LocalID)
		if !ok {
			return 0, 0, 0, false
		}
		return bot.position.X, bot.position.Z, bot.yaw, bot.alive.Load()
	}
}

// Snapshot returns the current counts.
func (p *Population) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{Bots: len(p.bots)}
}
