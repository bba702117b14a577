// Package poscache memoizes ground-plane positions per frame so consumers such as
// the HUD, AI and outbound multiplayer sync avoid repeated transform queries.
//
// Records are keyed by entity id rather than by entity reference so the cache
// never participates in ownership cycles with the entities it describes.
package poscache

import (
	"sort"

	"github.com/AdotEXE/protocol-XT-sub007/internal/simulation"
)

// DefaultHorizon is the number of frames after which a record is considered stale.
const DefaultHorizon uint32 = 4

// Record is the cached ground-plane position of one entity.
type Record struct {
	ID         string
	X          float64
	Z          float64
	FrameStamp uint32
	Alive      bool
	Yaw        float64
	HasYaw     bool
}

// LocalQuery resolves the local controlled entity's transform. It is the
// expensive call the cache exists to avoid repeating within a frame.
type LocalQuery func() (x, z, yaw float64, alive bool)

// Cache owns every position record. It is mutated by the frame driver only.
type Cache struct {
	tick    uint32
	horizon uint32
	records map[string]*Record

	localID    string
	localQuery LocalQuery
	local      Record
	localValid bool
}

// New constructs an empty cache with the provided staleness horizon.
func New(horizon uint32) *Cache {
	if horizon == 0 {
		horizon = DefaultHorizon
	}
	return &Cache{
		horizon: horizon,
		records: make(map[string]*Record),
	}
}

// SetTick records the current frame so staleness and memoization can be evaluated.
func (c *Cache) SetTick(tick uint32) {
	c.tick = tick
}

// Tick returns the frame the cache was last advanced to.
func (c *Cache) Tick() uint32 {
	return c.tick
}

// Store overwrites the record for id, stamping it with the current frame. Records
// are reused in place to avoid per-frame allocations.
func (c *Cache) Store(id string, x, z float64, alive bool) {
	if id == "" {
		return
	}
	record, ok := c.records[id]
	if !ok {
		record = &Record{ID: id}
		c.records[id] = record
	}
	record.X = x
	record.Z = z
	record.Alive = alive
	record.FrameStamp = c.tick
	record.HasYaw = false
	record.Yaw = 0
}

// StoreYaw attaches a heading to a record already stored this frame.
func (c *Cache) StoreYaw(id string, yaw float64) {
	if record, ok := c.records[id]; ok {
		record.Yaw = yaw
		record.HasYaw = true
	}
}

// Remove drops the record for id.
func (c *Cache) Remove(id string) {
	delete(c.records, id)
}

// Prune removes records older than maxAge frames, or whose id is not kept by
// keep when keep is non-nil. It returns the number of removed records.
func (c *Cache) Prune(maxAge uint32, keep func(id string) bool) int {
	removed := 0
	for id, record := range c.records {
		if simulation.Age(c.tick, record.FrameStamp) > maxAge || (keep != nil && !keep(id)) {
			delete(c.records, id)
			removed++
		}
	}
	return removed
}

// Len reports how many records the cache holds, stale or not.
func (c *Cache) Len() int {
	return len(c.records)
}

// Positions returns copies of every record no older than maxStaleness frames,
// ordered by id. A zero maxStaleness uses the cache horizon.
func (c *Cache) Positions(maxStaleness uint32) []Record {
	if maxStaleness == 0 {
		maxStaleness = c.horizon
	}
	out := make([]Record, 0, len(c.records))
	for _, record := range c.records {
		if simulation.Age(c.tick, record.FrameStamp) > maxStaleness {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Position returns a copy of the record for id when it is within the horizon.
func (c *Cache) Position(id string) (Record, bool) {
	if id != "" && id == c.localID {
		return c.Local()
	}
	record, ok := c.records[id]
	if !ok || simulation.Age(c.tick, record.FrameStamp) > c.horizon {
		return Record{}, false
	}
	return *record, true
}

// TrackLocal registers the local controlled entity and the query used to resolve it.
func (c *Cache) TrackLocal(id string, query LocalQuery) {
	if c.localID != "" && c.localID != id {
		delete(c.records, c.localID)
	}
	c.localID = id
	c.localQuery = query
	c.localValid = false
}

// Local returns the local controlled entity's position, running the query at most
// once per frame. The result is also stored as a regular record so Positions
// lists it.
func (c *Cache) Local() (Record, bool) {
	if c.localQuery == nil {
		return Record{}, false
	}
	if c.localValid && c.local.FrameStamp == c.tick {
		return c.local, true
	}
	x, z, yaw, alive := c.localQuery()
	c.local = Record{ID: c.localID, X: x, Z: z, Yaw: yaw, HasYaw: true, Alive: alive, FrameStamp: c.tick}
	c.localValid = true
	if c.localID != "" {
		c.Store(c.localID, x, z, alive)
		c.StoreYaw(c.localID, yaw)
	}
	return c.local, true
}

// Previous returns the most recent local record without running the query,
// whichever frame it was taken in.
func (c *Cache) Previous() (Record, bool) {
	if c.localQuery == nil || !c.localValid {
		return Record{}, false
	}
	return c.local, true
}
