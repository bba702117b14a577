// Package ingest reads authoritative entity snapshots from a websocket feed and
// queues them for the frame driver.
package ingest

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AdotEXE/protocol-XT-sub007/internal/physics"
	"github.com/AdotEXE/protocol-XT-sub007/internal/state"
)

// Vector is the wire form of a 3D vector.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector) vec3() physics.Vec3 {
	return physics.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// Envelope is one snapshot message as sent by the server.
type Envelope struct {
	EntityID string `json:"entity_id"`
	Position Vector `json:"position"`
	Velocity Vector `json:"velocity"`
	ServerMS int64  `json:"server_ms"`
	Removed  bool   `json:"removed,omitempty"`
}

// Update converts the envelope into the form the projectile store consumes.
func (e Envelope) Update() (state.SnapshotUpdate, error) {
	if e.EntityID == "" {
		return state.SnapshotUpdate{}, eris.New("snapshot missing entity_id")
	}
	if e.Removed {
		return state.SnapshotUpdate{EntityID: e.EntityID, Removed: true}, nil
	}
	if e.ServerMS <= 0 {
		return state.SnapshotUpdate{}, eris.Errorf("snapshot %s has invalid server_ms %d", e.EntityID, e.ServerMS)
	}
	update := state.SnapshotUpdate{
		EntityID:   e.EntityID,
		Position:   e.Position.vec3(),
		Velocity:   e.Velocity.vec3(),
		ServerTime: time.UnixMilli(e.ServerMS),
	}
	if !update.Position.IsFinite() || !update.Velocity.IsFinite() {
		return state.SnapshotUpdate{}, eris.Errorf("snapshot %s has non-finite vectors", e.EntityID)
	}
	return update, nil
}

// Decode parses a websocket frame holding either one envelope or an array of them.
func Decode(payload []byte) ([]state.SnapshotUpdate, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, eris.New("empty snapshot frame")
	}
	var envelopes []Envelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envelopes); err != nil {
			return nil, eris.Wrap(err, "decode snapshot batch")
		}
	} else {
		var single Envelope
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, eris.Wrap(err, "decode snapshot")
		}
		envelopes = []Envelope{single}
	}
	updates := make([]state.SnapshotUpdate, 0, len(envelopes))
	for i, envelope := range envelopes {
		update, err := envelope.Update()
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot %d", i)
		}
		updates = append(updates, update)
	}
	return updates, nil
}
