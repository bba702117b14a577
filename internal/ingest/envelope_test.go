package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeSingleEnvelope(t *testing.T) {
	updates, err := Decode([]byte(`{"entity_id":"proj-9","position":{"x":1,"y":2,"z":3},"velocity":{"x":-4},"server_ms":1700000000123}`))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	update := updates[0]
	require.Equal(t, "proj-9", update.EntityID)
	require.Equal(t, 3.0, update.Position.Z)
	require.Equal(t, -4.0, update.Velocity.X)
	require.True(t, update.ServerTime.Equal(time.UnixMilli(1700000000123)))
	require.False(t, update.Removed)
}

func TestDecodeBatchWithRemoval(t *testing.T) {
	updates, err := Decode([]byte(` [
		{"entity_id":"a","position":{"x":1},"server_ms":10},
		{"entity_id":"b","removed":true}
	]`))
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.True(t, updates[1].Removed)
	require.Equal(t, "b", updates[1].EntityID)
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":      "  ",
		"garbage":    "{not json",
		"missing id": `{"position":{"x":1},"server_ms":10}`,
		"no time":    `{"entity_id":"a"}`,
		"bad batch":  `[{"entity_id":"a","server_ms":5},{"server_ms":5}]`,
	} {
		_, err := Decode([]byte(payload))
		require.Errorf(t, err, "case %s", name)
	}
}

func TestQueueDrainsInOrderAndDropsOldest(t *testing.T) {
	queue := NewQueue(3)
	updates, err := Decode([]byte(`[
		{"entity_id":"a","server_ms":1},
		{"entity_id":"b","server_ms":2},
		{"entity_id":"c","server_ms":3},
		{"entity_id":"d","server_ms":4}
	]`))
	require.NoError(t, err)
	queue.Push(updates...)

	require.Equal(t, 3, queue.Len())
	require.EqualValues(t, 1, queue.Dropped())
	drained := queue.Drain()
	require.Len(t, drained, 3)
	require.Equal(t, "b", drained[0].EntityID)
	require.Equal(t, "d", drained[2].EntityID)
	require.Nil(t, queue.Drain())
}
