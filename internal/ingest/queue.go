package ingest

import (
	"sync"

	"github.com/AdotEXE/protocol-XT-sub007/internal/state"
)

// DefaultQueueSize bounds how many updates wait between two frames.
const DefaultQueueSize = 1024

// Queue hands updates from the network goroutine to the frame goroutine. When
// full it drops the oldest pending updates; newer snapshots supersede them.
type Queue struct {
	mu      sync.Mutex
	pending []state.SnapshotUpdate
	limit   int
	dropped uint64
}

// NewQueue constructs a queue holding at most limit updates.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &Queue{limit: limit}
}

// Push appends updates, evicting the oldest when the limit is exceeded.
func (q *Queue) Push(updates ...state.SnapshotUpdate) {
	if len(updates) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, updates...)
	if overflow := len(q.pending) - q.limit; overflow > 0 {
		q.dropped += uint64(overflow)
		q.pending = append(q.pending[:0], q.pending[overflow:]...)
	}
}

// Drain returns every pending update in arrival order and empties the queue.
func (q *Queue) Drain() []state.SnapshotUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := make([]state.SnapshotUpdate, len(q.pending))
	copy(out, q.pending)
	q.pending = q.pending[:0]
	return out
}

// Len reports how many updates are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped reports how many updates were evicted because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
