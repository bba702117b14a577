package simulation

// TickWrap is the bound at which the frame tick wraps back to zero.
const TickWrap uint32 = 1_000_000

// FrameTick counts rendered frames. It is the sole cache invalidation key and
// never measures wall-clock time.
type FrameTick struct {
	value uint32
}

// Advance increments the tick exactly once and returns the new value.
func (t *FrameTick) Advance() uint32 {
	t.value++
	if t.value >= TickWrap {
		t.value = 0
	}
	return t.value
}

// Value returns the current tick.
func (t *FrameTick) Value() uint32 {
	return t.value
}

// Age returns how many frames separate stamp from now, accounting for wrap.
func Age(now, stamp uint32) uint32 {
	if now >= stamp {
		return now - stamp
	}
	return now + TickWrap - stamp
}
