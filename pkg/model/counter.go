package model

import "sync/atomic"

// Counter is a monotonically-decrementing completion counter. Reaching
// zero is a one-time edge: exactly one caller of Decrement observes it,
// which makes the decrement the safe synchronization point for rollup.
type Counter struct {
	n atomic.Int32
}

// Reset sets the counter to n. Only the skeleton builder calls this,
// before any concurrent decrements can happen.
func (c *Counter) Reset(n int32) {
	c.n.Store(n)
}

// Decrement decreases the counter by one and reports whether this call
// took it to exactly zero. Further decrements go negative and never
// re-fire the edge.
func (c *Counter) Decrement() bool {
	return c.n.Add(-1) == 0
}

// Remaining returns the current count. Do not reconstruct the
// reached-zero transition from this value; use Decrement's return.
func (c *Counter) Remaining() int32 {
	return c.n.Load()
}
