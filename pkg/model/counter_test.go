package model

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterZeroEdgeFiresOnce(t *testing.T) {
	const n = 64

	var c Counter
	c.Reset(n)

	var edges atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Decrement() {
				edges.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), edges.Load(), "exactly one decrement may observe zero")
	assert.Equal(t, int32(0), c.Remaining())
}

func TestCounterReset(t *testing.T) {
	var c Counter
	c.Reset(2)
	assert.False(t, c.Decrement())
	assert.True(t, c.Decrement())

	// Re-arming starts a fresh edge.
	c.Reset(1)
	assert.True(t, c.Decrement())
}
