// Package concurrency bounds how many parameter execution units run at
// once. Parameters within a tab, and tabs within a page, execute
// concurrently; the limiter is the single throttle across the session.
package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Limiter provides semaphore-based concurrency control with a circuit
// breaker guarding against cascading connector failures.
type Limiter struct {
	sem            chan struct{}
	active         int64
	acquired       int64
	peak           int64
	circuitBreaker *CircuitBreaker
}

// NewLimiter creates a limiter allowing maxConcurrent simultaneous
// executions.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:            make(chan struct{}, maxConcurrent),
		circuitBreaker: NewCircuitBreaker(100, 30*time.Second),
	}
}

// NewLimiterWithCircuitBreaker creates a limiter with custom breaker settings.
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	l := NewLimiter(maxConcurrent)
	l.circuitBreaker = cb
	return l
}

// Acquire blocks until a slot is free or ctx ends. Returns an error if
// the circuit breaker is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.circuitBreaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.acquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
	default:
		// Unbalanced release; nothing to return.
	}
}

// GoSync runs fn with a slot held, recording the outcome in the
// circuit breaker.
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	if err := fn(); err != nil {
		l.circuitBreaker.RecordFailure()
		return err
	}
	l.circuitBreaker.RecordSuccess()
	return nil
}

// CurrentActive returns the number of slots currently held.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// PeakActive returns the highest concurrent slot count observed.
func (l *Limiter) PeakActive() int64 {
	return atomic.LoadInt64(&l.peak)
}

// TotalAcquired returns how many acquisitions have succeeded.
func (l *Limiter) TotalAcquired() int64 {
	return atomic.LoadInt64(&l.acquired)
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peak)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.peak, peak, current) {
			return
		}
	}
}
