package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRespectsEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARGUS_MAX_CONCURRENT", "42")
	t.Setenv("ARGUS_WORKERS", "7")

	cfg := LoadConfig()
	assert.Equal(t, 42, cfg.MaxConcurrent)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, ConfigSourceEnvVar, cfg.Source)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig()
	assert.GreaterOrEqual(t, cfg.MaxConcurrent, 1)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.NotEmpty(t, cfg.Source)
}

func TestLimiterAcquireReleaseTracksMetrics(t *testing.T) {
	limiter := NewLimiter(2)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	assert.Equal(t, int64(1), limiter.CurrentActive())
	limiter.Release()

	assert.Equal(t, int64(0), limiter.CurrentActive())
	assert.Equal(t, int64(1), limiter.TotalAcquired())
	assert.Equal(t, int64(1), limiter.PeakActive())
}

func TestLimiterAcquireHonorsContextCancellation(t *testing.T) {
	limiter := NewLimiter(1)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGoSyncFeedsCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	limiter := NewLimiterWithCircuitBreaker(4, cb)
	ctx := context.Background()

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, limiter.GoSync(ctx, func() error { return boom }), boom)
	}

	assert.Equal(t, StateOpen, cb.GetState())
	err := limiter.Acquire(ctx)
	require.Error(t, err, "open breaker must refuse new work")

	cb.Reset()
	require.NoError(t, limiter.GoSync(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen(), "breaker half-opens after the reset timeout")
	assert.Equal(t, StateHalfOpen, cb.GetState())

	for i := 0; i < 5; i++ {
		cb.RecordSuccess()
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
