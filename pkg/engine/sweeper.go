package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/deferred"
	"github.com/wehubfusion/Argus/pkg/session"
)

// SweeperConfig sets the cadence and bounds of the maintenance loops.
type SweeperConfig struct {
	// Interval is how often the sweeps run.
	Interval time.Duration

	// DeferredLifespan is the maximum age a deferred result may reach
	// before the age sweep evicts it.
	DeferredLifespan time.Duration
}

// Sweeper runs the periodic maintenance loops: deferred-result age
// eviction, own-session expiry and orphaned-session cleanup.
type Sweeper struct {
	sessions *session.Service
	cache    *deferred.Cache
	cfg      SweeperConfig
	logger   *zap.Logger
}

// NewSweeper wires the maintenance loops.
func NewSweeper(sessions *session.Service, cache *deferred.Cache, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.DeferredLifespan <= 0 {
		cfg.DeferredLifespan = 15 * time.Minute
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Sweeper{sessions: sessions, cache: cache, cfg: cfg, logger: logger}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("deferred_lifespan", s.cfg.DeferredLifespan))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.cache.SweepExpired(ctx, s.cfg.DeferredLifespan)
	s.sessions.SweepExpired(ctx)
	s.sessions.SweepOrphans(ctx)
}
