// Package session owns the run registry and lifecycle: creation,
// re-entry, the blocking wait convenience API, explicit kill, and the
// fleet-wide expiry sweeps that reclaim sessions when a worker process
// disappears.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/deferred"
	"github.com/wehubfusion/Argus/pkg/discovery"
	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
	"github.com/wehubfusion/Argus/pkg/execution"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/notify"
	"github.com/wehubfusion/Argus/pkg/status"
	"github.com/wehubfusion/Argus/pkg/store"
	"github.com/wehubfusion/Argus/pkg/variables"
)

// Config bounds session lifetimes and the blocking wait API.
type Config struct {
	// SessionLifespan is the maximum session age before the expiry
	// sweep kills it.
	SessionLifespan time.Duration

	// WaitPollInterval is the cadence of the blocking wait API's poll.
	WaitPollInterval time.Duration

	// WaitDefaultTimeout applies when the caller passes no timeout.
	WaitDefaultTimeout time.Duration

	// WaitMaxTimeout caps caller-supplied timeouts.
	WaitMaxTimeout time.Duration
}

// DefaultConfig returns the stock lifecycle bounds.
func DefaultConfig() Config {
	return Config{
		SessionLifespan:    30 * time.Minute,
		WaitPollInterval:   time.Second,
		WaitDefaultTimeout: 60 * time.Second,
		WaitMaxTimeout:     600 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.SessionLifespan <= 0 {
		c.SessionLifespan = 30 * time.Minute
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = time.Second
	}
	if c.WaitDefaultTimeout <= 0 {
		c.WaitDefaultTimeout = 60 * time.Second
	}
	if c.WaitMaxTimeout <= 0 {
		c.WaitMaxTimeout = 600 * time.Second
	}
	return c
}

// Service is the session registry and lifecycle manager for one worker.
type Service struct {
	store  store.Store
	exec   *execution.Service
	cache  *deferred.Cache
	sink   notify.Sink
	disc   discovery.Discovery
	cfg    Config
	logger *zap.Logger
}

// NewService wires the lifecycle manager.
func NewService(st store.Store, exec *execution.Service, cache *deferred.Cache, sink notify.Sink, disc discovery.Discovery, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{
		store:  st,
		exec:   exec,
		cache:  cache,
		sink:   sink,
		disc:   disc,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Start creates a new session owned by this worker, seeds its variable
// map from the key-parameter snapshot and the flattened environment
// description, and returns the new session identifier. The page
// skeleton is persisted by the engine before any parameter executes.
func (s *Service) Start(ctx context.Context, cfg model.ExecutionConfig, keyParams map[string]string, environment map[string]any) (string, error) {
	sess := &model.Session{
		ID:            uuid.NewString(),
		WorkerID:      s.disc.CurrentWorkerID(),
		CreatedAt:     time.Now(),
		Config:        cfg,
		Status:        status.InProgress,
		KeyParameters: keyParams,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", sdkerrors.NewFatalError("SESSION_CREATE_FAILED", "failed to persist session", err)
	}

	vars := s.exec.InitSessionState(sess.ID, len(cfg.PageNames))
	for name, value := range keyParams {
		vars.Put(name, value)
	}
	vars.PutAll(variables.FlattenEnvironment(environment))

	s.logger.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.String("worker_id", sess.WorkerID),
		zap.Strings("pages", cfg.PageNames))
	return sess.ID, nil
}

// Update re-enters an existing session with a new execution
// configuration, for example to request additional pages, without
// discarding the variables accumulated so far.
func (s *Service) Update(ctx context.Context, sessionID string, cfg model.ExecutionConfig) error {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.UpdateSessionConfig(ctx, sessionID, cfg); err != nil {
		return sdkerrors.NewFatalError("SESSION_UPDATE_FAILED", "failed to update session", err)
	}
	s.exec.InitSessionState(sessionID, len(cfg.PageNames))

	s.logger.Info("Session re-entered",
		zap.String("session_id", sessionID),
		zap.Strings("pages", cfg.PageNames))
	return nil
}

// WaitForValidated blocks until the session has fully validated or the
// timeout elapses. The caller-supplied timeout is clamped to
// [1s, WaitMaxTimeout]; zero or negative falls back to the default.
// The deadline is checked against the wall clock, not iteration count,
// so scheduler jitter cannot stretch the wait.
func (s *Service) WaitForValidated(ctx context.Context, sessionID string, timeout time.Duration) error {
	timeout = s.clampTimeout(timeout)
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(s.cfg.WaitPollInterval)
	defer ticker.Stop()

	for {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.AlreadyValidated {
			return nil
		}
		if !time.Now().Before(deadline) {
			return sdkerrors.NewTimeoutError(
				fmt.Sprintf("session %s not validated within %s", sessionID, timeout))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// clampTimeout applies default and maximum bounds to a caller-supplied
// wait timeout.
func (s *Service) clampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.cfg.WaitDefaultTimeout
	}
	if timeout < time.Second {
		return time.Second
	}
	if timeout > s.cfg.WaitMaxTimeout {
		return s.cfg.WaitMaxTimeout
	}
	return timeout
}

// Kill terminates a session: evict its deferred entries (one batched
// search cancellation), force WARNING on anything still in flight,
// push the final session status and delete the record. Safe to run
// concurrently with in-flight parameter completions.
func (s *Service) Kill(ctx context.Context, sessionID, reason string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// Drain deferred entries first; each synthesizes its own WARNING
	// result and decrements counters through the normal path.
	s.cache.KillSession(ctx, sessionID)

	// Anything still IN_PROGRESS (synchronous connector calls that
	// will never report back into this session) is forced to WARNING.
	s.forceWarnInFlight(ctx, sessionID)

	pageStatuses, err := s.store.ImpactingPageStatuses(ctx, sessionID)
	if err == nil {
		verdict := status.AggregateSession(pageStatuses)
		notify.Emit(ctx, s.sink, s.logger, notify.SessionStatusEvent(sessionID, verdict))
	}
	notify.Emit(ctx, s.sink, s.logger, notify.SessionExpiredEvent(sessionID, reason))

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return sdkerrors.NewFatalError("SESSION_DELETE_FAILED", "failed to delete session", err)
	}
	s.exec.DropSessionState(sessionID)

	s.logger.Info("Session killed",
		zap.String("session_id", sessionID),
		zap.String("worker_id", sess.WorkerID),
		zap.String("reason", reason))
	return nil
}

// forceWarnInFlight downgrades tabs and pages still IN_PROGRESS to a
// terminal WARNING so the final aggregate is computable.
func (s *Service) forceWarnInFlight(ctx context.Context, sessionID string) {
	pages, err := s.store.ListPages(ctx, sessionID)
	if err != nil {
		return
	}
	for _, page := range pages {
		tabs, err := s.store.ListTabs(ctx, sessionID, page.Name)
		if err == nil {
			for _, tab := range tabs {
				if tab.Status == status.InProgress {
					_ = s.store.SetTabResult(ctx, sessionID, page.Name, tab.Name, status.Warning)
				}
			}
		}
		if page.Status == status.InProgress {
			_ = s.store.SetPageResult(ctx, sessionID, page.Name, status.Warning)
		}
	}
}

// SweepExpired kills every session owned by this worker whose age
// exceeds the configured lifespan. Run periodically on each worker.
func (s *Service) SweepExpired(ctx context.Context) {
	workerID := s.disc.CurrentWorkerID()
	sessions, err := s.store.ListSessionsByWorker(ctx, workerID)
	if err != nil {
		s.logger.Warn("Expiry sweep could not list sessions", zap.Error(err))
		return
	}

	now := time.Now()
	for _, sess := range sessions {
		if now.Sub(sess.CreatedAt) <= s.cfg.SessionLifespan {
			continue
		}
		s.logger.Info("Expiring aged session",
			zap.String("session_id", sess.ID),
			zap.Duration("age", now.Sub(sess.CreatedAt)))
		if err := s.Kill(ctx, sess.ID, "session expired"); err != nil {
			s.logger.Warn("Failed to expire session",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
	}
}

// SweepOrphans deletes session records whose owning worker no longer
// appears in the live-instance list. Cleanup is best-effort: the full
// kill notification sequence is skipped because the owning worker's
// in-memory state died with it.
func (s *Service) SweepOrphans(ctx context.Context) {
	live, err := s.disc.ListLiveWorkerIDs(ctx)
	if err != nil {
		s.logger.Warn("Orphan sweep could not list live workers", zap.Error(err))
		return
	}
	liveSet := make(map[string]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}

	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		s.logger.Warn("Orphan sweep could not list sessions", zap.Error(err))
		return
	}

	for _, sess := range sessions {
		if _, ok := liveSet[sess.WorkerID]; ok {
			continue
		}
		s.logger.Info("Deleting orphaned session",
			zap.String("session_id", sess.ID),
			zap.String("dead_worker_id", sess.WorkerID))
		if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
			s.logger.Warn("Failed to delete orphaned session",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
		s.exec.DropSessionState(sess.ID)
	}
}
