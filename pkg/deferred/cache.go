// Package deferred tracks parameters paused on asynchronous external
// searches. The cache maps an opaque request identifier to the paused
// execution context; entries drain on arrival, explicit kill, or
// age-based expiry. It is an explicit process-wide service with a
// documented lifecycle, not ambient global state.
package deferred

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/search"
)

// Reason messages attached to synthesized WARNING results on eviction.
const (
	ReasonSessionExpired = "session expired, result evicted"
	ReasonResultExpired  = "result expired"
)

// Entry is the paused execution context of a deferred parameter.
type Entry struct {
	RequestID string
	SearchID  string
	SessionID string

	// Parameter is the paused parameter record.
	Parameter *model.Parameter

	// Definition is the configuration the execution unit resumes with.
	Definition model.ParameterDefinition

	// StartedAt is the wall-clock time the parameter started; age-based
	// expiry measures from here.
	StartedAt time.Time
}

// EvictionHandler finishes an evicted entry: synthesize the WARNING
// result, clear partial actuals, notify, decrement the owning tab's
// counter and trigger rollup. The execution service implements it.
type EvictionHandler interface {
	HandleEvicted(ctx context.Context, entry Entry, reason string)
}

// Cache is the process-local deferred-result registry. Find/Evict race
// freely with the sweepers; eviction is idempotent, so a Find that
// comes up empty after a concurrent evict short-circuits silently.
type Cache struct {
	entries  sync.Map // requestID -> Entry
	searches search.Subsystem
	logger   *zap.Logger

	mu      sync.RWMutex
	handler EvictionHandler
}

// NewCache creates an empty cache. searches receives the batched
// cancellation calls for evicted entries.
func NewCache(searches search.Subsystem, logger *zap.Logger) *Cache {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Cache{searches: searches, logger: logger}
}

// SetHandler wires the eviction handler. Must be called before any
// sweep runs.
func (c *Cache) SetHandler(h EvictionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Store registers a paused execution context under its request id.
func (c *Cache) Store(e Entry) {
	c.entries.Store(e.RequestID, e)
	c.logger.Debug("Deferred parameter registered",
		zap.String("request_id", e.RequestID),
		zap.String("session_id", e.SessionID),
		zap.String("parameter_path", e.Parameter.Path))
}

// Find returns the entry for a request id without removing it.
func (c *Cache) Find(requestID string) (Entry, bool) {
	v, ok := c.entries.Load(requestID)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Evict removes and returns the entry for a request id. Evicting an
// absent or already-evicted entry is a no-op that reports false.
func (c *Cache) Evict(requestID string) (Entry, bool) {
	v, ok := c.entries.LoadAndDelete(requestID)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Len returns the number of parked entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// KillSession evicts every entry owned by the session, runs the
// eviction handler for each, and cancels all collected searches in a
// single batched call.
func (c *Cache) KillSession(ctx context.Context, sessionID string) {
	c.sweep(ctx, ReasonSessionExpired, func(e Entry) bool {
		return e.SessionID == sessionID
	})
}

// SweepExpired evicts every entry whose age exceeds lifespan. An
// external scheduler runs this periodically.
func (c *Cache) SweepExpired(ctx context.Context, lifespan time.Duration) {
	now := time.Now()
	c.sweep(ctx, ReasonResultExpired, func(e Entry) bool {
		return now.Sub(e.StartedAt) > lifespan
	})
}

func (c *Cache) sweep(ctx context.Context, reason string, match func(Entry) bool) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	var evicted []Entry
	c.entries.Range(func(key, v any) bool {
		e := v.(Entry)
		if !match(e) {
			return true
		}
		// Re-check through Evict: the arrival path or a concurrent
		// sweep may have claimed the entry since Range observed it.
		if claimed, ok := c.Evict(e.RequestID); ok {
			evicted = append(evicted, claimed)
		}
		return true
	})

	if len(evicted) == 0 {
		return
	}

	searchIDs := make([]string, 0, len(evicted))
	for _, e := range evicted {
		if e.SearchID != "" {
			searchIDs = append(searchIDs, e.SearchID)
		}
		if handler != nil {
			handler.HandleEvicted(ctx, e, reason)
		}
	}

	c.logger.Info("Evicted deferred entries",
		zap.String("reason", reason),
		zap.Int("count", len(evicted)),
		zap.Int("searches_cancelled", len(searchIDs)))

	// One batched cancellation round-trip for everything evicted.
	if len(searchIDs) > 0 && c.searches != nil {
		if err := c.searches.CancelSearches(ctx, searchIDs); err != nil {
			c.logger.Warn("Failed to cancel searches for evicted entries",
				zap.Int("count", len(searchIDs)),
				zap.Error(err))
		}
	}
}
