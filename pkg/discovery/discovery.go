// Package discovery identifies the worker instances among which
// sessions are distributed. The fleet-expiry sweep consults it to find
// sessions orphaned by crashed workers.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/store"
)

// Discovery is the service-discovery collaborator.
type Discovery interface {
	// ListLiveWorkerIDs returns the identifiers of every live worker.
	ListLiveWorkerIDs(ctx context.Context) ([]string, error)

	// CurrentWorkerID returns this process's worker identity.
	CurrentWorkerID() string
}

// Static is a fixed-membership Discovery, used by tests and
// single-instance deployments.
type Static struct {
	Self string
	Live []string
}

// ListLiveWorkerIDs returns the fixed membership list.
func (s Static) ListLiveWorkerIDs(context.Context) ([]string, error) {
	return s.Live, nil
}

// CurrentWorkerID returns the fixed self identity.
func (s Static) CurrentWorkerID() string { return s.Self }

// StoreDiscovery derives liveness from worker heartbeats persisted in
// the shared store: a worker is live while its last heartbeat is
// younger than the configured TTL.
type StoreDiscovery struct {
	store    store.Store
	workerID string
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewStoreDiscovery creates a heartbeat-backed discovery. When
// workerID is empty a random identity is generated. ttl bounds how
// stale a heartbeat may be before the worker counts as dead; the
// heartbeat loop posts at ttl/3 or interval, whichever is set.
func NewStoreDiscovery(st store.Store, workerID string, ttl time.Duration, logger *zap.Logger) *StoreDiscovery {
	if workerID == "" {
		workerID = fmt.Sprintf("argus-%s", uuid.NewString())
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &StoreDiscovery{
		store:    st,
		workerID: workerID,
		ttl:      ttl,
		interval: ttl / 3,
		logger:   logger,
	}
}

// CurrentWorkerID returns this process's worker identity.
func (d *StoreDiscovery) CurrentWorkerID() string { return d.workerID }

// ListLiveWorkerIDs returns workers with a heartbeat younger than the TTL.
func (d *StoreDiscovery) ListLiveWorkerIDs(ctx context.Context) ([]string, error) {
	return d.store.LiveWorkers(ctx, time.Now().Add(-d.ttl))
}

// Run posts heartbeats until the context is cancelled, then removes
// this worker from the registry.
func (d *StoreDiscovery) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.store.RemoveWorker(cleanupCtx, d.workerID); err != nil {
				d.logger.Warn("Failed to deregister worker", zap.String("worker_id", d.workerID), zap.Error(err))
			}
			return
		case <-ticker.C:
			d.beat(ctx)
		}
	}
}

func (d *StoreDiscovery) beat(ctx context.Context) {
	if err := d.store.Heartbeat(ctx, d.workerID, time.Now()); err != nil {
		d.logger.Warn("Failed to post worker heartbeat",
			zap.String("worker_id", d.workerID),
			zap.Error(err))
	}
}
