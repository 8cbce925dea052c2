// Package store defines the persistence collaborator boundary for the
// run hierarchy and ships an in-memory reference implementation. The
// engine keeps its own in-memory invariants (counters, one-time
// triggers) consistent regardless of the transactional discipline the
// concrete store offers.
package store

import (
	"context"
	"time"

	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/status"
)

// Store persists the session/page/tab/parameter hierarchy and the
// worker heartbeat registry used for fleet discovery.
//
// Writes against a session that no longer exists must be tolerated as
// no-ops, not errors: a kill sweep may delete the session while a slow
// connector call is still finishing, and that result is simply
// discarded.
type Store interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, s *model.Session) error

	// GetSession returns the session or errors.ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// UpdateSessionConfig replaces the session's execution
	// configuration and clears the validated flag: re-entering a
	// session starts a new run wave.
	UpdateSessionConfig(ctx context.Context, id string, cfg model.ExecutionConfig) error

	// SetSessionResult records the final session verdict and marks it
	// validated.
	SetSessionResult(ctx context.Context, id string, st status.ValidationStatus) error

	// DeleteSession removes the session and cascades to its page tree.
	DeleteSession(ctx context.Context, id string) error

	// ListSessionsByWorker returns the sessions owned by a worker.
	ListSessionsByWorker(ctx context.Context, workerID string) ([]*model.Session, error)

	// ListSessions returns every session record.
	ListSessions(ctx context.Context) ([]*model.Session, error)

	// ReplacePage atomically replaces the named page and its children,
	// deleting any previous page of the same name first. Latest page
	// wins.
	ReplacePage(ctx context.Context, page *model.Page, tabs []*model.Tab, params []*model.Parameter) error

	// GetPage returns one page of a session.
	GetPage(ctx context.Context, sessionID, pageName string) (*model.Page, error)

	// ListPages returns every page of a session.
	ListPages(ctx context.Context, sessionID string) ([]*model.Page, error)

	// SetPageResult records a page's rolled-up status.
	SetPageResult(ctx context.Context, sessionID, pageName string, st status.ValidationStatus) error

	// ImpactingPageStatuses returns the statuses of a session's pages
	// that participate in rollup.
	ImpactingPageStatuses(ctx context.Context, sessionID string) ([]status.ValidationStatus, error)

	// GetTab returns one tab of a page.
	GetTab(ctx context.Context, sessionID, pageName, tabName string) (*model.Tab, error)

	// ListTabs returns every tab of a page.
	ListTabs(ctx context.Context, sessionID, pageName string) ([]*model.Tab, error)

	// SetTabResult records a tab's rolled-up status.
	SetTabResult(ctx context.Context, sessionID, pageName, tabName string, st status.ValidationStatus) error

	// ImpactingTabStatuses returns the statuses of a page's tabs that
	// participate in rollup.
	ImpactingTabStatuses(ctx context.Context, sessionID, pageName string) ([]status.ValidationStatus, error)

	// SaveParameter persists a parameter's terminal value.
	SaveParameter(ctx context.Context, p *model.Parameter) error

	// GetParameter returns one parameter of a tab.
	GetParameter(ctx context.Context, sessionID, pageName, tabName, path string) (*model.Parameter, error)

	// ImpactingParameterStatuses returns the statuses of a tab's
	// parameters that participate in rollup.
	ImpactingParameterStatuses(ctx context.Context, sessionID, pageName, tabName string) ([]status.ValidationStatus, error)

	// Heartbeat records that a worker was alive at the given instant.
	Heartbeat(ctx context.Context, workerID string, at time.Time) error

	// LiveWorkers returns workers whose last heartbeat is at or after
	// the cutoff.
	LiveWorkers(ctx context.Context, cutoff time.Time) ([]string, error)

	// RemoveWorker drops a worker from the heartbeat registry.
	RemoveWorker(ctx context.Context, workerID string) error
}
