// Package connector defines the data-source collaborator boundary. The
// concrete SQL/SSH/REST/log executors live outside the engine; this
// package fixes the contract they implement and the registry the
// engine dispatches through.
package connector

import (
	"context"

	"github.com/wehubfusion/Argus/pkg/model"
)

// DeferredHandle reports that a connector started an asynchronous
// external search instead of returning data. The execution unit parks
// itself under RequestID until the search subsystem delivers a result.
type DeferredHandle struct {
	// RequestID is the opaque identifier the arrival callback is keyed by.
	RequestID string

	// SearchID identifies the search inside the external search
	// subsystem, used for batched cancellation.
	SearchID string
}

// Result is the outcome of one connector fetch: either resolved values
// or a deferred handle, never both.
type Result struct {
	// Values holds the ordered actual-result values.
	Values []string

	// Deferred is set when the connector handed the work to an
	// asynchronous search.
	Deferred *DeferredHandle

	// AuxMessage carries a connector-provided diagnostic, for example a
	// SQL state, preserved into the parameter's error text on failure.
	AuxMessage string

	// LogErrors carries log-collector-specific partial errors. A
	// non-empty value downgrades the parameter to LC_WARNING.
	LogErrors string
}

// IsDeferred reports whether the fetch started an asynchronous search.
func (r Result) IsDeferred() bool {
	return r.Deferred != nil
}

// Connector resolves values from one kind of back-end system.
type Connector interface {
	// EngineType is the tag this connector registers under.
	EngineType() string

	// Fetch resolves sourceSpec against the live system. Blocking
	// calls must honor ctx. Failures should be returned as errors; the
	// execution unit converts them into error-result values rather
	// than propagating them.
	Fetch(ctx context.Context, sourceSpec string, window model.SearchWindow) (Result, error)
}
