// Package search defines the asynchronous search-subsystem boundary.
// Deferred parameters wait on searches owned by this collaborator and
// are reconciled through arrival callbacks keyed by request id.
package search

import "context"

// Arrival is the inbound callback payload delivered when an
// asynchronous search finishes. RequestID matches the identifier the
// deferred parameter was parked under.
type Arrival struct {
	RequestID string   `json:"requestId"`
	Values    []string `json:"values,omitempty"`

	// LogErrors carries log-collector partial errors reported by the search.
	LogErrors string `json:"logErrors,omitempty"`

	// Error is set when the search itself failed.
	Error string `json:"error,omitempty"`
}

// Subsystem is the external search collaborator. Cancellation is
// batched: evicting many deferred entries must cost one round-trip,
// not one per entry.
type Subsystem interface {
	RegisterSearch(ctx context.Context, spec string) (searchID string, err error)
	CancelSearches(ctx context.Context, searchIDs []string) error
}
