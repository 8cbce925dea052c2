// Package model defines the persisted run hierarchy: a session owns
// pages, a page owns tabs, a tab owns parameters. Completion counters
// live alongside each level and drive bottom-up rollup.
package model

import (
	"time"

	"github.com/wehubfusion/Argus/pkg/status"
)

// SearchWindow bounds asynchronous searches issued for a run.
type SearchWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ExecutionConfig is the immutable configuration a session is created
// with. Re-entering a session replaces it wholesale.
type ExecutionConfig struct {
	// EnvironmentRef names the target environment the run validates.
	EnvironmentRef string `json:"environmentRef"`

	// PageNames lists the pages requested for this run.
	PageNames []string `json:"pageNames"`

	// SearchWindow bounds deferred searches.
	SearchWindow SearchWindow `json:"searchWindow"`

	// HighlightDifferences controls diff highlighting in result details.
	HighlightDifferences bool `json:"highlightDifferences"`

	// DeliverSessionResult requests session-level result delivery; the
	// binary session verdict is only computed and notified when set.
	DeliverSessionResult bool `json:"deliverSessionResult"`

	// OnlyPreconfigured restricts execution to preconfigured parameters.
	OnlyPreconfigured bool `json:"onlyPreconfigured"`
}

// Session identifies one run and roots exactly one page tree.
type Session struct {
	ID               string                  `json:"id"`
	WorkerID         string                  `json:"workerId"`
	CreatedAt        time.Time               `json:"createdAt"`
	Config           ExecutionConfig         `json:"config"`
	Status           status.ValidationStatus `json:"status"`
	AlreadyValidated bool                    `json:"alreadyValidated"`

	// KeyParameters is the key/common parameter snapshot seeded into
	// the session's variable map at start.
	KeyParameters map[string]string `json:"keyParameters,omitempty"`
}

// Page belongs to exactly one session. Re-running a page name within a
// session replaces the old page, latest page wins.
type Page struct {
	SessionID        string                  `json:"sessionId"`
	Name             string                  `json:"name"`
	Status           status.ValidationStatus `json:"status"`
	AlreadyValidated bool                    `json:"alreadyValidated"`
	StartedAt        time.Time               `json:"startedAt"`
}

// Tab belongs to exactly one page.
type Tab struct {
	SessionID        string                  `json:"sessionId"`
	PageName         string                  `json:"pageName"`
	Name             string                  `json:"name"`
	Status           status.ValidationStatus `json:"status"`
	AlreadyValidated bool                    `json:"alreadyValidated"`
}

// Diff is one expected/actual divergence reported by the compare
// engine.
type Diff struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Kind     string `json:"kind,omitempty"`
}

// BlobReference points at an offloaded validation-detail payload that
// was too large to carry inline.
type BlobReference struct {
	URL       string `json:"url"`
	SizeBytes int    `json:"sizeBytes"`
}

// ValidationDetail carries the compare engine's diff list, either
// inline or offloaded to blob storage.
type ValidationDetail struct {
	Diffs         []Diff         `json:"diffs,omitempty"`
	BlobReference *BlobReference `json:"blobReference,omitempty"`
}

// Parameter is the unit of work dispatched to execution units.
type Parameter struct {
	SessionID string `json:"sessionId"`
	PageName  string `json:"pageName"`
	TabName   string `json:"tabName"`

	// Path is the fully-qualified parameter name.
	Path string `json:"path"`

	// ActualResults holds the ordered values observed from the live system.
	ActualResults []string `json:"actualResults,omitempty"`

	// Expected is the reference value the parameter validates against.
	Expected string `json:"expected,omitempty"`

	Status status.ValidationStatus `json:"status"`
	Detail *ValidationDetail       `json:"detail,omitempty"`

	// Async marks parameters whose actual result arrives through a
	// deferred external search.
	Async bool `json:"async"`

	// ErrorText carries a descriptive error value when resolution failed.
	ErrorText string `json:"errorText,omitempty"`

	// LogErrorText carries log-collector-specific partial errors.
	LogErrorText string `json:"logErrorText,omitempty"`
}
