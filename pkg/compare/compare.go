// Package compare defines the compare-engine collaborator boundary.
// The concrete JSON/XML/table diff algorithms live outside the engine.
package compare

import (
	"context"

	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/status"
)

// Outcome is the verdict of one expected-versus-actual comparison.
type Outcome struct {
	Status status.ValidationStatus
	Diffs  []model.Diff
}

// Engine compares an expected value against the ordered actual values
// under a named ruleset. A returned error marks the parameter FAILED
// with the error message attached; a clean Outcome carries the verdict.
type Engine interface {
	Compare(ctx context.Context, expected string, actual []string, ruleset string) (Outcome, error)
}
