// Package status defines the validation status enumeration and the
// bottom-up rollup rules applied at tab, page and session granularity.
package status

// ValidationStatus is the outcome of validating a parameter, or the
// rolled-up outcome of a tab, page or session.
type ValidationStatus string

const (
	// None means no validation outcome exists. It never impacts rollup.
	None ValidationStatus = "NONE"

	// Passed means actual results matched expected results.
	Passed ValidationStatus = "PASSED"

	// Warning means validation completed with a recoverable problem,
	// for example a connector failure converted into an error result.
	Warning ValidationStatus = "WARNING"

	// LCWarning means the log-collector source reported partial errors.
	LCWarning ValidationStatus = "LC_WARNING"

	// InProgress means validation has not yet finished.
	InProgress ValidationStatus = "IN_PROGRESS"

	// Failed means actual results did not match expected results, or
	// validation itself failed.
	Failed ValidationStatus = "FAILED"
)

// precedence is the explicit total order used for rollup decisions.
// Higher values dominate. Kept as a table rather than ordinal
// comparisons so precedence changes stay local and testable.
var precedence = map[ValidationStatus]int{
	None:       0,
	Passed:     1,
	Warning:    2,
	LCWarning:  3,
	InProgress: 4,
	Failed:     5,
}

// Rank returns the rollup precedence of s. Unknown statuses rank
// lowest, the same as None.
func Rank(s ValidationStatus) int {
	return precedence[s]
}

// Compare orders two statuses by rollup precedence. It returns a
// negative value if a ranks below b, zero if equal, positive otherwise.
func Compare(a, b ValidationStatus) int {
	return Rank(a) - Rank(b)
}

// Impacting reports whether s participates in rollup. None carries no
// verdict and is excluded, so a child whose children were all excluded
// stays invisible to the next level up.
func Impacting(s ValidationStatus) bool {
	return s != None && s != ""
}

// Aggregate computes the rollup status for a set of child statuses at
// tab or page granularity. Non-impacting inputs are ignored. The
// function is deterministic and order-independent.
//
// An empty (or fully non-impacting) input set yields None: the level
// has no verdict of its own and must not influence its parent.
func Aggregate(statuses []ValidationStatus) ValidationStatus {
	sawImpacting := false
	sawWarning := false

	for _, s := range statuses {
		if !Impacting(s) {
			continue
		}
		sawImpacting = true
		switch s {
		case Failed:
			return Failed
		case Warning, LCWarning, InProgress:
			sawWarning = true
		}
	}

	if !sawImpacting {
		return None
	}
	if sawWarning {
		return Warning
	}
	return Passed
}

// AggregateSession computes the session-level verdict, which collapses
// to binary PASSED/FAILED: any warning tier at page level fails the
// session. An empty impacting set passes, a session whose pages all
// rolled up to None has nothing to object to.
func AggregateSession(pageStatuses []ValidationStatus) ValidationStatus {
	for _, s := range pageStatuses {
		if !Impacting(s) {
			continue
		}
		if s != Passed {
			return Failed
		}
	}
	return Passed
}
