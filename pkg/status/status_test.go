package status

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_EmptyIsNone(t *testing.T) {
	assert.Equal(t, None, Aggregate(nil))
	assert.Equal(t, None, Aggregate([]ValidationStatus{}))
}

func TestAggregate_AllNonImpactingIsNone(t *testing.T) {
	assert.Equal(t, None, Aggregate([]ValidationStatus{None, None, ""}))
}

func TestAggregate_PassedWithWarningRollsToWarning(t *testing.T) {
	// Scenario: three parameters, one of them warned.
	got := Aggregate([]ValidationStatus{Passed, Warning, Passed})
	assert.Equal(t, Warning, got)
}

func TestAggregate_FailedDominatesWarning(t *testing.T) {
	got := Aggregate([]ValidationStatus{Failed, Warning})
	assert.Equal(t, Failed, got)
}

func TestAggregate_Table(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ValidationStatus
		want     ValidationStatus
	}{
		{"all passed", []ValidationStatus{Passed, Passed}, Passed},
		{"lc warning counts as warning tier", []ValidationStatus{Passed, LCWarning}, Warning},
		{"in progress counts as warning tier", []ValidationStatus{Passed, InProgress}, Warning},
		{"failed dominates everything", []ValidationStatus{Passed, Warning, LCWarning, InProgress, Failed}, Failed},
		{"none is ignored next to passed", []ValidationStatus{None, Passed}, Passed},
		{"none is ignored next to failed", []ValidationStatus{None, Failed}, Failed},
		{"single none", []ValidationStatus{None}, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.statuses))
		})
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	base := []ValidationStatus{Passed, Warning, None, LCWarning, Passed, InProgress, Failed, None}
	want := Aggregate(base)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]ValidationStatus, len(base))
		copy(shuffled, base)
		r.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Aggregate(shuffled))
	}
}

func TestAggregateSession_BinaryVerdict(t *testing.T) {
	tests := []struct {
		name  string
		pages []ValidationStatus
		want  ValidationStatus
	}{
		{"empty set passes", nil, Passed},
		{"all none passes", []ValidationStatus{None, None}, Passed},
		{"all passed", []ValidationStatus{Passed, Passed}, Passed},
		{"warning fails the session", []ValidationStatus{Passed, Warning}, Failed},
		{"failed fails the session", []ValidationStatus{Failed}, Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateSession(tt.pages))
		})
	}
}

func TestPrecedenceTable(t *testing.T) {
	ordered := []ValidationStatus{None, Passed, Warning, LCWarning, InProgress, Failed}
	for i := 1; i < len(ordered); i++ {
		assert.Negative(t, Compare(ordered[i-1], ordered[i]),
			"%s should rank below %s", ordered[i-1], ordered[i])
	}
}

func TestImpacting(t *testing.T) {
	assert.False(t, Impacting(None))
	assert.False(t, Impacting(""))
	assert.True(t, Impacting(Passed))
	assert.True(t, Impacting(Failed))
}
