package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/status"
)

func seedSession(t *testing.T, m *MemoryStore, id string) {
	t.Helper()
	require.NoError(t, m.CreateSession(context.Background(), &model.Session{
		ID:        id,
		WorkerID:  "worker-1",
		CreatedAt: time.Now(),
		Status:    status.InProgress,
	}))
}

func seedPage(t *testing.T, m *MemoryStore, sessionID, pageName string, tabNames ...string) {
	t.Helper()
	var tabs []*model.Tab
	for _, name := range tabNames {
		tabs = append(tabs, &model.Tab{
			SessionID: sessionID, PageName: pageName, Name: name, Status: status.InProgress,
		})
	}
	require.NoError(t, m.ReplacePage(context.Background(), &model.Page{
		SessionID: sessionID, Name: pageName, Status: status.InProgress, StartedAt: time.Now(),
	}, tabs, nil))
}

func TestSessionLifecycle(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := m.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, sdkerrors.ErrSessionNotFound)

	seedSession(t, m, "s1")
	sess, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", sess.WorkerID)

	require.NoError(t, m.SetSessionResult(ctx, "s1", status.Passed))
	sess, err = m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sess.AlreadyValidated)
	assert.Equal(t, status.Passed, sess.Status)

	require.NoError(t, m.UpdateSessionConfig(ctx, "s1", model.ExecutionConfig{PageNames: []string{"p"}}))
	sess, err = m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, sess.AlreadyValidated, "re-entry clears the validated flag")
	assert.Equal(t, status.InProgress, sess.Status)

	require.NoError(t, m.DeleteSession(ctx, "s1"))
	_, err = m.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, sdkerrors.ErrSessionNotFound)
}

func TestWritesAgainstMissingSessionAreNoOps(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()

	assert.NoError(t, m.SetSessionResult(ctx, "gone", status.Passed))
	assert.NoError(t, m.UpdateSessionConfig(ctx, "gone", model.ExecutionConfig{}))
	assert.NoError(t, m.SetPageResult(ctx, "gone", "p", status.Passed))
	assert.NoError(t, m.SetTabResult(ctx, "gone", "p", "t", status.Passed))
	assert.NoError(t, m.SaveParameter(ctx, &model.Parameter{
		SessionID: "gone", PageName: "p", TabName: "t", Path: "t/x",
	}))
	assert.NoError(t, m.ReplacePage(ctx, &model.Page{SessionID: "gone", Name: "p"}, nil, nil))
}

func TestReplacePageLatestWins(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()
	seedSession(t, m, "s1")

	seedPage(t, m, "s1", "summary", "totals")
	require.NoError(t, m.SaveParameter(ctx, &model.Parameter{
		SessionID: "s1", PageName: "summary", TabName: "totals", Path: "totals/a", Status: status.Passed,
	}))

	// Re-requesting the page replaces the whole subtree.
	seedPage(t, m, "s1", "summary", "totals", "extras")

	_, err := m.GetParameter(ctx, "s1", "summary", "totals", "totals/a")
	assert.ErrorIs(t, err, sdkerrors.ErrParameterNotFound)

	tabs, err := m.ListTabs(ctx, "s1", "summary")
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, "totals", tabs[0].Name)
	assert.Equal(t, "extras", tabs[1].Name)
}

func TestImpactingStatusFilters(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()
	seedSession(t, m, "s1")
	seedPage(t, m, "s1", "summary", "totals")

	for _, p := range []*model.Parameter{
		{SessionID: "s1", PageName: "summary", TabName: "totals", Path: "totals/a", Status: status.Passed},
		{SessionID: "s1", PageName: "summary", TabName: "totals", Path: "totals/b", Status: status.None},
		{SessionID: "s1", PageName: "summary", TabName: "totals", Path: "totals/c", Status: status.Failed},
	} {
		require.NoError(t, m.SaveParameter(ctx, p))
	}

	statuses, err := m.ImpactingParameterStatuses(ctx, "s1", "summary", "totals")
	require.NoError(t, err)
	assert.ElementsMatch(t, []status.ValidationStatus{status.Passed, status.Failed}, statuses,
		"NONE parameters stay out of rollup")
}

func TestListSessionsByWorker(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, &model.Session{ID: "a", WorkerID: "w1"}))
	require.NoError(t, m.CreateSession(ctx, &model.Session{ID: "b", WorkerID: "w2"}))
	require.NoError(t, m.CreateSession(ctx, &model.Session{ID: "c", WorkerID: "w1"}))

	mine, err := m.ListSessionsByWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWorkerHeartbeats(t *testing.T) {
	m := NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Heartbeat(ctx, "w1", now))
	require.NoError(t, m.Heartbeat(ctx, "w2", now.Add(-time.Minute)))

	live, err := m.LiveWorkers(ctx, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, live)

	require.NoError(t, m.RemoveWorker(ctx, "w1"))
	live, err = m.LiveWorkers(ctx, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, live)
}
