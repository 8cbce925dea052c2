package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wehubfusion/Argus/pkg/compare"
	"github.com/wehubfusion/Argus/pkg/connector"
	"github.com/wehubfusion/Argus/pkg/deferred"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/notify"
	"github.com/wehubfusion/Argus/pkg/search"
	"github.com/wehubfusion/Argus/pkg/status"
	"github.com/wehubfusion/Argus/pkg/store"
)

type stubConnector struct {
	mu      sync.Mutex
	results map[string]connector.Result
	errs    map[string]error
	calls   []string
}

func newStubConnector() *stubConnector {
	return &stubConnector{results: make(map[string]connector.Result), errs: make(map[string]error)}
}

func (c *stubConnector) EngineType() string { return "sql" }

func (c *stubConnector) Fetch(_ context.Context, sourceSpec string, _ model.SearchWindow) (connector.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, sourceSpec)
	if err, ok := c.errs[sourceSpec]; ok {
		return connector.Result{}, err
	}
	if res, ok := c.results[sourceSpec]; ok {
		return res, nil
	}
	return connector.Result{}, fmt.Errorf("no data for %q", sourceSpec)
}

type equalityComparer struct{}

func (equalityComparer) Compare(_ context.Context, expected string, actual []string, _ string) (compare.Outcome, error) {
	if len(actual) > 0 && actual[0] == expected {
		return compare.Outcome{Status: status.Passed}, nil
	}
	return compare.Outcome{Status: status.Failed}, nil
}

type nopSearches struct{}

func (nopSearches) RegisterSearch(_ context.Context, spec string) (string, error) { return spec, nil }
func (nopSearches) CancelSearches(context.Context, []string) error                { return nil }

type fixture struct {
	store *store.MemoryStore
	conn  *stubConnector
	svc   *Service
	sink  *notify.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.NewMemoryStore(logger)
	conn := newStubConnector()
	reg := connector.NewRegistry()
	reg.Register(conn)
	sink := notify.NewMemorySink()
	svc := NewService(st, reg, equalityComparer{}, deferred.NewCache(nopSearches{}, logger), sink, nil, logger)
	return &fixture{store: st, conn: conn, svc: svc, sink: sink}
}

// seed creates a one-page one-tab session with room for n parameters.
func (f *fixture) seed(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	sess := &model.Session{ID: "s1", WorkerID: "w1", CreatedAt: time.Now(),
		Config: model.ExecutionConfig{PageNames: []string{"summary"}}, Status: status.InProgress}
	require.NoError(t, f.store.CreateSession(ctx, sess))
	f.svc.InitSessionState("s1", 1)
	require.NoError(t, f.store.ReplacePage(ctx, &model.Page{
		SessionID: "s1", Name: "summary", Status: status.InProgress, StartedAt: time.Now(),
	}, []*model.Tab{{SessionID: "s1", PageName: "summary", Name: "totals", Status: status.InProgress}}, nil))
	f.svc.InitPageState("s1", "summary", map[string]int{"totals": n})
	return "s1"
}

func param(path string) *model.Parameter {
	return &model.Parameter{
		SessionID: "s1", PageName: "summary", TabName: "totals",
		Path: path, Status: status.InProgress,
	}
}

func TestExecuteVariableChaining(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, 2)
	ctx := context.Background()

	f.conn.results["select order_no"] = connector.Result{Values: []string{"ORD-77"}}
	f.conn.results["select total where order = ORD-77"] = connector.Result{Values: []string{"100"}}

	first := param("totals/order")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/order", EngineType: "sql", SourceSpec: "select order_no",
		ExpectedLiteral: "ORD-77", VariableName: "order_no",
	}, first))
	assert.Equal(t, status.Passed, first.Status)

	// The second parameter's spec resolves against the published variable.
	second := param("totals/amount")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/amount", EngineType: "sql",
		SourceSpec: "select total where order = ${order_no}", ExpectedLiteral: "100",
	}, second))
	assert.Equal(t, status.Passed, second.Status)

	sess, err := f.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, sess.AlreadyValidated)
	assert.Equal(t, status.Passed, sess.Status)
}

func TestExecuteFailedParameterDoesNotPublishVariable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.conn.results["q"] = connector.Result{Values: []string{"actual"}}

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q",
		ExpectedLiteral: "different", VariableName: "chained",
	}, p))
	assert.Equal(t, status.Failed, p.Status)

	vars, ok := f.svc.SessionVars("s1")
	require.True(t, ok)
	_, found := vars.Get("chained")
	assert.False(t, found, "failed parameters must not poison the variable map")
}

func TestExecuteUnresolvedPlaceholderFailsParameterOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "select ${never_set}",
	}, p))
	assert.Equal(t, status.Failed, p.Status)
	assert.Contains(t, p.ErrorText, "never_set")
	assert.Empty(t, f.conn.calls, "the connector must not run with an unresolved spec")
}

func TestExecuteExpectedFromSecondConnectorCall(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.conn.results["q-actual"] = connector.Result{Values: []string{"42"}}
	f.conn.results["q-expected"] = connector.Result{Values: []string{"42"}}

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q-actual", ExpectedSpec: "q-expected",
	}, p))
	assert.Equal(t, status.Passed, p.Status)
	assert.Equal(t, "42", p.Expected)
	assert.Equal(t, []string{"q-actual", "q-expected"}, f.conn.calls)
}

func TestExecuteExpectedConnectorFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.conn.results["q-actual"] = connector.Result{Values: []string{"42"}}
	f.conn.errs["q-expected"] = errors.New("reference system down")

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q-actual", ExpectedSpec: "q-expected",
	}, p))
	assert.Equal(t, status.Warning, p.Status)
	assert.Equal(t, "reference system down", p.ErrorText)
}

func TestExecuteLogErrorsDowngradeToLCWarning(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.conn.results["q"] = connector.Result{
		Values:    []string{"42"},
		LogErrors: "collector node 3 unreachable",
	}

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q", ExpectedLiteral: "42",
	}, p))
	assert.Equal(t, status.LCWarning, p.Status)
	assert.Equal(t, "collector node 3 unreachable", p.LogErrorText)
}

func TestExecuteUnknownEngineFailsParameter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "ssh", SourceSpec: "q",
	}, p))
	assert.Equal(t, status.Failed, p.Status)
	assert.Contains(t, p.ErrorText, "ssh")
}

func TestExecuteAfterSessionKilledIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.svc.DropSessionState("s1")

	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q",
	}, p))
	assert.Empty(t, f.conn.calls)
	assert.Empty(t, f.sink.Events())
}

func TestLateArrivalAfterEvictionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	ctx := context.Background()

	f.conn.results["q-slow"] = connector.Result{
		Deferred: &connector.DeferredHandle{RequestID: "r1", SearchID: "s-1"},
	}
	p := param("totals/a")
	require.NoError(t, f.svc.Execute(ctx, model.ParameterDefinition{
		Path: "totals/a", EngineType: "sql", SourceSpec: "q-slow", ExpectedLiteral: "1",
	}, p))
	require.True(t, p.Async)

	f.svc.cache.KillSession(ctx, "s1")
	assert.Equal(t, status.Warning, p.Status)
	assert.Equal(t, deferred.ReasonSessionExpired, p.ErrorText)

	resultsBefore := len(f.sink.ByType(notify.EventParameterResult))
	require.NoError(t, f.svc.OnArrival(ctx, search.Arrival{RequestID: "r1", Values: []string{"1"}}))
	assert.Equal(t, resultsBefore, len(f.sink.ByType(notify.EventParameterResult)),
		"a late arrival must not produce a second terminal result")
}
