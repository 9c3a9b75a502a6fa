package dispatcher_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetii/yetii/core/application/dispatcher"
	"github.com/yetii/yetii/core/application/registry"
	"github.com/yetii/yetii/core/application/report"
	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/runtime/binder"
	"github.com/yetii/yetii/core/shared/errors"
)

type execFunc func(ctx context.Context, connID, text string, args []any) (int64, error)

// fakeAdapter hands out in-memory handles and records how they are used.
type fakeAdapter struct {
	kind config.BackendKind
	exec execFunc

	mu          sync.Mutex
	connectErrs map[string][]error
	connects    map[string]int
	active      map[string]int
	maxActive   map[string]int
	running     int
	maxRunning  int

	open atomic.Int32
}

func newFakeAdapter(exec execFunc) *fakeAdapter {
	if exec == nil {
		exec = func(context.Context, string, string, []any) (int64, error) { return 1, nil }
	}
	return &fakeAdapter{
		kind:        config.BackendDirectWire,
		exec:        exec,
		connectErrs: make(map[string][]error),
		connects:    make(map[string]int),
		active:      make(map[string]int),
		maxActive:   make(map[string]int),
	}
}

func (a *fakeAdapter) Kind() config.BackendKind { return a.kind }

func (a *fakeAdapter) Connect(_ context.Context, c *config.Connection) (interfaces.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects[c.ID]++
	if errs := a.connectErrs[c.ID]; len(errs) > 0 {
		err := errs[0]
		a.connectErrs[c.ID] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	a.open.Add(1)
	return &fakeConn{adapter: a, id: c.ID}, nil
}

func (a *fakeAdapter) failConnect(id string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectErrs[id] = errs
}

func (a *fakeAdapter) connectCount(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects[id]
}

func (a *fakeAdapter) enter(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[id]++
	a.running++
	a.maxActive[id] = max(a.maxActive[id], a.active[id])
	a.maxRunning = max(a.maxRunning, a.running)
}

func (a *fakeAdapter) leave(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[id]--
	a.running--
}

type fakeConn struct {
	adapter *fakeAdapter
	id      string
	broken  bool
}

func (c *fakeConn) BindStyle() binder.Style { return binder.StyleQuestion }

func (c *fakeConn) Prepare(_ context.Context, text string) (*interfaces.Statement, error) {
	return &interfaces.Statement{Text: text, NumInput: -1}, nil
}

func (c *fakeConn) Bind(stmt *interfaces.Statement, args []any) error {
	stmt.Args = args
	return nil
}

func (c *fakeConn) Execute(ctx context.Context, stmt *interfaces.Statement) (*interfaces.Result, error) {
	c.adapter.enter(c.id)
	defer c.adapter.leave(c.id)

	rows, err := c.adapter.exec(ctx, c.id, stmt.Text, stmt.Args)
	if err != nil {
		if errors.IsConnectionFatal(err) || ctx.Err() != nil {
			c.broken = true
		}
		return nil, err
	}
	return &interfaces.Result{RowsAffected: rows}, nil
}

func (c *fakeConn) Fetch(_ context.Context, res *interfaces.Result) (int64, error) {
	return res.RowsAffected, nil
}

func (c *fakeConn) Reusable() bool { return !c.broken }

func (c *fakeConn) Close(context.Context) error {
	c.adapter.open.Add(-1)
	return nil
}

func query(name, connID, template string) *config.QueryDefinition {
	return &config.QueryDefinition{Name: name, ConnectionID: connID, Template: template, Enabled: true}
}

func testConfig(queries ...*config.QueryDefinition) *config.Config {
	ids := []string{}
	seen := map[string]bool{}
	for _, q := range queries {
		if !seen[q.ConnectionID] {
			seen[q.ConnectionID] = true
			ids = append(ids, q.ConnectionID)
		}
	}
	cfg := &config.Config{Version: "1.0.0", Name: "test", Queries: queries, Settings: config.DefaultSettings()}
	for _, id := range ids {
		cfg.Connections = append(cfg.Connections, &config.Connection{ID: id, BackendKind: config.BackendDirectWire, DSN: "fake://" + id, Protocol: "fake"})
	}
	return cfg
}

func runAll(t *testing.T, ctx context.Context, d *dispatcher.Dispatcher, cfg *config.Config) *report.Report {
	t.Helper()
	sel, err := registry.Resolve(cfg, "", false)
	require.NoError(t, err)
	return d.Run(ctx, cfg, sel, nil)
}

func newDispatcher(a *fakeAdapter) *dispatcher.Dispatcher {
	return dispatcher.New(
		dispatcher.WithAdapters(a),
		dispatcher.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func statuses(rep *report.Report) map[string]report.Status {
	out := make(map[string]report.Status, len(rep.Results))
	for _, r := range rep.Results {
		out[r.QueryName] = r.Status
	}
	return out
}

func TestRun_SingleQuerySucceeds(t *testing.T) {
	a := newFakeAdapter(nil)
	cfg := testConfig(query("q1", "db1", "SELECT 1"))

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	require.Len(t, rep.Results, 1)
	assert.Equal(t, "q1", rep.Results[0].QueryName)
	assert.Equal(t, "db1", rep.Results[0].ConnectionID)
	assert.Equal(t, report.StatusSucceeded, rep.Results[0].Status)
	assert.Equal(t, int64(1), rep.Results[0].Rows)
	assert.Equal(t, report.RunSuccess, rep.Status())
	assert.Equal(t, 0, rep.ExitCode())
	assert.NotEmpty(t, rep.RunID)
	assert.Zero(t, a.open.Load(), "every handle is closed when the run ends")
}

func TestRun_NothingToRun(t *testing.T) {
	a := newFakeAdapter(nil)
	rep := runAll(t, context.Background(), newDispatcher(a), testConfig())

	assert.Empty(t, rep.Results)
	assert.Equal(t, report.RunSuccess, rep.Status())
}

func TestRun_ConnectionFailureSkipsRemainingQueries(t *testing.T) {
	a := newFakeAdapter(nil)
	a.failConnect("db1", errors.NewAppError(errors.ErrCodeConnectionFailed, "connection 'db1': refused", nil))
	cfg := testConfig(
		query("q1", "db1", "SELECT 1"),
		query("other", "db2", "SELECT 1"),
		query("q2", "db1", "SELECT 2"),
	)

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	require.Len(t, rep.Results, 3)
	assert.Equal(t, []string{"q1", "other", "q2"}, []string{rep.Results[0].QueryName, rep.Results[1].QueryName, rep.Results[2].QueryName})

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, errors.ErrCodeConnectionFailed, rep.Results[0].Code())

	assert.Equal(t, report.StatusSucceeded, rep.Results[1].Status)

	assert.Equal(t, report.StatusSkipped, rep.Results[2].Status)
	assert.Equal(t, "q1", rep.Results[2].SkippedBecause)
	assert.Equal(t, errors.ErrCodeConnectionFailed, rep.Results[2].Code())

	assert.Equal(t, report.RunFailure, rep.Status())
	assert.Equal(t, 2, rep.ExitCode())
	assert.Equal(t, 1, a.connectCount("db1"))
}

func TestRun_BrokenHandleSkipsRemainingQueries(t *testing.T) {
	a := newFakeAdapter(func(_ context.Context, _, text string, _ []any) (int64, error) {
		if text == "BREAK" {
			return 0, errors.NewAppError(errors.ErrCodeConnectionFailed, "connection reset", nil)
		}
		return 1, nil
	})
	cfg := testConfig(query("q1", "db1", "BREAK"), query("q2", "db1", "SELECT 1"))

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, report.StatusSkipped, rep.Results[1].Status)
	assert.Equal(t, "q1", rep.Results[1].SkippedBecause)
	assert.Zero(t, a.open.Load())
}

func TestRun_ExecutionErrorDoesNotAbortSiblings(t *testing.T) {
	a := newFakeAdapter(func(_ context.Context, _, text string, _ []any) (int64, error) {
		if text == "SELEC 1" {
			return 0, errors.NewAppError(errors.ErrCodeExecutionFailed, "syntax error", nil)
		}
		return 2, nil
	})
	cfg := testConfig(query("bad", "db1", "SELEC 1"), query("good", "db1", "SELECT 1"))

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, map[string]report.Status{"bad": report.StatusFailed, "good": report.StatusSucceeded}, statuses(rep))
	assert.Equal(t, errors.ErrCodeExecutionFailed, rep.Results[0].Code())
	assert.Equal(t, 1, a.connectCount("db1"), "a rejected statement leaves the handle reusable")
}

func TestRun_StopOnQueryError(t *testing.T) {
	a := newFakeAdapter(func(_ context.Context, _, text string, _ []any) (int64, error) {
		if text == "FAIL" {
			return 0, errors.NewAppError(errors.ErrCodeExecutionFailed, "rejected", nil)
		}
		return 1, nil
	})
	cfg := testConfig(query("q1", "db1", "FAIL"), query("q2", "db1", "SELECT 1"))
	cfg.Settings.ErrorHandling.OnQueryError = config.OnErrorStop

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, report.StatusSkipped, rep.Results[1].Status)
	assert.Equal(t, "q1", rep.Results[1].SkippedBecause)
}

func TestRun_QueriesOnOneConnectionNeverOverlap(t *testing.T) {
	a := newFakeAdapter(func(context.Context, string, string, []any) (int64, error) {
		time.Sleep(15 * time.Millisecond)
		return 1, nil
	})
	cfg := testConfig(query("q1", "db1", "SELECT 1"), query("q2", "db1", "SELECT 2"), query("q3", "db1", "SELECT 3"))
	cfg.Settings.Pool.MaxConnections = 4

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	require.Len(t, rep.Results, 3)
	for i := 1; i < len(rep.Results); i++ {
		prev, next := rep.Results[i-1], rep.Results[i]
		assert.False(t, next.StartedAt.Before(prev.FinishedAt), "%s started before %s finished", next.QueryName, prev.QueryName)
	}
	assert.Equal(t, 1, a.maxActive["db1"])
}

func TestRun_ConnectionsRunConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	a := newFakeAdapter(func(ctx context.Context, _, _ string, _ []any) (int64, error) {
		arrived.Done()
		done := make(chan struct{})
		go func() {
			arrived.Wait()
			close(done)
		}()
		select {
		case <-done:
			return 1, nil
		case <-time.After(2 * time.Second):
			return 0, errors.NewAppError(errors.ErrCodeExecutionFailed, "peer never started", nil)
		}
	})
	cfg := testConfig(query("a", "db1", "SELECT 1"), query("b", "db2", "SELECT 1"))

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, map[string]report.Status{"a": report.StatusSucceeded, "b": report.StatusSucceeded}, statuses(rep))
	assert.Equal(t, 2, a.maxRunning)
}

func TestRun_MaxParallel(t *testing.T) {
	a := newFakeAdapter(func(context.Context, string, string, []any) (int64, error) {
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	})
	cfg := testConfig(query("a", "db1", "SELECT 1"), query("b", "db2", "SELECT 1"), query("c", "db3", "SELECT 1"))
	cfg.Settings.MaxParallel = 1

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.RunSuccess, rep.Status())
	assert.Equal(t, 1, a.maxRunning)
}

func TestRun_TimeoutReplacesHandle(t *testing.T) {
	a := newFakeAdapter(func(ctx context.Context, _, text string, _ []any) (int64, error) {
		if text == "SLOW" {
			<-ctx.Done()
			return 0, errors.Classify("execute", ctx.Err())
		}
		return 1, nil
	})
	slow := query("slow", "db1", "SLOW")
	slow.Timeout = 30 * time.Millisecond
	cfg := testConfig(slow, query("fast", "db1", "SELECT 1"))

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, errors.ErrCodeTimeout, rep.Results[0].Code())
	assert.Equal(t, report.StatusSucceeded, rep.Results[1].Status, "a timeout fails only its own query")
	assert.Equal(t, 2, a.connectCount("db1"), "the interrupted handle is discarded and replaced")
	assert.Zero(t, a.open.Load())
}

func TestRun_CancellationSkipsRemainder(t *testing.T) {
	started := make(chan struct{})
	a := newFakeAdapter(func(ctx context.Context, _, text string, _ []any) (int64, error) {
		if text == "BLOCK" {
			close(started)
			<-ctx.Done()
			return 0, errors.Classify("execute", ctx.Err())
		}
		return 1, nil
	})
	cfg := testConfig(query("q1", "db1", "BLOCK"), query("q2", "db1", "SELECT 1"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	rep := runAll(t, ctx, newDispatcher(a), cfg)

	require.Len(t, rep.Results, 2)
	for _, res := range rep.Results {
		assert.Equal(t, report.StatusSkipped, res.Status, res.QueryName)
		assert.Equal(t, errors.ErrCodeCanceled, res.Code(), res.QueryName)
		assert.Empty(t, res.SkippedBecause)
	}
	assert.Equal(t, report.RunFailure, rep.Status())
	assert.Zero(t, a.open.Load(), "no handle outlives a canceled run")
}

func TestRun_ConnectRetries(t *testing.T) {
	a := newFakeAdapter(nil)
	a.failConnect("db1", errors.NewAppError(errors.ErrCodeConnectionFailed, "refused", nil), nil)
	cfg := testConfig(query("q1", "db1", "SELECT 1"))
	cfg.Settings.Pool.RetryAttempts = 2

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.StatusSucceeded, rep.Results[0].Status)
	assert.Equal(t, 2, a.connectCount("db1"))
}

func TestRun_DriverUnavailableIsNotRetried(t *testing.T) {
	a := newFakeAdapter(nil)
	a.failConnect("db1", errors.NewAppError(errors.ErrCodeDriverUnavailable, "protocol 'fake' is not supported", nil))
	cfg := testConfig(query("q1", "db1", "SELECT 1"), query("q2", "db1", "SELECT 1"))
	cfg.Settings.Pool.RetryAttempts = 3

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, errors.ErrCodeDriverUnavailable, rep.Results[0].Code())
	assert.Equal(t, report.StatusSkipped, rep.Results[1].Status)
	assert.Equal(t, 1, a.connectCount("db1"))
}

func TestRun_NoAdapterForBackendKind(t *testing.T) {
	a := newFakeAdapter(nil)
	cfg := testConfig(query("q1", "db1", "SELECT 1"))
	cfg.Connections[0].BackendKind = config.BackendGenericDriver

	rep := runAll(t, context.Background(), newDispatcher(a), cfg)

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, errors.ErrCodeDriverUnavailable, rep.Results[0].Code())
}

func TestRun_BindsParametersAndOverrides(t *testing.T) {
	var got []any
	var text string
	a := newFakeAdapter(func(_ context.Context, _, stmt string, args []any) (int64, error) {
		text, got = stmt, args
		return 1, nil
	})
	q := query("orders", "db1", "SELECT * FROM orders WHERE customer = {{ params.customer }} AND status = {{ params.status }}")
	q.Parameters = []config.Parameter{
		{Name: "customer", Type: config.ParamInt, Value: int64(7), HasValue: true},
		{Name: "status", Type: config.ParamString, Value: "open", HasValue: true},
	}
	cfg := testConfig(q)

	sel, err := registry.Resolve(cfg, "", false)
	require.NoError(t, err)
	rep := newDispatcher(a).Run(context.Background(), cfg, sel, map[string]string{"customer": "42"})

	assert.Equal(t, report.StatusSucceeded, rep.Results[0].Status)
	assert.Equal(t, "SELECT * FROM orders WHERE customer = ? AND status = ?", text)
	assert.Equal(t, []any{int64(42), "open"}, got)
}

func TestRun_BadOverrideIsBindError(t *testing.T) {
	a := newFakeAdapter(nil)
	q := query("orders", "db1", "SELECT * FROM orders WHERE customer = $1")
	q.Parameters = []config.Parameter{{Name: "customer", Type: config.ParamInt, Value: int64(7), HasValue: true}}
	cfg := testConfig(q, query("after", "db1", "SELECT 1"))

	sel, err := registry.Resolve(cfg, "", false)
	require.NoError(t, err)
	rep := newDispatcher(a).Run(context.Background(), cfg, sel, map[string]string{"customer": "seven"})

	assert.Equal(t, errors.ErrCodeBind, rep.Results[0].Code())
	assert.Equal(t, report.StatusSucceeded, rep.Results[1].Status, "a bind error fails only its own query")
}

func TestRun_ForcedFailureIsWarning(t *testing.T) {
	a := newFakeAdapter(func(context.Context, string, string, []any) (int64, error) {
		return 0, errors.NewAppError(errors.ErrCodeExecutionFailed, "rejected", nil)
	})
	q := query("q1", "db1", "SELECT 1")
	q.Enabled = false
	cfg := testConfig(q)

	sel, err := registry.Resolve(cfg, "q1", true)
	require.NoError(t, err)
	rep := newDispatcher(a).Run(context.Background(), cfg, sel, nil)

	assert.Equal(t, report.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, "q1", rep.Forced)
	assert.Equal(t, report.RunWarning, rep.Status())
	assert.Equal(t, 0, rep.ExitCode())
}
