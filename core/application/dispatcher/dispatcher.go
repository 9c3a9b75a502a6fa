// Package dispatcher executes a resolved query set against its backends.
//
// Queries are grouped by connection. Groups run concurrently, one worker per
// connection, and the queries of a group run strictly one after another on handles
// taken from that connection's pool. Every handle taken from a pool is returned or
// destroyed before the query that took it is recorded.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/yetii/yetii/core/application/registry"
	"github.com/yetii/yetii/core/application/report"
	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/infrastructure/logging"
	"github.com/yetii/yetii/core/observability"
	"github.com/yetii/yetii/core/runtime/connectors"
	sharedctx "github.com/yetii/yetii/core/shared/context"
	"github.com/yetii/yetii/core/shared/errors"
)

// Dispatcher routes queries to the adapter of their connection's backend kind.
type Dispatcher struct {
	adapters   map[config.BackendKind]interfaces.Adapter
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAdapters replaces the registered adapter table.
func WithAdapters(adapters ...interfaces.Adapter) Option {
	return func(d *Dispatcher) {
		d.adapters = make(map[config.BackendKind]interfaces.Adapter, len(adapters))
		for _, a := range adapters {
			d.adapters[a.Kind()] = a
		}
	}
}

// WithBackOff replaces the retry policy between connection attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(d *Dispatcher) { d.newBackOff = newBackOff }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher over the adapters registered in the connectors package.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		adapters: connectors.Adapters(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// group is the ordered slice of the selection that shares one connection.
type group struct {
	conn    *config.Connection
	queries []*config.QueryDefinition
	// slots are the positions of queries in the selection.
	slots []int
}

// halt remembers the first failure that stopped the run under on_query_error: stop.
type halt struct {
	mu    sync.Mutex
	query string
	err   error
}

// set records the failure and reports whether it was the first one.
func (h *halt) set(query string, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.query != "" {
		return false
	}
	h.query, h.err = query, err
	return true
}

func (h *halt) cause() (string, error) {
	if h == nil {
		return "", nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.query, h.err
}

// Run executes sel and returns the report. params override configured parameter
// values by name in every selected query that declares them. Run never returns an
// error; every outcome is recorded in the report.
func (d *Dispatcher) Run(ctx context.Context, cfg *config.Config, sel *registry.Selection, params map[string]string) *report.Report {
	log := logging.New("dispatcher")

	runID := sharedctx.GetRunID(ctx)
	if runID == "" {
		runID = sharedctx.GenerateRunID()
		ctx = sharedctx.WithRunID(ctx, runID)
	}

	rep := &report.Report{RunID: runID, StartedAt: d.now()}
	for _, q := range sel.Queries {
		if sel.IsForced(q.Name) {
			rep.Forced = q.Name
		}
	}
	if len(sel.Queries) == 0 {
		return rep
	}

	ctx, span := observability.StartSpan(ctx, "yetii.run", map[string]string{
		observability.AttrRunID: runID,
	})
	defer span.End()

	groups := groupByConnection(cfg, sel.Queries)
	results := make([]report.ExecutionResult, len(sel.Queries))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var stop *halt
	if cfg.Settings.ErrorHandling.OnQueryError == config.OnErrorStop {
		stop = &halt{}
	}

	limit := len(groups)
	if n := cfg.Settings.MaxParallel; n > 0 && n < limit {
		limit = n
	}
	log.Infof("Running %d quer%s on %d connection(s), %d at a time", len(sel.Queries), plural(len(sel.Queries)), len(groups), limit)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, grp := range groups {
		g.Go(func() error {
			d.runGroup(runCtx, cfg, grp, params, results, stop, cancelRun)
			return nil
		})
	}
	_ = g.Wait()

	rep.Results = results
	rep.Duration = d.now().Sub(rep.StartedAt)
	return rep
}

func groupByConnection(cfg *config.Config, queries []*config.QueryDefinition) []*group {
	var groups []*group
	byID := make(map[string]*group)
	for i, q := range queries {
		grp, ok := byID[q.ConnectionID]
		if !ok {
			conn, found := cfg.Connection(q.ConnectionID)
			if !found {
				// A validated config always resolves; keep the id so the failure is
				// reported against the right connection.
				conn = &config.Connection{ID: q.ConnectionID}
			}
			grp = &group{conn: conn}
			byID[q.ConnectionID] = grp
			groups = append(groups, grp)
		}
		grp.queries = append(grp.queries, q)
		grp.slots = append(grp.slots, i)
	}
	return groups
}

// fatalCause is the failure that made a connection unusable for the rest of the run.
type fatalCause struct {
	query string
	err   error
}

func (d *Dispatcher) runGroup(
	ctx context.Context,
	cfg *config.Config,
	grp *group,
	params map[string]string,
	results []report.ExecutionResult,
	stop *halt,
	cancelRun context.CancelFunc,
) {
	log := logging.New("dispatcher").With("connection", grp.conn.ID)
	ctx = sharedctx.WithConnectionID(ctx, grp.conn.ID)

	pool, err := d.newPool(ctx, cfg, grp.conn)
	if err != nil {
		for i, q := range grp.queries {
			results[grp.slots[i]] = report.Failed(q.Name, grp.conn.ID, err, d.now(), d.now())
		}
		return
	}
	defer pool.Close()

	var fatal *fatalCause
	for i, q := range grp.queries {
		slot := grp.slots[i]

		if fatal != nil {
			log.Warnf("Skipping query '%s': connection failed during '%s'", q.Name, fatal.query)
			results[slot] = report.Skipped(q.Name, grp.conn.ID, fatal.query, fatal.err)
			continue
		}
		if ctx.Err() != nil {
			results[slot] = d.skippedByRun(q, grp.conn.ID, stop, ctx.Err())
			continue
		}

		res := d.execute(ctx, cfg, pool, grp.conn, q, params)
		if res.Status == report.StatusFailed && ctx.Err() != nil && !errors.HasCode(res.Err, errors.ErrCodeTimeout) {
			// The statement was interrupted by the run ending, not by its own outcome.
			res = d.skippedByRun(q, grp.conn.ID, stop, ctx.Err())
		}
		results[slot] = res

		if res.Status != report.StatusFailed {
			continue
		}
		if errors.IsConnectionFatal(res.Err) {
			fatal = &fatalCause{query: q.Name, err: res.Err}
		}
		if stop != nil && stop.set(q.Name, res.Err) {
			log.Warnf("Stopping run after query '%s' failed", q.Name)
			cancelRun()
		}
	}
}

func (d *Dispatcher) skippedByRun(q *config.QueryDefinition, connectionID string, stop *halt, cause error) report.ExecutionResult {
	if query, err := stop.cause(); query != "" {
		return report.Skipped(q.Name, connectionID, query, err)
	}
	return report.Skipped(q.Name, connectionID, "",
		errors.NewAppError(errors.ErrCodeCanceled, "run canceled before the query completed", cause))
}

// execute runs one query with its own deadline and returns its result. The handle
// it acquires is released when reusable and destroyed otherwise, before returning.
func (d *Dispatcher) execute(
	ctx context.Context,
	cfg *config.Config,
	pool *connPool,
	conn *config.Connection,
	q *config.QueryDefinition,
	params map[string]string,
) report.ExecutionResult {
	log := logging.New("dispatcher").With("query", q.Name)
	ctx = sharedctx.WithQueryName(ctx, q.Name)

	ctx, span := observability.StartSpan(ctx, "yetii.query", map[string]string{
		observability.AttrRunID:        sharedctx.GetRunID(ctx),
		observability.AttrQueryName:    q.Name,
		observability.AttrConnectionID: conn.ID,
		observability.AttrBackendKind:  string(conn.BackendKind),
	})

	timeout := cfg.QueryTimeout(q)
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := d.now()
	log.Infof("Running query '%s' on connection '%s'", q.Name, conn.ID)

	rows, err := pool.with(qctx, func(c interfaces.Conn) (int64, error) {
		return runStatement(qctx, c, q, params)
	})
	if err != nil && qctx.Err() == context.DeadlineExceeded && ctx.Err() == nil &&
		!errors.IsConnectionFatal(err) && !errors.HasCode(err, errors.ErrCodeTimeout) {
		err = errors.WrapError(errors.ErrCodeTimeout, fmt.Sprintf("query '%s' exceeded its %s deadline", q.Name, timeout), err)
	}
	finished := d.now()

	status := report.StatusSucceeded
	var res report.ExecutionResult
	if err != nil {
		status = report.StatusFailed
		res = report.Failed(q.Name, conn.ID, err, started, finished)
		log.Warnf("Query '%s' failed: %v", q.Name, err)
	} else {
		res = report.Succeeded(q.Name, conn.ID, rows, started, finished)
		log.Debugf("Query '%s' finished in %s, %d row(s)", q.Name, res.Duration, rows)
	}

	observability.RecordQueryExecution(ctx, q.Name, conn.ID, string(status), rows, float64(res.Duration.Microseconds())/1000)
	observability.EndSpan(span, string(errors.Code(err)), err)
	return res
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
