package connectors

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/runtime/binder"
	"github.com/yetii/yetii/core/shared/errors"
)

// GenericAdapter opens connections through database/sql drivers registered in the
// process.
type GenericAdapter struct {
	open    func(driverName, dsn string) (*sql.DB, error)
	drivers func() []string
}

// GenericOption configures a GenericAdapter.
type GenericOption func(*GenericAdapter)

// WithOpener replaces sql.Open.
func WithOpener(open func(driverName, dsn string) (*sql.DB, error)) GenericOption {
	return func(a *GenericAdapter) { a.open = open }
}

// WithDriverList replaces sql.Drivers as the list of installed drivers.
func WithDriverList(list func() []string) GenericOption {
	return func(a *GenericAdapter) { a.drivers = list }
}

// NewGenericAdapter creates the generic-driver adapter.
func NewGenericAdapter(opts ...GenericOption) *GenericAdapter {
	a := &GenericAdapter{open: sql.Open, drivers: sql.Drivers}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind implements interfaces.Adapter.
func (a *GenericAdapter) Kind() config.BackendKind {
	return config.BackendGenericDriver
}

// Connect implements interfaces.Adapter. Every handle owns a *sql.DB limited to a
// single physical connection so a pooled handle maps to exactly one session.
func (a *GenericAdapter) Connect(ctx context.Context, c *config.Connection) (interfaces.Conn, error) {
	log := logger.New("connector:generic")

	if c.Driver == "" {
		return nil, driverUnavailable(c, "no database/sql driver could be determined from the DSN; set 'driver'")
	}
	if !slices.Contains(a.drivers(), c.Driver) {
		return nil, driverUnavailable(c, "database/sql driver '%s' is not installed", c.Driver)
	}

	password, err := resolveCredential(c)
	if err != nil {
		return nil, err
	}
	dsn, err := buildDSN(c.Driver, c.DSN, c.Options, password)
	if err != nil {
		return nil, connectionFailed(c, "invalid DSN", err)
	}

	log.Debugf("Opening %s connection '%s'", c.Driver, c.ID)
	db, err := a.open(c.Driver, dsn)
	if err != nil {
		return nil, driverUnavailable(c, "%v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, connectionFailed(c, "failed to open connection", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, connectionFailed(c, "failed to ping database", err)
	}

	log.Debugf("Connection '%s' opened", c.ID)
	return &genericConn{id: c.ID, driver: c.Driver, db: db, conn: conn}, nil
}

type genericConn struct {
	id     string
	driver string
	db     *sql.DB
	conn   *sql.Conn
	stmt   *sql.Stmt
	broken bool
}

func (c *genericConn) BindStyle() binder.Style {
	switch c.driver {
	case "postgres", "pgx", "pgx/v5":
		return binder.StyleDollar
	}
	return binder.StyleQuestion
}

func (c *genericConn) Prepare(ctx context.Context, text string) (*interfaces.Statement, error) {
	c.closeStmt()
	stmt, err := c.conn.PrepareContext(ctx, text)
	if err != nil {
		return nil, c.fail(ctx, "prepare", err)
	}
	c.stmt = stmt
	return &interfaces.Statement{Text: text, NumInput: -1, Handle: stmt}, nil
}

func (c *genericConn) Bind(stmt *interfaces.Statement, args []any) error {
	if err := checkArity(stmt, args); err != nil {
		return err
	}
	stmt.Args = args
	return nil
}

func (c *genericConn) Execute(ctx context.Context, stmt *interfaces.Statement) (*interfaces.Result, error) {
	prepared, ok := stmt.Handle.(*sql.Stmt)
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeInternalError, "statement was not prepared on this connection", nil)
	}

	if returnsRows(stmt.Text) {
		rows, err := prepared.QueryContext(ctx, stmt.Args...)
		if err != nil {
			return nil, c.fail(ctx, "execute", err)
		}
		return &interfaces.Result{Handle: rows}, nil
	}

	res, err := prepared.ExecContext(ctx, stmt.Args...)
	if err != nil {
		return nil, c.fail(ctx, "execute", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &interfaces.Result{RowsAffected: affected}, nil
}

func (c *genericConn) Fetch(ctx context.Context, res *interfaces.Result) (int64, error) {
	defer c.closeStmt()

	rows, ok := res.Handle.(*sql.Rows)
	if !ok {
		return res.RowsAffected, nil
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return count, c.fail(ctx, "fetch", err)
	}
	if err := ctx.Err(); err != nil {
		return count, c.fail(ctx, "fetch", err)
	}
	return count, nil
}

func (c *genericConn) Reusable() bool {
	return !c.broken
}

func (c *genericConn) Close(ctx context.Context) error {
	c.closeStmt()
	var errs []error
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !stderrors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close connection '%s': %w", c.id, stderrors.Join(errs...))
	}
	return nil
}

func (c *genericConn) closeStmt() {
	if c.stmt != nil {
		_ = c.stmt.Close()
		c.stmt = nil
	}
}

// fail classifies err and marks the handle unusable when the session may be
// in an unknown state.
func (c *genericConn) fail(ctx context.Context, op string, err error) error {
	classified, broken := classifyStatementError(ctx, fmt.Sprintf("%s on connection '%s'", op, c.id), err)
	if broken {
		c.broken = true
	}
	return classified
}
