package connectors

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/runtime/binder"
	"github.com/yetii/yetii/core/shared/errors"
)

var pgStatementSeq atomic.Uint64

func dialPostgres(ctx context.Context, c *config.Connection, password string) (interfaces.Conn, error) {
	dsn, err := buildDSN("pgx", c.DSN, c.Options, "")
	if err != nil {
		return nil, connectionFailed(c, "invalid address", err)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, connectionFailed(c, "invalid address", err)
	}
	if password != "" {
		cfg.Password = password
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, connectionFailed(c, "failed to connect to postgres", err)
	}
	return &pgConn{id: c.ID, conn: conn}, nil
}

// pgConn speaks the PostgreSQL protocol through a single pgx connection.
type pgConn struct {
	id     string
	conn   *pgx.Conn
	broken bool
}

type pgStatement struct {
	name     string
	returned bool
}

func (c *pgConn) BindStyle() binder.Style {
	return binder.StyleDollar
}

func (c *pgConn) Prepare(ctx context.Context, text string) (*interfaces.Statement, error) {
	name := fmt.Sprintf("yetii_%d", pgStatementSeq.Add(1))
	sd, err := c.conn.Prepare(ctx, name, text)
	if err != nil {
		return nil, c.fail(ctx, "prepare", err)
	}
	return &interfaces.Statement{
		Text:     text,
		NumInput: len(sd.ParamOIDs),
		Handle:   &pgStatement{name: name, returned: len(sd.Fields) > 0},
	}, nil
}

func (c *pgConn) Bind(stmt *interfaces.Statement, args []any) error {
	if err := checkArity(stmt, args); err != nil {
		return err
	}
	stmt.Args = args
	return nil
}

func (c *pgConn) Execute(ctx context.Context, stmt *interfaces.Statement) (*interfaces.Result, error) {
	ps, ok := stmt.Handle.(*pgStatement)
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeInternalError, "statement was not prepared on this connection", nil)
	}

	if !ps.returned {
		tag, err := c.conn.Exec(ctx, ps.name, stmt.Args...)
		c.deallocate(ps.name)
		if err != nil {
			return nil, c.fail(ctx, "execute", err)
		}
		return &interfaces.Result{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := c.conn.Query(ctx, ps.name, stmt.Args...)
	if err != nil {
		c.deallocate(ps.name)
		return nil, c.fail(ctx, "execute", err)
	}
	return &interfaces.Result{Handle: &pgRows{rows: rows, statement: ps.name}}, nil
}

type pgRows struct {
	rows      pgx.Rows
	statement string
}

func (c *pgConn) Fetch(ctx context.Context, res *interfaces.Result) (int64, error) {
	pr, ok := res.Handle.(*pgRows)
	if !ok {
		return res.RowsAffected, nil
	}
	defer c.deallocate(pr.statement)

	var count int64
	for pr.rows.Next() {
		count++
	}
	pr.rows.Close()
	if err := pr.rows.Err(); err != nil {
		return count, c.fail(ctx, "fetch", err)
	}
	return count, nil
}

func (c *pgConn) Reusable() bool {
	return !c.broken && !c.conn.IsClosed()
}

func (c *pgConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// deallocate drops a prepared statement. Failures only matter when the session
// is gone, which Reusable reports on its own.
func (c *pgConn) deallocate(name string) {
	if c.broken || c.conn.IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.conn.Deallocate(ctx, name)
}

func (c *pgConn) fail(ctx context.Context, op string, err error) error {
	message := fmt.Sprintf("%s on connection '%s'", op, c.id)
	classified, broken := classifyStatementError(ctx, message, err)
	if c.conn.IsClosed() && !broken {
		classified, broken = errors.NewAppError(errors.ErrCodeConnectionFailed, message, err), true
	}
	if broken {
		c.broken = true
	}
	return classified
}
