package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/puddle/v2"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/infrastructure/logging"
	"github.com/yetii/yetii/core/observability"
	"github.com/yetii/yetii/core/shared/errors"
)

const closeTimeout = 5 * time.Second

// connPool is the handle pool of one connection for the duration of a run.
type connPool struct {
	conn *config.Connection
	pool *puddle.Pool[interfaces.Conn]
}

func (d *Dispatcher) newPool(ctx context.Context, cfg *config.Config, conn *config.Connection) (*connPool, error) {
	log := logging.New("pool").With("connection", conn.ID)

	maxSize := cfg.Settings.Pool.MaxConnections
	if maxSize < 1 {
		maxSize = config.DefaultMaxConnections
	}
	retries := cfg.Settings.Pool.RetryAttempts
	if retries < 0 {
		retries = 0
	}
	connectTimeout := cfg.QueryTimeout(nil)

	constructor := func(ctx context.Context) (interfaces.Conn, error) {
		adapter, ok := d.adapters[conn.BackendKind]
		if !ok {
			return nil, errors.NewAppError(errors.ErrCodeDriverUnavailable,
				fmt.Sprintf("connection '%s': no adapter for backend kind '%s'", conn.ID, conn.BackendKind), nil)
		}

		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		connect := func() (interfaces.Conn, error) {
			c, err := adapter.Connect(ctx, conn)
			if err != nil && (errors.HasCode(err, errors.ErrCodeDriverUnavailable) || ctx.Err() != nil) {
				return nil, backoff.Permanent(err)
			}
			return c, err
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), uint64(retries)), ctx)
		return backoff.RetryNotifyWithData(connect, policy, func(err error, wait time.Duration) {
			log.Warnf("Connecting to '%s' failed, retrying in %s: %v", conn.ID, wait.Round(time.Millisecond), err)
		})
	}

	destructor := func(c interfaces.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			log.Warnf("Closing connection '%s': %v", conn.ID, err)
		}
	}

	pool, err := puddle.NewPool(&puddle.Config[interfaces.Conn]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(maxSize),
	})
	if err != nil {
		return nil, errors.NewAppError(errors.ErrCodeInternalError, fmt.Sprintf("connection '%s': create pool", conn.ID), err)
	}
	log.Debugf("Pool for '%s' ready (max %d handle(s), %d retr%s)", conn.ID, maxSize, retries, plural(retries))
	return &connPool{conn: conn, pool: pool}, nil
}

// with acquires a handle, runs fn on it and gives the handle back: released to the
// pool when it is still reusable, destroyed otherwise.
func (p *connPool) with(ctx context.Context, fn func(interfaces.Conn) (int64, error)) (int64, error) {
	acquireCtx, span := observability.StartSpan(ctx, "yetii.connection.acquire", map[string]string{
		observability.AttrConnectionID: p.conn.ID,
		observability.AttrBackendKind:  string(p.conn.BackendKind),
	})
	started := time.Now()
	res, err := p.pool.Acquire(acquireCtx)
	observability.RecordConnectionAcquire(ctx, p.conn.ID, string(p.conn.BackendKind), err == nil,
		float64(time.Since(started).Microseconds())/1000)
	if err != nil {
		err = p.acquireError(err)
		observability.EndSpan(span, string(errors.Code(err)), err)
		return 0, err
	}
	observability.EndSpan(span, "", nil)

	conn := res.Value()
	defer func() {
		if conn.Reusable() {
			res.Release()
		} else {
			res.Destroy()
		}
	}()
	return fn(conn)
}

func (p *connPool) acquireError(err error) error {
	if errors.Code(err) != "" {
		return err
	}
	return errors.NewAppError(errors.ErrCodeConnectionFailed, fmt.Sprintf("connection '%s': could not acquire a connection", p.conn.ID), err)
}

// Close destroys every pooled handle. All handles must have been given back.
func (p *connPool) Close() {
	p.pool.Close()
}
