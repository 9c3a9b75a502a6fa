package dispatcher

import (
	"context"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/runtime/binder"
)

// runStatement compiles q for conn's bind style and drives it through prepare,
// bind, execute and fetch. It returns the rows affected or returned.
func runStatement(ctx context.Context, conn interfaces.Conn, q *config.QueryDefinition, params map[string]string) (int64, error) {
	compiled, err := binder.Compile(q, params, conn.BindStyle())
	if err != nil {
		return 0, err
	}

	stmt, err := conn.Prepare(ctx, compiled.Text)
	if err != nil {
		return 0, err
	}
	if err := conn.Bind(stmt, compiled.Args); err != nil {
		return 0, binder.NewBindError(q, "arguments do not match the prepared statement", err)
	}

	res, err := conn.Execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return conn.Fetch(ctx, res)
}
