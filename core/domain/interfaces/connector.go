package interfaces

import (
	"context"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/runtime/binder"
)

// Statement is a statement prepared on one connection handle.
type Statement struct {
	Text string
	// NumInput is the number of bind arguments the backend expects, -1 when the
	// backend does not report it.
	NumInput int
	// Args are the values attached by Bind.
	Args []any
	// Handle carries adapter-specific prepared state.
	Handle any
}

// Result is what Execute produced on the backend.
type Result struct {
	// RowsAffected is set for statements whose row count is known without fetching.
	RowsAffected int64
	// Handle carries adapter-specific cursor state consumed by Fetch.
	Handle any
}

// Conn is one live connection handle to a backend. A Conn never runs two
// statements at once; callers serialise access.
type Conn interface {
	// BindStyle is the placeholder style this backend expects in statement text.
	BindStyle() binder.Style

	// Prepare readies text for execution.
	Prepare(ctx context.Context, text string) (*Statement, error)

	// Bind attaches args to stmt, failing with a BIND_ERROR when their number does
	// not match what the backend expects.
	Bind(stmt *Statement, args []any) error

	// Execute runs a bound statement.
	Execute(ctx context.Context, stmt *Statement) (*Result, error)

	// Fetch consumes the result and returns the number of rows returned or
	// affected.
	Fetch(ctx context.Context, res *Result) (int64, error)

	// Reusable reports whether the handle may serve another statement. It turns
	// false once the handle broke or a statement was interrupted on it.
	Reusable() bool

	// Close releases the handle.
	Close(ctx context.Context) error
}

// Adapter opens connections for one backend kind.
type Adapter interface {
	Kind() config.BackendKind

	// Connect opens a new handle for conn. Failures carry DRIVER_UNAVAILABLE when
	// no driver or protocol implementation exists and CONNECTION_FAILED otherwise.
	Connect(ctx context.Context, conn *config.Connection) (Conn, error)
}
