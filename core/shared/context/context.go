package context

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RunIDKey is the context key for the run ID
	RunIDKey contextKey = "run_id"
	// ConnectionIDKey is the context key for the connection a query runs on
	ConnectionIDKey contextKey = "connection_id"
	// QueryNameKey is the context key for the query being executed
	QueryNameKey contextKey = "query_name"
)

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// WithConnectionID adds a connection ID to the context
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, connectionID)
}

// GetConnectionID retrieves the connection ID from context
func GetConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithQueryName adds a query name to the context
func WithQueryName(ctx context.Context, queryName string) context.Context {
	return context.WithValue(ctx, QueryNameKey, queryName)
}

// GetQueryName retrieves the query name from context
func GetQueryName(ctx context.Context) string {
	if name, ok := ctx.Value(QueryNameKey).(string); ok {
		return name
	}
	return ""
}

// GenerateRunID generates a unique run ID
func GenerateRunID() string {
	return uuid.NewString()
}
