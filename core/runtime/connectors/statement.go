package connectors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/domain/interfaces"
	"github.com/yetii/yetii/core/shared/errors"
)

// rowKeywords are leading keywords of statements that produce a result set.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"VALUES":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
	"PRAGMA":   true,
	"TABLE":    true,
}

// returnsRows guesses whether text produces a result set from its leading keyword.
// Data-modifying statements with a RETURNING clause also produce rows.
func returnsRows(text string) bool {
	trimmed := strings.TrimLeftFunc(text, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	end := strings.IndexFunc(trimmed, func(r rune) bool { return !unicode.IsLetter(r) })
	keyword := trimmed
	if end >= 0 {
		keyword = trimmed[:end]
	}
	if rowKeywords[strings.ToUpper(keyword)] {
		return true
	}
	return strings.Contains(strings.ToUpper(text), " RETURNING ")
}

// checkArity fails with a BIND_ERROR when the backend reported a slot count that
// args does not match.
func checkArity(stmt *interfaces.Statement, args []any) error {
	if stmt.NumInput >= 0 && len(args) != stmt.NumInput {
		return errors.NewAppError(errors.ErrCodeBind,
			fmt.Sprintf("statement expects %d argument(s), got %d", stmt.NumInput, len(args)), nil)
	}
	return nil
}

// interrupted reports whether err left the statement half-run on its handle.
func interrupted(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled)
}

// classifyStatementError turns a driver error into an AppError. When ctx ended,
// the context's verdict wins over whatever message the driver produced. broken
// reports whether the handle must not serve another statement.
func classifyStatementError(ctx context.Context, message string, err error) (classified error, broken bool) {
	if ctxErr := ctx.Err(); ctxErr != nil && !interrupted(err) {
		err = stderrors.Join(ctxErr, err)
	}
	classified = errors.Classify(message, err)
	return classified, errors.IsConnectionFatal(classified) || interrupted(err)
}

func driverUnavailable(conn *config.Connection, format string, args ...any) error {
	return errors.NewAppError(errors.ErrCodeDriverUnavailable,
		fmt.Sprintf("connection '%s': %s", conn.ID, fmt.Sprintf(format, args...)), nil)
}

func connectionFailed(conn *config.Connection, message string, err error) error {
	return errors.NewAppError(errors.ErrCodeConnectionFailed, fmt.Sprintf("connection '%s': %s", conn.ID, message), err)
}
