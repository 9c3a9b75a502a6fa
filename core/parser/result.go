package parser

import (
	"fmt"
	"strings"

	"github.com/yetii/yetii/core/logger"
)

// ValidationError is one problem found in a configuration document.
type ValidationError struct {
	// Path locates the offending node, e.g. "queries[2].connection_id".
	Path    string
	Message string
	// Line is the 1-based line of the node or of its nearest ancestor, 0 if unknown.
	Line int
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		if e.Line > 0 {
			fmt.Fprintf(&b, " (line %d)", e.Line)
		}
		b.WriteString(": ")
	} else if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationResult is the ordered list of every error found in one validation pass.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid reports whether no errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error implements the error interface.
func (r ValidationResult) Error() string {
	switch len(r.Errors) {
	case 0:
		return ""
	case 1:
		return "validation failed: " + r.Errors[0].String()
	}
	return fmt.Sprintf("validation failed with %d errors", len(r.Errors))
}

// Located converts the errors for console rendering.
func (r ValidationResult) Located() []logger.Located {
	out := make([]logger.Located, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = logger.Located{Path: e.Path, Line: e.Line, Message: e.Message}
	}
	return out
}
