// Package binder turns a query template and its declared parameters into a
// driver-ready statement: placeholders are rewritten into the target bind style and
// values are coerced to their declared types.
package binder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/shared/errors"
)

// Style is how a compiled statement marks its bind slots.
type Style int

const (
	// StyleQuestion emits ? for every slot (MySQL, SQLite, ODBC).
	StyleQuestion Style = iota
	// StyleDollar emits $1, $2, ... (PostgreSQL).
	StyleDollar
	// StyleInlineJSON renders every value in place as a JSON literal and emits no
	// bind arguments. Used for JSON command documents.
	StyleInlineJSON
	// StyleMarker emits SlotMarker for every slot, for command languages where ?
	// is ordinary text (Redis).
	StyleMarker
)

// SlotMarker is the private-use rune StyleMarker writes in place of a placeholder.
const SlotMarker = '\uE000'

func (s Style) String() string {
	switch s {
	case StyleQuestion:
		return "question"
	case StyleDollar:
		return "dollar"
	case StyleInlineJSON:
		return "inline-json"
	case StyleMarker:
		return "marker"
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

// Statement is a compiled template ready to hand to a connection.
type Statement struct {
	Text string
	Args []any
}

// Values resolves the bound value of every declared parameter of q. overrides take
// precedence over configured values and are coerced from their string form.
func Values(q *config.QueryDefinition, overrides map[string]string) (map[string]any, error) {
	values := make(map[string]any, len(q.Parameters))
	for _, p := range q.Parameters {
		var (
			raw any
			has bool
		)
		if s, ok := overrides[p.Name]; ok {
			raw, has = s, true
		} else if p.HasValue {
			raw, has = p.Value, true
		}

		if !has || raw == nil {
			if !p.Nullable {
				return nil, bindError(q, fmt.Sprintf("parameter '%s' has no value and is not nullable", p.Name), nil)
			}
			values[p.Name] = nil
			continue
		}

		v, err := Coerce(raw, p.Type)
		if err != nil {
			return nil, bindError(q, fmt.Sprintf("parameter '%s' is not a valid %s", p.Name, p.Type), err)
		}
		values[p.Name] = v
	}
	return values, nil
}

// Compile binds q for a connection using style.
func Compile(q *config.QueryDefinition, overrides map[string]string, style Style) (*Statement, error) {
	values, err := Values(q, overrides)
	if err != nil {
		return nil, err
	}

	refs, syntax := Scan(q.Template)
	if syntax == SyntaxMixed {
		return nil, bindError(q, "template mixes named and positional placeholders", nil)
	}

	var (
		b    strings.Builder
		args []any
		last int
	)
	for _, ref := range refs {
		name := ref.Name
		if name == "" {
			if ref.Position < 1 || ref.Position > len(q.Parameters) {
				return nil, bindError(q, fmt.Sprintf("placeholder $%d has no matching parameter", ref.Position), nil)
			}
			name = q.Parameters[ref.Position-1].Name
		}
		value, ok := values[name]
		if !ok {
			return nil, bindError(q, fmt.Sprintf("placeholder '%s' has no matching parameter", name), nil)
		}

		b.WriteString(q.Template[last:ref.Start])
		switch style {
		case StyleDollar:
			args = append(args, value)
			fmt.Fprintf(&b, "$%d", len(args))
		case StyleInlineJSON:
			literal, err := json.Marshal(value)
			if err != nil {
				return nil, bindError(q, fmt.Sprintf("parameter '%s' cannot be rendered as JSON", name), err)
			}
			b.Write(literal)
		case StyleMarker:
			args = append(args, value)
			b.WriteRune(SlotMarker)
		default:
			args = append(args, value)
			b.WriteString("?")
		}
		last = ref.End
	}
	b.WriteString(q.Template[last:])

	return &Statement{Text: b.String(), Args: args}, nil
}

// NewBindError builds a BIND_ERROR for q.
func NewBindError(q *config.QueryDefinition, message string, err error) error {
	return bindError(q, message, err)
}

func bindError(q *config.QueryDefinition, message string, err error) error {
	return errors.NewAppError(errors.ErrCodeBind, fmt.Sprintf("query '%s': %s", q.Name, message), err)
}
