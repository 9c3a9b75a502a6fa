// Package registry selects the queries a run executes.
package registry

import (
	"fmt"
	"strings"

	"github.com/yetii/yetii/core/config"
	"github.com/yetii/yetii/core/shared/errors"
)

// Selection is the resolved query set of one run.
type Selection struct {
	Queries []*config.QueryDefinition
	// Requested is the name passed with --query, empty for a run-all.
	Requested string
	// Forced is true when a disabled query was explicitly requested with --force.
	Forced bool
}

// Resolve returns the queries to run. With a name it returns exactly that query;
// a disabled one is refused unless force is set. Without a name it returns every
// enabled query in declaration order, and force never adds disabled ones.
func Resolve(cfg *config.Config, name string, force bool) (*Selection, error) {
	if name == "" {
		sel := &Selection{}
		for _, q := range cfg.Queries {
			if q.Enabled {
				sel.Queries = append(sel.Queries, q)
			}
		}
		return sel, nil
	}

	q, ok := cfg.Query(name)
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeQueryNotFound,
			fmt.Sprintf("query '%s' not found. Defined queries: %s", name, strings.Join(queryNames(cfg), ", ")), nil)
	}
	if !q.Enabled && !force {
		return nil, errors.NewAppError(errors.ErrCodeQueryDisabled,
			fmt.Sprintf("query '%s' is disabled; pass --force to run it anyway", name), nil)
	}
	return &Selection{Queries: []*config.QueryDefinition{q}, Requested: name, Forced: force}, nil
}

// IsForced reports whether a failure of q is downgraded to a warning.
func (s *Selection) IsForced(q string) bool {
	return s.Forced && s.Requested == q
}

func queryNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.Queries))
	for i, q := range cfg.Queries {
		names[i] = q.Name
	}
	if len(names) == 0 {
		return []string{"(none)"}
	}
	return names
}
