package binder

import (
	"regexp"
	"sort"
	"strconv"
)

// Syntax is the placeholder notation a template uses.
type Syntax int

const (
	// SyntaxNone means the template has no placeholders.
	SyntaxNone Syntax = iota
	// SyntaxNamed is {{ params.NAME }}.
	SyntaxNamed
	// SyntaxPositional is $N, 1-based into the declared parameter list.
	SyntaxPositional
	// SyntaxMixed means both notations appear, which is never valid.
	SyntaxMixed
)

var (
	// Named pattern: {{ params.NAME }}
	namedPattern = regexp.MustCompile(`\{\{\s*params\.([a-zA-Z][a-zA-Z0-9_-]*)\s*\}\}`)
	// Positional pattern: $1, $2, ...
	positionalPattern = regexp.MustCompile(`\$([0-9]+)`)
)

// Reference is one placeholder occurrence in a template.
type Reference struct {
	// Name is set for named placeholders.
	Name string
	// Position is set (1-based) for positional placeholders.
	Position int
	// Start and End are byte offsets of the placeholder text.
	Start int
	End   int
}

// Scan returns every placeholder occurrence of template in textual order together
// with the notation in use.
func Scan(template string) ([]Reference, Syntax) {
	var refs []Reference
	named, positional := false, false

	for _, m := range namedPattern.FindAllStringSubmatchIndex(template, -1) {
		named = true
		refs = append(refs, Reference{
			Name:  template[m[2]:m[3]],
			Start: m[0],
			End:   m[1],
		})
	}
	for _, m := range positionalPattern.FindAllStringSubmatchIndex(template, -1) {
		positional = true
		pos, err := strconv.Atoi(template[m[2]:m[3]])
		if err != nil {
			// Only reachable for absurdly long digit runs; treat as out of range.
			pos = -1
		}
		refs = append(refs, Reference{
			Position: pos,
			Start:    m[0],
			End:      m[1],
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })

	switch {
	case named && positional:
		return refs, SyntaxMixed
	case named:
		return refs, SyntaxNamed
	case positional:
		return refs, SyntaxPositional
	}
	return refs, SyntaxNone
}

// ReferencedNames returns the unique parameter names a named template references,
// in order of first appearance.
func ReferencedNames(refs []Reference) []string {
	seen := make(map[string]bool)
	var result []string
	for _, r := range refs {
		if r.Name == "" || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		result = append(result, r.Name)
	}
	return result
}

// ReferencedPositions returns the unique positions a positional template references,
// in order of first appearance.
func ReferencedPositions(refs []Reference) []int {
	seen := make(map[int]bool)
	var result []int
	for _, r := range refs {
		if r.Name != "" || seen[r.Position] {
			continue
		}
		seen[r.Position] = true
		result = append(result, r.Position)
	}
	return result
}
