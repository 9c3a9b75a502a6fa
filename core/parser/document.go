package parser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yetii/yetii/core/shared/errors"
)

// MaxDocumentDepth bounds how deeply nested a configuration document may be.
const MaxDocumentDepth = 64

// MinNodeBudget is the smallest number of nodes a document may expand to once
// aliases are resolved. Larger documents get aliasExpansionRatio nodes per source node.
const MinNodeBudget = 10000

const aliasExpansionRatio = 100

// Document is a parsed but unvalidated configuration document. Root holds the
// untyped tree (map[string]any, []any and scalars) and every node is indexed by its
// path so problems can be reported with a line number.
type Document struct {
	// Path is the file the document was read from, if any.
	Path  string
	Root  any
	nodes map[string]*yaml.Node
	// budget is the number of nodes build may still produce.
	budget int
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrCodeConfigParse, fmt.Sprintf("cannot read config file '%s'", path), err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse parses YAML content into a Document. Syntax errors, duplicate keys and
// excessive nesting are reported as CONFIG_PARSE errors.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewAppError(errors.ErrCodeConfigParse, "invalid YAML", err)
	}

	doc := &Document{nodes: make(map[string]*yaml.Node)}
	if root.Kind == 0 || len(root.Content) == 0 {
		return doc, nil
	}
	doc.budget = max(MinNodeBudget, aliasExpansionRatio*countNodes(&root))

	value, err := doc.build(root.Content[0], "", 1)
	if err != nil {
		return nil, err
	}
	doc.Root = value
	return doc, nil
}

// Line returns the line of the node at path, or of its nearest indexed ancestor.
// It returns 0 when nothing along the path is known.
func (d *Document) Line(path string) int {
	for {
		if n, ok := d.nodes[path]; ok {
			return n.Line
		}
		if path == "" {
			return 0
		}
		path = parentPath(path)
	}
}

// Node returns the YAML node at path.
func (d *Document) Node(path string) (*yaml.Node, bool) {
	n, ok := d.nodes[path]
	return n, ok
}

func (d *Document) build(n *yaml.Node, path string, depth int) (any, error) {
	if depth > MaxDocumentDepth {
		return nil, errors.NewAppError(errors.ErrCodeConfigParse,
			fmt.Sprintf("line %d: document nesting exceeds %d levels", n.Line, MaxDocumentDepth), nil)
	}
	d.budget--
	if d.budget < 0 {
		return nil, errors.NewAppError(errors.ErrCodeConfigParse,
			fmt.Sprintf("line %d: document expands to too many nodes (excessive aliasing)", n.Line), nil)
	}
	d.nodes[path] = n

	switch n.Kind {
	case yaml.AliasNode:
		return d.build(n.Alias, path, depth+1)

	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		firstSeen := make(map[string]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valueNode := n.Content[i], n.Content[i+1]

			if isMergeKey(keyNode) {
				if err := d.merge(out, valueNode, path, depth); err != nil {
					return nil, err
				}
				continue
			}

			key := keyNode.Value
			if line, dup := firstSeen[key]; dup {
				return nil, errors.NewAppError(errors.ErrCodeConfigParse,
					fmt.Sprintf("line %d: key '%s' already defined at line %d", keyNode.Line, key, line), nil)
			}
			firstSeen[key] = keyNode.Line

			value, err := d.build(valueNode, childPath(path, key), depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for i, item := range n.Content {
			value, err := d.build(item, indexPath(path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil

	default:
		var value any
		if err := n.Decode(&value); err != nil {
			return nil, errors.NewAppError(errors.ErrCodeConfigParse, fmt.Sprintf("line %d: invalid scalar", n.Line), err)
		}
		return value, nil
	}
}

// merge applies a YAML merge key (<<) without overriding keys set explicitly.
func (d *Document) merge(out map[string]any, n *yaml.Node, path string, depth int) error {
	value, err := d.build(n, path+"<<", depth+1)
	if err != nil {
		return err
	}
	delete(d.nodes, path+"<<")

	var sources []map[string]any
	switch v := value.(type) {
	case map[string]any:
		sources = append(sources, v)
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				sources = append(sources, m)
			}
		}
	}
	if len(sources) == 0 {
		return errors.NewAppError(errors.ErrCodeConfigParse,
			fmt.Sprintf("line %d: merge key requires a mapping or a list of mappings", n.Line), nil)
	}

	for _, src := range sources {
		for k, v := range src {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return nil
}

// countNodes counts the nodes of the source tree without following aliases.
func countNodes(n *yaml.Node) int {
	total := 1
	for _, c := range n.Content {
		total += countNodes(c)
	}
	return total
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Value == "<<" && (n.Tag == "!!merge" || n.Style == 0)
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

func parentPath(path string) string {
	idx := strings.LastIndexAny(path, ".[")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
