// Package schema renders the database schema descriptions given to the code
// generator. An index file maps collection names to per-collection schema
// documents; each document is flattened to one line per field.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fieldSeparator sits between a field's types and its description.
const fieldSeparator = " — "

// Source is one collection's schema document.
type Source struct {
	Collection string
	Path       string
}

// Index lists schema documents in file order.
type Index struct {
	Sources []Source
}

// Collections returns the collection names in index order.
func (idx Index) Collections() []string {
	out := make([]string, len(idx.Sources))
	for i, s := range idx.Sources {
		out[i] = s.Collection
	}
	return out
}

// LoadIndex reads an index file of the form
//
//	schema_paths:
//	  orders: schemas/orders.json
//	  products: schemas/products.json
//
// Relative paths are resolved against the index file's directory.
func LoadIndex(path string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Index{}, fmt.Errorf("reading schema index: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Index{}, fmt.Errorf("parsing schema index %s: %w", path, err)
	}
	paths := lookup(document(&root), "schema_paths")
	if paths == nil {
		return Index{}, nil
	}
	if paths.Kind != yaml.MappingNode {
		return Index{}, fmt.Errorf("parsing schema index %s: schema_paths is not a mapping", path)
	}

	base := filepath.Dir(path)
	var idx Index
	for i := 0; i+1 < len(paths.Content); i += 2 {
		name, p := paths.Content[i].Value, paths.Content[i+1].Value
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		idx.Sources = append(idx.Sources, Source{Collection: name, Path: p})
	}
	return idx, nil
}

// Render flattens every collection in idx, in order. A collection whose
// document cannot be read or parsed is rendered as its header followed by an
// "Error:" line, so one bad file does not hide the rest.
func Render(idx Index) string {
	parts := make([]string, 0, len(idx.Sources))
	for _, src := range idx.Sources {
		data, err := os.ReadFile(src.Path)
		if err == nil {
			var text string
			if text, err = RenderCollection(src.Collection, data); err == nil {
				parts = append(parts, text)
				continue
			}
		}
		parts = append(parts, fmt.Sprintf("## %s\nError: %v", src.Collection, err))
	}
	return strings.Join(parts, "\n")
}

// Load reads the index at path and renders all of its collections.
func Load(path string) (Index, string, error) {
	idx, err := LoadIndex(path)
	if err != nil {
		return Index{}, "", err
	}
	return idx, Render(idx), nil
}

// RenderCollection flattens one schema document, JSON or YAML, whose
// top-level "fields" mapping describes the collection. Each field becomes
//
//	  name: type1,type2 — description
//
// and fields of array elements are prefixed with "parent[].".
func RenderCollection(collection string, doc []byte) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return "", fmt.Errorf("parsing schema document: %w", err)
	}
	lines := []string{"## " + collection}
	if fields := lookup(document(&root), "fields"); fields != nil && fields.Kind == yaml.MappingNode {
		lines = appendFields(lines, fields, "")
	}
	return strings.Join(lines, "\n"), nil
}

func appendFields(lines []string, fields *yaml.Node, prefix string) []string {
	for i := 0; i+1 < len(fields.Content); i += 2 {
		name, info := fields.Content[i].Value, fields.Content[i+1]
		if info.Kind != yaml.MappingNode {
			continue
		}
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		lines = append(lines, "  "+full+": "+types(info)+fieldSeparator+description(info))

		items := lookup(info, "items")
		if items == nil || items.Kind != yaml.MappingNode {
			continue
		}
		if lookup(items, "type") != nil && !hasMappingValue(items) {
			continue
		}
		lines = appendFields(lines, items, full+"[]")
	}
	return lines
}

func types(info *yaml.Node) string {
	t := lookup(info, "type")
	switch {
	case t == nil:
		return "?"
	case t.Kind == yaml.SequenceNode:
		vals := make([]string, 0, len(t.Content))
		for _, v := range t.Content {
			vals = append(vals, v.Value)
		}
		return strings.Join(vals, ",")
	default:
		return t.Value
	}
}

func description(info *yaml.Node) string {
	d := lookup(info, "description")
	switch {
	case d == nil:
		return ""
	case d.Kind == yaml.SequenceNode:
		if len(d.Content) == 0 {
			return ""
		}
		return d.Content[0].Value
	default:
		return d.Value
	}
}

func hasMappingValue(m *yaml.Node) bool {
	for i := 1; i < len(m.Content); i += 2 {
		if m.Content[i].Kind == yaml.MappingNode {
			return true
		}
	}
	return false
}

// document unwraps the document node yaml.Unmarshal produces.
func document(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

// lookup returns the value for key in mapping node m, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
