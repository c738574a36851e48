package persona

import (
	"errors"
	"fmt"
	"strings"
)

// SkipChildren returned from a WalkFunc on a group stops descent into it.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every node below the root, depth first, in document
// order. path is the dotted path of the node.
type WalkFunc func(path string, n Node) error

// Walk visits every node under root.
func Walk(root *Group, fn WalkFunc) error {
	return walkGroup(root, "", fn)
}

func walkGroup(g *Group, prefix string, fn WalkFunc) error {
	for _, key := range g.keys {
		path := joinPath(prefix, key)
		child := g.children[key]
		err := fn(path, child)
		switch {
		case errors.Is(err, SkipChildren):
			continue
		case err != nil:
			return err
		}
		switch v := child.(type) {
		case *Group:
			if err := walkGroup(v, path, fn); err != nil {
				return err
			}
		case *Leaf, *List:
		default:
			return fmt.Errorf("walk persona: unknown node %T at %s", child, path)
		}
	}
	return nil
}

// Field is a fillable leaf and what it means.
type Field struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Fields lists every leaf in document order.
func Fields(root *Group) []Field {
	var out []Field
	_ = Walk(root, func(path string, n Node) error {
		if leaf, ok := n.(*Leaf); ok {
			out = append(out, Field{Path: path, Description: leaf.Description})
		}
		return nil
	})
	return out
}

// Set assigns value at a dotted path. The path must already exist. A leaf
// accepts scalars and lists of scalars; a list accepts a sequence of objects.
func Set(root *Group, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrUnknownPath)
	}
	n, err := root.Lookup(path)
	if err != nil {
		return err
	}

	switch target := n.(type) {
	case *Leaf:
		if !isLeafValue(value) {
			return fmt.Errorf("%w: %s expects a scalar, got %T", ErrTypeMismatch, path, value)
		}
		target.Value = value
		return nil
	case *List:
		items, ok := listItems(value)
		if !ok {
			return fmt.Errorf("%w: %s expects a list of objects, got %T", ErrTypeMismatch, path, value)
		}
		target.Items = items
		return nil
	case *Group:
		return fmt.Errorf("%w: %s is a group", ErrTypeMismatch, path)
	default:
		return fmt.Errorf("set persona: unknown node %T at %s", n, path)
	}
}

func isLeafValue(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	case []any:
		for _, e := range t {
			if !isLeafValue(e) {
				return false
			}
			if _, nested := e.([]any); nested {
				return false
			}
		}
		return true
	case []string:
		return true
	default:
		return false
	}
}

func listItems(v any) ([]map[string]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]string, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, stringMap(m))
	}
	return out, true
}

// Problem describes one structural difference between a profile and its
// template.
type Problem struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

const (
	ProblemMissing  = "missing"
	ProblemExtra    = "extra"
	ProblemMismatch = "type_mismatch"
)

func (p Problem) String() string { return p.Kind + ": " + p.Path }

// Validate compares cfg against template and reports missing fields, extra
// fields and nodes whose kind differs.
func Validate(cfg, template *Group) []Problem {
	var out []Problem
	validateGroup(cfg, template, "", &out)
	return out
}

func validateGroup(cfg, tmpl *Group, prefix string, out *[]Problem) {
	for _, key := range cfg.keys {
		if _, ok := tmpl.children[key]; !ok {
			*out = append(*out, Problem{Path: joinPath(prefix, key), Kind: ProblemExtra})
		}
	}
	for _, key := range tmpl.keys {
		path := joinPath(prefix, key)
		got, ok := cfg.children[key]
		if !ok {
			*out = append(*out, Problem{Path: path, Kind: ProblemMissing})
			continue
		}
		want := tmpl.children[key]
		if got.kind() != want.kind() {
			*out = append(*out, Problem{Path: path, Kind: ProblemMismatch})
			continue
		}
		if g, ok := want.(*Group); ok {
			validateGroup(got.(*Group), g, path, out)
		}
	}
}
