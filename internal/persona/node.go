// Package persona holds the personality profile as a typed tree. Leaves carry
// a value and the description used to ask a model for it; groups carry named
// children in document order; lists carry example exchanges.
package persona

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownPath  = errors.New("unknown persona path")
	ErrNotGroup     = errors.New("persona path descends into a non-group node")
	ErrTypeMismatch = errors.New("persona value type mismatch")
)

// Node is one of *Leaf, *Group or *List.
type Node interface {
	kind() string
}

// Leaf is a fillable field.
type Leaf struct {
	Value       any
	Description string
}

// Group is an ordered set of named children.
type Group struct {
	keys     []string
	children map[string]Node
}

// List holds example items such as {user_message, your_response} pairs.
type List struct {
	Items []map[string]string
}

func (*Leaf) kind() string  { return "leaf" }
func (*Group) kind() string { return "group" }
func (*List) kind() string  { return "list" }

func NewGroup() *Group {
	return &Group{children: make(map[string]Node)}
}

// Put adds or replaces a child. New keys are appended to the order.
func (g *Group) Put(key string, n Node) {
	if _, ok := g.children[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.children[key] = n
}

func (g *Group) Child(key string) (Node, bool) {
	n, ok := g.children[key]
	return n, ok
}

// Keys returns child names in document order.
func (g *Group) Keys() []string { return slices.Clone(g.keys) }

func (g *Group) Len() int { return len(g.keys) }

// Lookup resolves a dotted path such as "user_profile.basic_info.name".
func (g *Group) Lookup(path string) (Node, error) {
	parts := strings.Split(path, ".")
	cur := g
	for i, part := range parts {
		n, ok := cur.children[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
		if i == len(parts)-1 {
			return n, nil
		}
		next, ok := n.(*Group)
		if !ok {
			return nil, fmt.Errorf("%w: %s at %s", ErrNotGroup, path, strings.Join(parts[:i+1], "."))
		}
		cur = next
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPath, path)
}

// Clone deep-copies the tree so a template can be filled without mutating it.
func (g *Group) Clone() *Group {
	out := NewGroup()
	for _, k := range g.keys {
		out.Put(k, cloneNode(g.children[k]))
	}
	return out
}

func cloneNode(n Node) Node {
	switch v := n.(type) {
	case *Leaf:
		c := *v
		if s, ok := v.Value.([]any); ok {
			c.Value = slices.Clone(s)
		}
		return &c
	case *Group:
		return v.Clone()
	case *List:
		items := make([]map[string]string, len(v.Items))
		for i, it := range v.Items {
			items[i] = make(map[string]string, len(it))
			for k, s := range it {
				items[i][k] = s
			}
		}
		return &List{Items: items}
	default:
		panic(fmt.Sprintf("persona: unknown node %T", n))
	}
}
