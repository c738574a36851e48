package persona

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	keyValue       = "value"
	keyDescription = "description"
)

// Parse reads a YAML (or JSON) persona document. A mapping that holds both
// "value" and "description" becomes a Leaf; any other mapping becomes a Group;
// a sequence of mappings becomes a List; a bare scalar becomes a Leaf without
// a description.
func Parse(data []byte) (*Group, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("parse persona: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse persona: top level must be a mapping, got %s", kindName(root.Kind))
	}
	g, err := parseGroup(root, "")
	if err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	return g, nil
}

func parseGroup(n *yaml.Node, path string) (*Group, error) {
	g := NewGroup()
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		child, err := parseNode(n.Content[i+1], joinPath(path, key))
		if err != nil {
			return nil, err
		}
		g.Put(key, child)
	}
	return g, nil
}

func parseNode(n *yaml.Node, path string) (Node, error) {
	switch n.Kind {
	case yaml.MappingNode:
		if isLeafMapping(n) {
			return parseLeaf(n, path)
		}
		return parseGroup(n, path)
	case yaml.SequenceNode:
		return parseList(n, path)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &Leaf{Value: v}, nil
	case yaml.AliasNode:
		return parseNode(n.Alias, path)
	default:
		return nil, fmt.Errorf("%s: unsupported %s", path, kindName(n.Kind))
	}
}

func isLeafMapping(n *yaml.Node) bool {
	var hasValue, hasDesc bool
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch n.Content[i].Value {
		case keyValue:
			hasValue = true
		case keyDescription:
			hasDesc = true
		}
	}
	return hasValue && hasDesc
}

func parseLeaf(n *yaml.Node, path string) (*Leaf, error) {
	leaf := &Leaf{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch n.Content[i].Value {
		case keyValue:
			if err := n.Content[i+1].Decode(&leaf.Value); err != nil {
				return nil, fmt.Errorf("%s.value: %w", path, err)
			}
		case keyDescription:
			if err := n.Content[i+1].Decode(&leaf.Description); err != nil {
				return nil, fmt.Errorf("%s.description: %w", path, err)
			}
		}
	}
	return leaf, nil
}

func parseList(n *yaml.Node, path string) (Node, error) {
	list := &List{Items: make([]map[string]string, 0, len(n.Content))}
	for i, item := range n.Content {
		if item.Kind != yaml.MappingNode {
			// A sequence of scalars is a plain leaf value.
			var v any
			if err := n.Decode(&v); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return &Leaf{Value: v}, nil
		}
		var m map[string]any
		if err := item.Decode(&m); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
		list.Items = append(list.Items, stringMap(m))
	}
	return list, nil
}

func stringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// MarshalYAML encodes the tree back to a YAML document, keeping key order.
func MarshalYAML(root *Group) ([]byte, error) {
	n, err := groupYAML(root)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("marshal persona: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal persona: %w", err)
	}
	return buf.Bytes(), nil
}

func groupYAML(g *Group) (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range g.keys {
		v, err := nodeYAML(g.children[k])
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, v)
	}
	return out, nil
}

func nodeYAML(n Node) (*yaml.Node, error) {
	switch v := n.(type) {
	case *Group:
		return groupYAML(v)
	case *Leaf:
		var val yaml.Node
		if err := val.Encode(v.Value); err != nil {
			return nil, fmt.Errorf("marshal persona value: %w", err)
		}
		return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: keyValue}, &val,
			{Kind: yaml.ScalarNode, Value: keyDescription}, {Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Description},
		}}, nil
	case *List:
		var seq yaml.Node
		if err := seq.Encode(v.Items); err != nil {
			return nil, fmt.Errorf("marshal persona list: %w", err)
		}
		return &seq, nil
	default:
		return nil, fmt.Errorf("marshal persona: unknown node %T", n)
	}
}

// MarshalJSON writes the group as a JSON object with keys in document order.
func (g *Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(g.children[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value       any    `json:"value"`
		Description string `json:"description"`
	}{l.Value, l.Description})
}

func (l *List) MarshalJSON() ([]byte, error) {
	if l.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Items)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown node"
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func marshalIndentJSON(root *Group) ([]byte, error) {
	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("marshal persona: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("marshal persona: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
