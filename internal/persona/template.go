package persona

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed template.yaml
var defaultTemplate []byte

// DefaultTemplate returns a fresh copy of the built-in profile template.
func DefaultTemplate() *Group {
	g, err := Parse(defaultTemplate)
	if err != nil {
		panic(fmt.Sprintf("persona: built-in template: %v", err))
	}
	return g
}

// LoadFile parses a persona or template file. JSON and YAML are both accepted.
func LoadFile(path string) (*Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// WriteFile stores root at path, as JSON when the extension is .json and as
// YAML otherwise.
func WriteFile(path string, root *Group) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = marshalIndentJSON(root)
	} else {
		data, err = MarshalYAML(root)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create persona dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write persona file: %w", err)
	}
	return nil
}
