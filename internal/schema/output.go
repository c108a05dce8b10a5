package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a table description from a YAML file.
func LoadYAML(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table file: %w", err)
	}
	t := &Table{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing table file: %w", err)
	}
	return t, nil
}

// WriteYAML writes the table description to a YAML file at the given path.
func (t *Table) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling table: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Summary returns a human-readable summary of the table.
func (t *Table) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d columns, %d unique constraints\n", t.QualifiedName(), len(t.Columns), len(t.Constraints))
	for _, c := range t.Columns {
		null := "not null"
		if c.Nullable {
			null = "null"
		}
		fmt.Fprintf(&b, "  %-32s %-28s %s\n", c.Name, c.DataType, null)
	}
	for _, c := range t.Constraints {
		fmt.Fprintf(&b, "  constraint %s (%s) %s\n", c.Name, c.Type, c.Definition)
	}
	return strings.TrimRight(b.String(), "\n")
}
