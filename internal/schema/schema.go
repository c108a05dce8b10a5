package schema

// Table describes a target table as read from the catalog.
type Table struct {
	Schema      string       `yaml:"schema"`
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	Constraints []Constraint `yaml:"constraints,omitempty"`
}

// Column is a single column in catalog (ordinal) order.
type Column struct {
	Name         string  `yaml:"name"`
	DataType     string  `yaml:"data_type"`
	Nullable     bool    `yaml:"nullable"`
	DefaultValue *string `yaml:"default_value,omitempty"`
}

// Constraint types that can serve as an ON CONFLICT target.
const (
	ConstraintPrimaryKey = "primary key"
	ConstraintUnique     = "unique"
)

// Constraint is a named uniqueness constraint declared on a table.
type Constraint struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // primary key, unique
	Definition string `yaml:"definition,omitempty"`
}

// ColumnNames returns the column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ConstraintNames returns the constraint names in catalog order.
func (t *Table) ConstraintNames() []string {
	names := make([]string, len(t.Constraints))
	for i, c := range t.Constraints {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// QualifiedName returns schema.table without quoting, for display only.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
