// Package upsert synthesises INSERT ... ON CONFLICT statements for a target
// table from its catalog metadata, and defines the errors shared by the
// upload path.
package upsert

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/zeebo/xxh3"
)

// existingAlias names the stored row in the conflict WHERE clause.
const existingAlias = "existing"

// Target identifies the table to write to and, optionally, the constraint to
// use as the conflict target when the table declares more than one.
type Target struct {
	Schema     string
	Table      string
	Constraint string
}

func (t Target) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// Statement is an immutable parameterised upsert bound to one target, column
// list, conflict target and mode. It is safe to share between goroutines.
type Statement struct {
	target     Target
	columns    []string
	constraint string
	mode       Mode
	sql        string
	name       string
}

// NewStatement builds the upsert for target. constraints are the table's
// primary key and unique constraint names as read from the catalog; columns
// must already be in the order values will be bound.
func NewStatement(target Target, constraints []string, columns []string, mode Mode) (*Statement, error) {
	if target.Table == "" {
		return nil, &ValidationError{Field: "table", Message: "table name is required"}
	}
	if len(columns) == 0 {
		return nil, &ValidationError{Field: "columns", Message: "at least one column is required"}
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return nil, &ValidationError{Field: "columns", Message: "empty column name"}
		}
		if _, dup := seen[c]; dup {
			return nil, &ValidationError{Field: "columns", Message: fmt.Sprintf("duplicate column %q", c)}
		}
		seen[c] = struct{}{}
	}
	if mode != ModeSkip && mode != ModeUpdateIfDifferent {
		return nil, &ValidationError{Field: "mode", Message: fmt.Sprintf("unsupported mode %d", int(mode))}
	}

	constraint, err := resolveConstraint(target, constraints)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		target:     target,
		columns:    slices.Clone(columns),
		constraint: constraint,
		mode:       mode,
	}
	st.target.Constraint = constraint
	st.sql = st.render()
	st.name = "propeire_upsert_" + strconv.FormatUint(xxh3.HashString(st.sql), 16)
	return st, nil
}

// resolveConstraint picks the conflict target. A table with several unique
// constraints needs an explicit choice; names are never merged.
func resolveConstraint(target Target, constraints []string) (string, error) {
	switch {
	case len(constraints) == 0:
		return "", &NoConstraintError{Schema: target.Schema, Table: target.Table}
	case target.Constraint != "":
		if !slices.Contains(constraints, target.Constraint) {
			return "", &UnknownConstraintError{
				Schema:     target.Schema,
				Table:      target.Table,
				Name:       target.Constraint,
				Candidates: slices.Clone(constraints),
			}
		}
		return target.Constraint, nil
	case len(constraints) == 1:
		return constraints[0], nil
	default:
		return "", &AmbiguousConstraintError{
			Schema:     target.Schema,
			Table:      target.Table,
			Candidates: slices.Clone(constraints),
		}
	}
}

func (s *Statement) render() string {
	tableIdent := pgx.Identifier{s.target.Table}
	if s.target.Schema != "" {
		tableIdent = pgx.Identifier{s.target.Schema, s.target.Table}
	}
	alias := pgx.Identifier{existingAlias}.Sanitize()

	cols := make([]string, len(s.columns))
	params := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = "$" + strconv.Itoa(i+1)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent.Sanitize())
	b.WriteString(" AS ")
	b.WriteString(alias)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(")\nVALUES (")
	b.WriteString(strings.Join(params, ", "))
	b.WriteString(")\nON CONFLICT ON CONSTRAINT ")
	b.WriteString(pgx.Identifier{s.constraint}.Sanitize())
	b.WriteString("\n")

	if s.mode == ModeSkip {
		b.WriteString("DO NOTHING")
		return b.String()
	}

	sets := make([]string, len(cols))
	existing := make([]string, len(cols))
	excluded := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = EXCLUDED." + c
		existing[i] = alias + "." + c
		excluded[i] = "EXCLUDED." + c
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString("\nWHERE (")
	b.WriteString(strings.Join(existing, ", "))
	b.WriteString(") IS DISTINCT FROM (")
	b.WriteString(strings.Join(excluded, ", "))
	b.WriteString(")")
	return b.String()
}

// SQL returns the statement text with $n placeholders.
func (s *Statement) SQL() string { return s.sql }

// Name is a stable prepared-statement name derived from the SQL text.
func (s *Statement) Name() string { return s.name }

// Columns returns a copy of the bound column order.
func (s *Statement) Columns() []string { return slices.Clone(s.columns) }

// Arity is the number of bind parameters per row.
func (s *Statement) Arity() int { return len(s.columns) }

// Constraint is the conflict target in use.
func (s *Statement) Constraint() string { return s.constraint }

// Mode is the conflict resolution mode.
func (s *Statement) Mode() Mode { return s.mode }

// Target returns the target with the resolved constraint filled in.
func (s *Statement) Target() Target { return s.target }

// ConstraintLister reads the conflict-target candidates of a table.
type ConstraintLister interface {
	Constraints(ctx context.Context, schemaName, table string) ([]string, error)
}

// Synthesizer builds statements from live catalog metadata.
type Synthesizer struct {
	catalog ConstraintLister
}

// NewSynthesizer creates a Synthesizer reading constraints from catalog.
func NewSynthesizer(catalog ConstraintLister) *Synthesizer {
	return &Synthesizer{catalog: catalog}
}

// Build reads the table's constraints and synthesises the upsert.
func (s *Synthesizer) Build(ctx context.Context, target Target, columns []string, mode Mode) (*Statement, error) {
	constraints, err := s.catalog.Constraints(ctx, target.Schema, target.Table)
	if err != nil {
		return nil, fmt.Errorf("reading constraints of %s: %w", target, err)
	}
	return NewStatement(target, constraints, columns, mode)
}
