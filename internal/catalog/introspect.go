// Package catalog reads table metadata from the Postgres system catalogs.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/propeire/propeire/internal/schema"
	"github.com/propeire/propeire/internal/upsert"
)

// Querier is the read side of a Postgres connection. *pgx.Conn, *pgxpool.Pool
// and uploader.SerialSession all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Introspector answers the uploader's catalog questions for one table at a
// time. It never writes.
type Introspector struct {
	q Querier
}

var _ upsert.ConstraintLister = (*Introspector)(nil)

// New creates an Introspector over q.
func New(q Querier) *Introspector {
	return &Introspector{q: q}
}

// An empty schema name resolves to current_schema(), matching how an
// unqualified table name is resolved when the statement runs.
const constraintsQuery = `
	SELECT
		con.conname,
		CASE con.contype WHEN 'p' THEN 'primary key' ELSE 'unique' END,
		pg_get_constraintdef(con.oid)
	FROM pg_constraint con
	JOIN pg_class c ON c.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = COALESCE(NULLIF($1::text, ''), current_schema())
	  AND c.relname = $2::text
	  AND con.contype IN ('p', 'u')
	ORDER BY con.contype = 'p' DESC, con.conname`

const columnsQuery = `
	SELECT column_name::text, data_type::text, is_nullable = 'YES', column_default::text
	FROM information_schema.columns
	WHERE table_schema = COALESCE(NULLIF($1::text, ''), current_schema())
	  AND table_name = $2
	ORDER BY ordinal_position`

// ConstraintDetails lists the primary key and unique constraints of a table,
// primary key first.
func (i *Introspector) ConstraintDetails(ctx context.Context, schemaName, table string) ([]schema.Constraint, error) {
	rows, err := i.q.Query(ctx, constraintsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("querying constraints: %w", err)
	}
	defer rows.Close()

	var out []schema.Constraint
	for rows.Next() {
		var c schema.Constraint
		if err := rows.Scan(&c.Name, &c.Type, &c.Definition); err != nil {
			return nil, fmt.Errorf("scanning constraint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Constraints returns the names of the conflict-target candidates of a table.
// An empty result is not an error here; the synthesiser decides what it means.
func (i *Introspector) Constraints(ctx context.Context, schemaName, table string) ([]string, error) {
	details, err := i.ConstraintDetails(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(details))
	for j, c := range details {
		names[j] = c.Name
	}
	return names, nil
}

// Columns lists the table's columns in ordinal order. A table with no visible
// columns is reported as *upsert.SchemaNotFoundError.
func (i *Introspector) Columns(ctx context.Context, schemaName, table string) ([]schema.Column, error) {
	rows, err := i.q.Query(ctx, columnsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.DefaultValue); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &upsert.SchemaNotFoundError{Schema: schemaName, Table: table}
	}
	return cols, nil
}

// Table reads columns and constraints together.
func (i *Introspector) Table(ctx context.Context, schemaName, table string) (*schema.Table, error) {
	cols, err := i.Columns(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	cons, err := i.ConstraintDetails(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	return &schema.Table{
		Schema:      schemaName,
		Name:        table,
		Columns:     cols,
		Constraints: cons,
	}, nil
}
