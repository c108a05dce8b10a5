// Package batch holds the in-memory row batches handed to the uploader, and
// the pure transforms applied to them before upload: column validation,
// projection onto table order, and temporal normalisation.
package batch

import (
	"fmt"
	"slices"

	"github.com/propeire/propeire/internal/upsert"
)

// Batch is a set of rows positionally aligned with Columns.
type Batch struct {
	Columns []string
	Rows    [][]any
}

// New validates the shape of a batch: column names must be unique and
// non-empty, and every row must have one value per column.
func New(columns []string, rows [][]any) (*Batch, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, &upsert.ValidationError{
				Field:   "rows",
				Message: fmt.Sprintf("row %d has %d values, expected %d", i, len(r), len(columns)),
			}
		}
	}
	return &Batch{Columns: columns, Rows: rows}, nil
}

// FromRecords builds a batch from keyed records, taking values in the order of
// columns. Keys not listed in columns are ignored; absent keys become nil.
func FromRecords(columns []string, records []map[string]any) (*Batch, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return &Batch{Columns: slices.Clone(columns), Rows: rows}, nil
}

func checkColumns(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c == "" {
			return &upsert.ValidationError{Field: "columns", Message: "empty column name"}
		}
		if seen[c] {
			return &upsert.ValidationError{Field: "columns", Message: fmt.Sprintf("duplicate column %q", c)}
		}
		seen[c] = true
	}
	return nil
}

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.Rows) }

// Index returns the position of column name, or -1.
func (b *Batch) Index(name string) int { return slices.Index(b.Columns, name) }

// Subset returns a batch holding only the rows at indices, in that order.
// Row slices are shared with b. An index outside b is an error.
func (b *Batch) Subset(indices []int) (*Batch, error) {
	rows := make([][]any, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(b.Rows) {
			return nil, &upsert.ValidationError{
				Field:   "rows",
				Message: fmt.Sprintf("row index %d out of range for %d rows", i, len(b.Rows)),
			}
		}
		rows = append(rows, b.Rows[i])
	}
	return &Batch{Columns: slices.Clone(b.Columns), Rows: rows}, nil
}
