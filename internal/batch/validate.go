package batch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/propeire/propeire/internal/upsert"
)

// ColumnWarning describes how a batch's columns diverge from the table's.
// Missing columns take their table defaults; extra columns are dropped.
type ColumnWarning struct {
	Missing []string `json:"missing,omitempty"` // in the table, not in the batch
	Extra   []string `json:"extra,omitempty"`   // in the batch, not in the table
}

func (w *ColumnWarning) String() string {
	var parts []string
	if len(w.Missing) > 0 {
		parts = append(parts, "missing from batch: "+strings.Join(w.Missing, ", "))
	}
	if len(w.Extra) > 0 {
		parts = append(parts, "not in table: "+strings.Join(w.Extra, ", "))
	}
	return strings.Join(parts, "; ")
}

// Validate compares the batch's columns with the table's. It returns nil
// when both sets are equal.
func Validate(batchColumns, tableColumns []string) *ColumnWarning {
	w := &ColumnWarning{}
	for _, c := range tableColumns {
		if !slices.Contains(batchColumns, c) {
			w.Missing = append(w.Missing, c)
		}
	}
	for _, c := range batchColumns {
		if !slices.Contains(tableColumns, c) {
			w.Extra = append(w.Extra, c)
		}
	}
	if len(w.Missing) == 0 && len(w.Extra) == 0 {
		return nil
	}
	return w
}

// StrictError turns the extra columns of a warning into a fatal error.
func (w *ColumnWarning) StrictError() error {
	if w == nil || len(w.Extra) == 0 {
		return nil
	}
	return &upsert.ValidationError{
		Field:   "columns",
		Message: "columns not present in target table: " + strings.Join(w.Extra, ", "),
	}
}

// Project returns a new batch whose columns are the intersection of the
// batch's and tableColumns, in table order. Values are copied into new rows.
func (b *Batch) Project(tableColumns []string) (*Batch, error) {
	var cols []string
	var src []int
	for _, c := range tableColumns {
		if i := b.Index(c); i >= 0 {
			cols = append(cols, c)
			src = append(src, i)
		}
	}
	if len(cols) == 0 {
		return nil, &upsert.ValidationError{Field: "columns", Message: "batch shares no columns with the target table"}
	}

	rows := make([][]any, len(b.Rows))
	for r, row := range b.Rows {
		if len(row) != len(b.Columns) {
			return nil, &upsert.ValidationError{
				Field:   "rows",
				Message: fmt.Sprintf("row %d has %d values, expected %d", r, len(row), len(b.Columns)),
			}
		}
		out := make([]any, len(src))
		for j, i := range src {
			out[j] = row[i]
		}
		rows[r] = out
	}
	return &Batch{Columns: cols, Rows: rows}, nil
}
