package batch

import (
	"time"
)

// TimestampLayout is the form temporal values are submitted in.
const TimestampLayout = "2006-01-02 15:04:05"

// Normalized is the output of Normalize.
type Normalized struct {
	*Batch
	TemporalColumns []string
}

// Normalize rewrites temporal columns as timestamp strings. A column is
// temporal when it holds at least one non-nil value and every non-nil value
// is a time.Time or *time.Time. The input is never modified; when nothing is
// temporal the returned batch is b itself.
func Normalize(b *Batch) *Normalized {
	var temporal []int
	for j := range b.Columns {
		if isTemporal(b.Rows, j) {
			temporal = append(temporal, j)
		}
	}
	if len(temporal) == 0 {
		return &Normalized{Batch: b}
	}

	names := make([]string, len(temporal))
	for k, j := range temporal {
		names[k] = b.Columns[j]
	}

	rows := make([][]any, len(b.Rows))
	for r, row := range b.Rows {
		out := make([]any, len(row))
		copy(out, row)
		for _, j := range temporal {
			out[j] = formatTime(row[j])
		}
		rows[r] = out
	}
	return &Normalized{
		Batch:           &Batch{Columns: b.Columns, Rows: rows},
		TemporalColumns: names,
	}
}

func isTemporal(rows [][]any, j int) bool {
	seen := false
	for _, row := range rows {
		if j >= len(row) {
			continue
		}
		switch v := row[j].(type) {
		case nil:
		case time.Time:
			seen = true
		case *time.Time:
			if v != nil {
				seen = true
			}
		default:
			return false
		}
	}
	return seen
}

func formatTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(TimestampLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(TimestampLayout)
	default:
		return v
	}
}
