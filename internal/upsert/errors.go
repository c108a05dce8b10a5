package upsert

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrSchemaNotFound = errors.New("table not found")
	ErrNoConstraint   = errors.New("no unique constraint")
	ErrPartialUpload  = errors.New("partial upload")
)

// SchemaNotFoundError is returned when the catalog has no columns for the
// target table: it does not exist or the caller cannot see it.
type SchemaNotFoundError struct {
	Schema string
	Table  string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("table %s.%s does not exist or is not visible", e.Schema, e.Table)
}

func (e *SchemaNotFoundError) Is(target error) bool { return target == ErrSchemaNotFound }

// NoConstraintError is returned when the target table declares no primary key
// or unique constraint, so there is no conflict target to upsert against.
type NoConstraintError struct {
	Schema string
	Table  string
}

func (e *NoConstraintError) Error() string {
	return fmt.Sprintf("can only upsert into tables with a primary key or unique constraint; %s.%s has none", e.Schema, e.Table)
}

func (e *NoConstraintError) Is(target error) bool { return target == ErrNoConstraint }

// AmbiguousConstraintError is returned when a table has several candidate
// conflict targets and the caller did not name one.
type AmbiguousConstraintError struct {
	Schema     string
	Table      string
	Candidates []string
}

func (e *AmbiguousConstraintError) Error() string {
	return fmt.Sprintf("%s.%s has %d unique constraints (%s); choose one explicitly",
		e.Schema, e.Table, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// UnknownConstraintError is returned when the named conflict target is not a
// primary key or unique constraint of the table.
type UnknownConstraintError struct {
	Schema     string
	Table      string
	Name       string
	Candidates []string
}

func (e *UnknownConstraintError) Error() string {
	return fmt.Sprintf("constraint %q is not a unique constraint of %s.%s (have: %s)",
		e.Name, e.Schema, e.Table, strings.Join(e.Candidates, ", "))
}

// ValidationError reports a structural problem with the caller's batch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// RowError records the failure of a single row execution.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// PartialUploadError aggregates every row failure of one upload, after all
// rows have been attempted.
type PartialUploadError struct {
	Schema   string
	Table    string
	Total    int
	Failures []RowError
}

// NewPartialUploadError sorts failures by row index.
func NewPartialUploadError(schemaName, table string, total int, failures []RowError) *PartialUploadError {
	sorted := make([]RowError, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return &PartialUploadError{Schema: schemaName, Table: table, Total: total, Failures: sorted}
}

func (e *PartialUploadError) Error() string {
	msg := fmt.Sprintf("%d of %d rows failed for %s.%s", len(e.Failures), e.Total, e.Schema, e.Table)
	if len(e.Failures) > 0 {
		msg += "; first: " + e.Failures[0].Error()
	}
	return msg
}

func (e *PartialUploadError) Is(target error) bool { return target == ErrPartialUpload }

// Unwrap exposes the per-row causes so errors.Is can match driver errors or
// context errors inside them.
func (e *PartialUploadError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// FailedIndices returns the failed row indices in ascending order.
func (e *PartialUploadError) FailedIndices() []int {
	out := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Index
	}
	return out
}
