package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/propeire/propeire/internal/batch"
	"github.com/propeire/propeire/internal/engine"
	"github.com/propeire/propeire/internal/upsert"
)

// Upload statuses.
const (
	StatusComplete = "COMPLETE"
	StatusPartial  = "PARTIAL"
)

// UploadReport records the outcome of one upsert run.
type UploadReport struct {
	Version         string               `json:"version"`
	GeneratedAt     time.Time            `json:"generated_at"`
	Schema          string               `json:"schema"`
	Table           string               `json:"table"`
	Mode            string               `json:"mode"`
	Constraint      string               `json:"constraint"`
	Status          string               `json:"status"`
	Rows            RowSummary           `json:"rows"`
	DurationMS      int64                `json:"duration_ms"`
	Warning         *batch.ColumnWarning `json:"warning,omitempty"`
	TemporalColumns []string             `json:"temporal_columns,omitempty"`
	Failures        []Failure            `json:"failures,omitempty"`
	Statement       string               `json:"statement"`
}

// RowSummary counts rows by outcome.
type RowSummary struct {
	Total     int `json:"total"`
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Failure is one failed row, by its index in the source file.
type Failure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Generate builds a report from an engine result and the error Upsert
// returned with it. Only a nil error or a *upsert.PartialUploadError can
// accompany a result.
func Generate(res *engine.Result, err error) *UploadReport {
	r := &UploadReport{
		Version:         "1",
		GeneratedAt:     time.Now(),
		Schema:          res.Schema,
		Table:           res.Table,
		Mode:            res.Mode,
		Constraint:      res.Constraint,
		Status:          StatusComplete,
		Warning:         res.Warning,
		TemporalColumns: res.TemporalColumns,
		Statement:       res.Statement,
	}
	if res.Upload != nil {
		r.Rows = RowSummary{
			Total:     res.Upload.Total,
			Written:   res.Upload.Written,
			Unchanged: res.Upload.Unchanged,
			Failed:    res.Upload.Failed,
		}
		r.DurationMS = res.Upload.Duration.Milliseconds()
	}

	var pe *upsert.PartialUploadError
	if errors.As(err, &pe) {
		r.Status = StatusPartial
		for _, f := range pe.Failures {
			r.Failures = append(r.Failures, Failure{Index: f.Index, Error: f.Err.Error()})
		}
	}
	return r
}

// FailedIndices returns the indices of failed rows, for resubmission.
func (r *UploadReport) FailedIndices() []int {
	out := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Index
	}
	return out
}

// MapIndices rewrites failure indices from positions in a subset batch to
// positions in the source it was taken from. source[i] is the source index
// of subset row i, as passed to batch.Subset.
func (r *UploadReport) MapIndices(source []int) error {
	for i, f := range r.Failures {
		if f.Index < 0 || f.Index >= len(source) {
			return fmt.Errorf("failure index %d outside retried subset of %d rows", f.Index, len(source))
		}
		r.Failures[i].Index = source[f.Index]
	}
	return nil
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *UploadReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*UploadReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &UploadReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// FormatText renders the report as human-readable text.
func FormatText(report *UploadReport) string {
	var b strings.Builder

	b.WriteString("=== Propeire Upload Report ===\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339)))

	b.WriteString(fmt.Sprintf("Target:     %s.%s\n", report.Schema, report.Table))
	b.WriteString(fmt.Sprintf("Mode:       %s\n", report.Mode))
	b.WriteString(fmt.Sprintf("Constraint: %s\n", report.Constraint))
	b.WriteString(fmt.Sprintf("Status:     %s\n\n", report.Status))

	b.WriteString("Rows:\n")
	b.WriteString(fmt.Sprintf("  Total:     %d\n", report.Rows.Total))
	b.WriteString(fmt.Sprintf("  Written:   %d\n", report.Rows.Written))
	b.WriteString(fmt.Sprintf("  Unchanged: %d\n", report.Rows.Unchanged))
	b.WriteString(fmt.Sprintf("  Failed:    %d\n", report.Rows.Failed))
	b.WriteString(fmt.Sprintf("Duration: %s\n", time.Duration(report.DurationMS)*time.Millisecond))

	if report.Warning != nil {
		b.WriteString(fmt.Sprintf("\nColumn warning: %s\n", report.Warning))
	}

	if len(report.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range report.Failures {
			b.WriteString(fmt.Sprintf("  row %d: %s\n", f.Index, f.Error))
		}
	}
	return b.String()
}
