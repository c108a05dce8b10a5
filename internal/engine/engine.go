// Package engine reconciles an in-memory batch with a Postgres table using
// the table's own uniqueness constraints as the conflict target.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propeire/propeire/internal/batch"
	"github.com/propeire/propeire/internal/metrics"
	"github.com/propeire/propeire/internal/schema"
	"github.com/propeire/propeire/internal/uploader"
	"github.com/propeire/propeire/internal/upsert"
)

// Catalog is the metadata the engine needs about a target table.
// *catalog.Introspector implements it.
type Catalog interface {
	upsert.ConstraintLister
	Columns(ctx context.Context, schemaName, table string) ([]schema.Column, error)
}

// Options tune an Engine. Use the With* functions with New.
type Options struct {
	Strict     bool
	Constraint string
	Upload     uploader.Options
}

// Option sets one engine option.
type Option func(*Options)

// WithStrict makes batch columns absent from the table a fatal error.
func WithStrict(strict bool) Option { return func(o *Options) { o.Strict = strict } }

// WithConstraint names the conflict target for tables with several unique
// constraints.
func WithConstraint(name string) Option { return func(o *Options) { o.Constraint = name } }

// WithConcurrency sets the number of rows in flight.
func WithConcurrency(n int) Option { return func(o *Options) { o.Upload.Concurrency = n } }

// WithRowTimeout bounds each row's execution.
func WithRowTimeout(d time.Duration) Option { return func(o *Options) { o.Upload.RowTimeout = d } }

// WithProgress registers a per-row progress callback.
func WithProgress(fn func(done, total int)) Option {
	return func(o *Options) { o.Upload.Progress = fn }
}

// WithMetrics records upload metrics on r.
func WithMetrics(r metrics.Recorder) Option { return func(o *Options) { o.Upload.Metrics = r } }

// WithLogger sets the logger used by the engine and its uploader.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Upload.Logger = l } }

// Engine is the upsert pipeline shared by the CLI commands.
type Engine struct {
	Catalog Catalog
	Session uploader.Session
	Logger  *slog.Logger

	opts Options
}

// New creates an Engine reading metadata from cat and writing through session.
func New(cat Catalog, session uploader.Session, opts ...Option) *Engine {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	if o.Upload.Logger == nil {
		o.Upload.Logger = slog.Default()
	}
	return &Engine{
		Catalog: cat,
		Session: session,
		Logger:  o.Upload.Logger,
		opts:    o,
	}
}

// Plan is a validated, projected batch together with the statement that will
// write it. Building a plan reads the catalog but never writes.
type Plan struct {
	Statement *upsert.Statement
	Batch     *batch.Batch
	Warning   *batch.ColumnWarning
	// TemporalColumns lists columns rewritten as timestamp strings.
	TemporalColumns []string
}

// Result describes a finished upsert.
type Result struct {
	Schema          string               `json:"schema"`
	Table           string               `json:"table"`
	Mode            string               `json:"mode"`
	Constraint      string               `json:"constraint"`
	Statement       string               `json:"statement"`
	Columns         []string             `json:"columns"`
	Warning         *batch.ColumnWarning `json:"warning,omitempty"`
	TemporalColumns []string             `json:"temporal_columns,omitempty"`
	Upload          *uploader.Result     `json:"upload"`
}

// Plan validates b against the live table definition, projects it onto table
// column order, synthesises the upsert and normalises temporal values. Every
// fatal precondition is detected here, before any row is written.
func (e *Engine) Plan(ctx context.Context, b *batch.Batch, schemaName, table string, mode upsert.Mode) (*Plan, error) {
	if b == nil || len(b.Columns) == 0 {
		return nil, &upsert.ValidationError{Field: "columns", Message: "batch has no columns"}
	}

	cols, err := e.Catalog.Columns(ctx, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s.%s: %w", schemaName, table, err)
	}
	tableCols := make([]string, len(cols))
	for i, c := range cols {
		tableCols[i] = c.Name
	}

	warning := batch.Validate(b.Columns, tableCols)
	if warning != nil {
		e.Logger.Warn("batch columns differ from table",
			"schema", schemaName,
			"table", table,
			"missing", warning.Missing,
			"extra", warning.Extra,
		)
		if e.opts.Strict {
			return nil, warning.StrictError()
		}
	}

	projected, err := b.Project(tableCols)
	if err != nil {
		return nil, err
	}

	target := upsert.Target{Schema: schemaName, Table: table, Constraint: e.opts.Constraint}
	stmt, err := upsert.NewSynthesizer(e.Catalog).Build(ctx, target, projected.Columns, mode)
	if err != nil {
		return nil, err
	}

	norm := batch.Normalize(projected)
	if len(norm.TemporalColumns) > 0 {
		e.Logger.Debug("normalised temporal columns", "columns", norm.TemporalColumns)
	}

	return &Plan{
		Statement:       stmt,
		Batch:           norm.Batch,
		Warning:         warning,
		TemporalColumns: norm.TemporalColumns,
	}, nil
}

// Upsert writes b into schemaName.table. On partial failure it returns the
// Result together with a *upsert.PartialUploadError; other errors are fatal
// and mean no row was written.
func (e *Engine) Upsert(ctx context.Context, b *batch.Batch, schemaName, table string, mode upsert.Mode) (*Result, error) {
	plan, err := e.Plan(ctx, b, schemaName, table, mode)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Schema:          schemaName,
		Table:           table,
		Mode:            mode.String(),
		Constraint:      plan.Statement.Constraint(),
		Statement:       plan.Statement.SQL(),
		Columns:         plan.Statement.Columns(),
		Warning:         plan.Warning,
		TemporalColumns: plan.TemporalColumns,
	}

	if plan.Batch.Len() == 0 {
		res.Upload = &uploader.Result{}
		return res, nil
	}

	up, err := uploader.New(e.Session, e.opts.Upload).Upload(ctx, plan.Statement, plan.Batch.Rows)
	if up == nil {
		return nil, err
	}
	res.Upload = up
	return res, err
}
