// Package uploader executes a synthesised upsert once per row over a bounded
// pool of workers sharing one session.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/propeire/propeire/internal/metrics"
	"github.com/propeire/propeire/internal/upsert"
)

// Options configures an Uploader. The zero value is usable.
type Options struct {
	// Concurrency is the number of rows in flight; 0 means 2 x NumCPU.
	Concurrency int
	// RowTimeout bounds each row's execution; 0 means no per-row deadline.
	RowTimeout time.Duration
	// Progress is called after each row with the number of rows finished.
	// Calls are serialised.
	Progress func(done, total int)
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// DefaultConcurrency is used when Options.Concurrency is not positive.
func DefaultConcurrency() int {
	return 2 * runtime.NumCPU()
}

// Result summarises one upload.
type Result struct {
	Total     int           `json:"total"`
	Written   int           `json:"written"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Uploader runs row upserts against a Session.
type Uploader struct {
	session Session
	opts    Options
}

// New creates an Uploader over session.
func New(session Session, opts Options) *Uploader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Uploader{session: session, opts: opts}
}

// Concurrency returns the effective worker count.
func (u *Uploader) Concurrency() int { return u.opts.Concurrency }

// run holds the mutable state of one Upload call.
type run struct {
	mu       sync.Mutex
	result   Result
	done     int
	failures []upsert.RowError
}

// Upload executes stmt once per row, binding each row's values positionally.
// A failing row never stops the others. Upload returns after every row has
// finished; if any failed, the error is a *upsert.PartialUploadError listing
// them, alongside the Result.
func (u *Uploader) Upload(ctx context.Context, stmt *upsert.Statement, rows [][]any) (*Result, error) {
	start := time.Now()
	target := stmt.Target()

	sql := stmt.SQL()
	if p, ok := u.session.(Preparer); ok {
		if _, err := p.Prepare(ctx, stmt.Name(), stmt.SQL()); err != nil {
			return nil, fmt.Errorf("preparing upsert for %s: %w", target, err)
		}
		sql = stmt.Name()
	}

	r := &run{result: Result{Total: len(rows)}}

	u.opts.Logger.Info("uploading rows",
		"schema", target.Schema,
		"table", target.Table,
		"rows", len(rows),
		"concurrency", u.opts.Concurrency,
		"mode", stmt.Mode().String(),
		"constraint", stmt.Constraint(),
	)

	var g errgroup.Group
	g.SetLimit(u.opts.Concurrency)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(rows); j++ {
				u.record(r, target, j, metrics.OutcomeFailed, 0, err)
			}
			break
		}
		if len(row) != stmt.Arity() {
			u.record(r, target, i, metrics.OutcomeFailed, 0, &upsert.ValidationError{
				Field:   "row",
				Message: fmt.Sprintf("has %d values, statement binds %d", len(row), stmt.Arity()),
			})
			continue
		}
		g.Go(func() error {
			u.execRow(ctx, r, target, sql, i, row)
			return nil
		})
	}
	_ = g.Wait()

	r.result.Duration = time.Since(start)
	u.opts.Metrics.RecordUpload(target.Schema, target.Table, r.result.Total, r.result.Failed, r.result.Duration)

	u.opts.Logger.Info("upload finished",
		"schema", target.Schema,
		"table", target.Table,
		"written", r.result.Written,
		"unchanged", r.result.Unchanged,
		"failed", r.result.Failed,
		"duration", r.result.Duration.Round(time.Millisecond),
	)

	res := r.result
	if len(r.failures) > 0 {
		return &res, upsert.NewPartialUploadError(target.Schema, target.Table, len(rows), r.failures)
	}
	return &res, nil
}

func (u *Uploader) execRow(ctx context.Context, r *run, target upsert.Target, sql string, i int, row []any) {
	if err := ctx.Err(); err != nil {
		u.record(r, target, i, metrics.OutcomeFailed, 0, err)
		return
	}

	u.opts.Metrics.InFlight(1)
	start := time.Now()
	tag, err := u.exec(ctx, sql, row)
	elapsed := time.Since(start)
	u.opts.Metrics.InFlight(-1)

	switch {
	case err != nil:
		u.record(r, target, i, metrics.OutcomeFailed, elapsed, err)
	case tag.RowsAffected() == 0:
		u.record(r, target, i, metrics.OutcomeUnchanged, elapsed, nil)
	default:
		u.record(r, target, i, metrics.OutcomeWritten, elapsed, nil)
	}
}

// exec applies RowTimeout. A session that queues callers applies it after
// the row gets the connection.
func (u *Uploader) exec(ctx context.Context, sql string, row []any) (pgconn.CommandTag, error) {
	if te, ok := u.session.(TimeoutExecer); ok {
		return te.ExecTimeout(ctx, u.opts.RowTimeout, sql, row...)
	}
	if u.opts.RowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.RowTimeout)
		defer cancel()
	}
	return u.session.Exec(ctx, sql, row...)
}

func (u *Uploader) record(r *run, target upsert.Target, i int, outcome string, d time.Duration, err error) {
	u.opts.Metrics.RecordRow(target.Schema, target.Table, outcome, d)
	if err != nil {
		u.opts.Logger.Warn("row failed", "schema", target.Schema, "table", target.Table, "index", i, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case metrics.OutcomeWritten:
		r.result.Written++
	case metrics.OutcomeUnchanged:
		r.result.Unchanged++
	default:
		r.result.Failed++
		r.failures = append(r.failures, upsert.RowError{Index: i, Err: err})
	}
	r.done++
	if u.opts.Progress != nil {
		u.opts.Progress(r.done, r.result.Total)
	}
}
