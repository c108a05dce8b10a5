package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"
	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/catalog"
	"github.com/propeire/propeire/internal/config"
	"github.com/propeire/propeire/internal/engine"
	"github.com/propeire/propeire/internal/uploader"
	"github.com/propeire/propeire/internal/upsert"
)

// connect opens the single connection every command shares.
func connect(ctx context.Context) (*pgx.Conn, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("no database configured: set database.dsn or %s", config.DSNEnv)
	}
	connCfg, err := pgx.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	connCfg.ConnectTimeout = cfg.Database.ConnectTimeout
	cancelOnContextDone(connCfg)

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return conn, nil
}

// cancelOnContextDone makes a cancelled or timed-out statement send a cancel
// request to the server. The default handler closes the connection, which
// would fail every later row sharing it.
func cancelOnContextDone(connCfg *pgx.ConnConfig) {
	connCfg.BuildContextWatcherHandler = func(pgConn *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.CancelRequestContextWatcherHandler{
			Conn:          pgConn,
			DeadlineDelay: 5 * time.Second,
		}
	}
}

// uploadFlags are the flags shared by commands that write rows.
type uploadFlags struct {
	mode        string
	concurrency int
	rowTimeout  time.Duration
	strict      bool
	constraint  string
	report      string
	noProgress  bool
}

func (f *uploadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "conflict mode: skip or update (default from config)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "rows in flight (default from config, 0 = 2 x CPUs)")
	cmd.Flags().DurationVar(&f.rowTimeout, "row-timeout", 0, "per-row deadline, e.g. 30s")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "fail when the input has columns the table lacks")
	cmd.Flags().StringVar(&f.constraint, "constraint", "", "conflict target when the table has several unique constraints")
	cmd.Flags().StringVar(&f.report, "report", "", "write a JSON upload report to this path")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "do not draw a progress bar")
}

// resolve merges flags over the config file settings.
func (f *uploadFlags) resolve(cmd *cobra.Command) (upsert.Mode, []engine.Option, error) {
	up := cfg.Upload
	if cmd.Flags().Changed("mode") {
		up.Mode = f.mode
	}
	if cmd.Flags().Changed("concurrency") {
		up.Concurrency = f.concurrency
	}
	if cmd.Flags().Changed("row-timeout") {
		up.RowTimeout = f.rowTimeout
	}
	if cmd.Flags().Changed("strict") {
		up.Strict = f.strict
	}
	if cmd.Flags().Changed("constraint") {
		up.Constraint = f.constraint
	}

	mode, err := upsert.ParseMode(up.Mode)
	if err != nil {
		return 0, nil, err
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(recorder),
		engine.WithStrict(up.Strict),
		engine.WithConstraint(up.Constraint),
		engine.WithConcurrency(up.Concurrency),
		engine.WithRowTimeout(up.RowTimeout),
	}
	if !f.noProgress {
		opts = append(opts, engine.WithProgress(newProgressPrinter(cmd.ErrOrStderr()).Update))
	}
	return mode, opts, nil
}

// newEngine builds an engine over one serialised connection.
func newEngine(conn *pgx.Conn, opts ...engine.Option) *engine.Engine {
	sess := uploader.NewSerialSession(conn)
	return engine.New(catalog.New(sess), sess, opts...)
}
