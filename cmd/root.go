package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/config"
	"github.com/propeire/propeire/internal/logging"
	"github.com/propeire/propeire/internal/metrics"
)

var (
	cfgFile     string
	logLevel    string
	metricsAddr string
	envFile     string
	version     = "dev"
	commit      = "none"
	date        = "unknown"
)

// Set up by the root command before any subcommand runs.
var (
	cfg           *config.Config
	logger        *slog.Logger
	recorder      metrics.Recorder = metrics.Nop{}
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "propeire",
	Short: "Propeire: schema-aware Postgres upserts",
	Long: `Propeire writes tabular data into Postgres tables using each table's own
primary key or unique constraint as the conflict target.

It can inspect a table, upsert an arbitrary CSV file, and download and load
the Irish property price register.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr = metricsAddr
		}

		logger, err = logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if cfg.Metrics.Addr != "" {
			startMetrics(cfg.Metrics.Addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopMetrics()
	},
}

func startMetrics(addr string) {
	reg := metrics.NewRegistry()
	recorder = metrics.NewPrometheus(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func stopMetrics() {
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
	metricsServer = nil
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		stopMetrics()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.propeire/propeire.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9108")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}
