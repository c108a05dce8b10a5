package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/batch"
	"github.com/propeire/propeire/internal/report"
	"github.com/propeire/propeire/internal/state"
	"github.com/propeire/propeire/internal/upsert"
)

var (
	upsertFile      string
	upsertNull      string
	upsertRetryFrom string
	upsertOpts      uploadFlags
)

var upsertCmd = &cobra.Command{
	Use:   "upsert <schema> <table>",
	Short: "Upsert a CSV file into a table",
	Long: `Read a CSV file with a header row and write it into schema.table, using the
table's primary key or unique constraint as the conflict target.

Columns are matched by name. Columns the table lacks are reported and dropped
(or rejected with --strict); table columns absent from the file are left to
their defaults. Rows that fail are listed in the report and can be retried
with --retry-from.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if upsertFile == "" {
			return fmt.Errorf("--file is required")
		}
		b, err := batch.ReadCSVFile(upsertFile, upsertNull)
		if err != nil {
			return err
		}

		var retried []int
		if upsertRetryFrom != "" {
			prev, err := report.ReadJSON(upsertRetryFrom)
			if err != nil {
				return err
			}
			retried = prev.FailedIndices()
			if b, err = b.Subset(retried); err != nil {
				return fmt.Errorf("%s does not match %s: %w", upsertRetryFrom, upsertFile, err)
			}
			fmt.Printf("Retrying %d failed rows from %s\n", b.Len(), upsertRetryFrom)
		}

		ctx, stop := signalContext()
		defer stop()
		return runUpsert(ctx, cmd, b, retried, upsertFile, args[0], args[1], &upsertOpts)
	},
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runUpsert writes b and prints the outcome. A partial failure still writes
// the report and the run history before the error is returned. When b is a
// retried subset, retried holds the source index of each of its rows and the
// report lists failures by source index.
func runUpsert(ctx context.Context, cmd *cobra.Command, b *batch.Batch, retried []int, source, schemaName, table string, flags *uploadFlags) error {
	mode, opts, err := flags.resolve(cmd)
	if err != nil {
		return err
	}

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	fmt.Printf("%s %d rows into %s (%s)\n",
		titleStyle.Render("Upserting"), b.Len(),
		highlightStyle.Render(schemaName+"."+table), mode)

	res, err := newEngine(conn, opts...).Upsert(ctx, b, schemaName, table, mode)
	if res == nil {
		return explain(err)
	}

	rep := report.Generate(res, err)
	if retried != nil {
		if merr := rep.MapIndices(retried); merr != nil {
			return merr
		}
	}
	fmt.Println()
	fmt.Print(report.FormatText(rep))

	if flags.report != "" {
		if werr := report.WriteJSON(rep, flags.report); werr != nil {
			return werr
		}
		fmt.Println(dimStyle.Render("Report written to " + flags.report))
	}
	recordRun(source, rep, flags.report)

	if err != nil {
		fmt.Println(warnStyle.Render(err.Error()))
		return err
	}
	fmt.Println(successStyle.Render("Upsert complete."))
	return nil
}

func recordRun(source string, rep *report.UploadReport, reportPath string) {
	st, err := state.Load("")
	if err == nil {
		st.Record(source, rep, reportPath)
		err = st.Save("")
	}
	if err != nil {
		logger.Warn("could not update run history", "error", err)
	}
}

// explain adds a hint to the fatal errors a user can fix.
func explain(err error) error {
	var amb *upsert.AmbiguousConstraintError
	switch {
	case errors.As(err, &amb):
		fmt.Println(errStyle.Render("Choose a conflict target with --constraint."))
	case errors.Is(err, upsert.ErrNoConstraint):
		fmt.Println(errStyle.Render("Add a primary key or unique constraint to the table first."))
	case errors.Is(err, upsert.ErrSchemaNotFound):
		fmt.Println(errStyle.Render("Check the schema and table names and the connection's database."))
	}
	return err
}

func init() {
	upsertCmd.Flags().StringVarP(&upsertFile, "file", "f", "", "CSV file with a header row")
	upsertCmd.Flags().StringVar(&upsertNull, "null", "", "field value read as NULL")
	upsertCmd.Flags().StringVar(&upsertRetryFrom, "retry-from", "", "only send the rows that failed in this JSON report")
	upsertOpts.register(upsertCmd)
	rootCmd.AddCommand(upsertCmd)
}
