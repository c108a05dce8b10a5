package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/lock"
	"github.com/propeire/propeire/internal/report"
	"github.com/propeire/propeire/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last upsert into each table",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.Load("")
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		if held, pid, err := lock.IsHeld(lock.Path(cfg.PPR.DataDir)); err == nil && held {
			fmt.Println(warnStyle.Render(fmt.Sprintf("A load is running (PID %d).", pid)))
			fmt.Println()
		}

		names := st.TableNames()
		if len(names) == 0 {
			fmt.Println("No upserts recorded yet.")
			return nil
		}

		for _, name := range names {
			run := st.Tables[name]
			mark := successStyle.Render("OK")
			if run.Status == report.StatusPartial {
				mark = warnStyle.Render("!!")
			}
			fmt.Printf("  [%s] %s\n", mark, titleStyle.Render(name))
			fmt.Printf("       %s from %s, %s on %s\n",
				run.FinishedAt.Local().Format("2006-01-02 15:04"), run.Source, run.Mode, run.Constraint)
			fmt.Printf("       %d rows: %d written, %d unchanged, %d failed\n",
				run.Total, run.Written, run.Unchanged, run.Failed)
			if run.ReportPath != "" {
				fmt.Printf("       %s\n", dimStyle.Render("report: "+run.ReportPath))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
