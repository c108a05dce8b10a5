package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/catalog"
	"github.com/propeire/propeire/internal/schema"
	"github.com/propeire/propeire/internal/uploader"
	"github.com/propeire/propeire/internal/upsert"
)

var (
	inspectMode       string
	inspectConstraint string
	inspectOutput     string
	inspectFrom       string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [<schema> <table>]",
	Short: "Show a table's columns, constraints and upsert statement",
	Long: `Read the column list and the primary key and unique constraints of
schema.table from the catalog and print the upsert statement a full-width
batch would use. Nothing is written.

With --from, the description saved earlier by -o is read instead and no
connection is made.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 && inspectFrom == "" {
			return fmt.Errorf("inspect needs <schema> <table>, or --from")
		}
		var schemaName, table string
		if len(args) == 2 {
			schemaName, table = args[0], args[1]
		}

		mode, err := cfg.Mode()
		if cmd.Flags().Changed("mode") {
			mode, err = upsert.ParseMode(inspectMode)
		}
		if err != nil {
			return err
		}
		constraint := cfg.Upload.Constraint
		if cmd.Flags().Changed("constraint") {
			constraint = inspectConstraint
		}

		tbl, err := inspectTable(schemaName, table)
		if err != nil {
			return explain(err)
		}

		fmt.Println(titleStyle.Render("Table"))
		fmt.Println(tbl.Summary())

		if inspectOutput != "" {
			if err := tbl.WriteYAML(inspectOutput); err != nil {
				return err
			}
			fmt.Println(dimStyle.Render("Table description written to " + inspectOutput))
		}

		target := upsert.Target{Schema: tbl.Schema, Table: tbl.Name, Constraint: constraint}
		stmt, err := upsert.NewStatement(target, tbl.ConstraintNames(), tbl.ColumnNames(), mode)
		if err != nil {
			return explain(err)
		}
		fmt.Println()
		fmt.Printf("%s (%s, on %s)\n", titleStyle.Render("Upsert statement"), mode, highlightStyle.Render(stmt.Constraint()))
		fmt.Println(sqlStyle.Render(stmt.SQL()))
		return nil
	},
}

// inspectTable reads the table from the catalog, or from a description saved
// earlier with -o when --from is set.
func inspectTable(schemaName, table string) (*schema.Table, error) {
	if inspectFrom != "" {
		return schema.LoadYAML(inspectFrom)
	}

	ctx := context.Background()
	conn, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	return catalog.New(uploader.NewSerialSession(conn)).Table(ctx, schemaName, table)
}

func init() {
	inspectCmd.Flags().StringVar(&inspectMode, "mode", "", "conflict mode: skip or update")
	inspectCmd.Flags().StringVar(&inspectConstraint, "constraint", "", "conflict target when the table has several unique constraints")
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "", "also write the table description as YAML")
	inspectCmd.Flags().StringVar(&inspectFrom, "from", "", "read the table description from a YAML file instead of the database")
	rootCmd.AddCommand(inspectCmd)
}
