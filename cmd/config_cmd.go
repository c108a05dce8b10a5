package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate and initialise the Propeire configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Database:\n")
		fmt.Printf("    DSN:             %s\n", maskSecret(cfg.Database.DSN))
		fmt.Printf("    Schema:          %s\n", cfg.Database.Schema)
		fmt.Printf("    Connect Timeout: %s\n", cfg.Database.ConnectTimeout)
		fmt.Println()
		fmt.Printf("  Upload:\n")
		fmt.Printf("    Mode:            %s\n", cfg.Upload.Mode)
		fmt.Printf("    Concurrency:     %d\n", cfg.Upload.Concurrency)
		fmt.Printf("    Row Timeout:     %s\n", cfg.Upload.RowTimeout)
		fmt.Printf("    Strict:          %t\n", cfg.Upload.Strict)
		fmt.Printf("    Constraint:      %s\n", cfg.Upload.Constraint)
		fmt.Println()
		fmt.Printf("  Register:\n")
		fmt.Printf("    Schema:          %s\n", cfg.PPR.Schema)
		fmt.Printf("    Residential:     %s\n", cfg.PPR.ResidentialTable)
		fmt.Printf("    Commercial:      %s\n", cfg.PPR.CommercialTable)
		fmt.Printf("    Data Dir:        %s\n", cfg.PPR.DataDir)
		fmt.Println()
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level:           %s\n", cfg.Logging.Level)
		fmt.Printf("    Directory:       %s\n", cfg.Logging.Directory)
		if cfg.Metrics.Addr != "" {
			fmt.Printf("  Metrics:           %s\n", cfg.Metrics.Addr)
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := cfg.Validate()
		if err == nil {
			fmt.Println(successStyle.Render("Configuration is valid."))
			return nil
		}

		var problems []string
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				problems = append(problems, e.Error())
			}
		} else {
			problems = []string{err.Error()}
		}

		fmt.Println("Validation errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", errStyle.Render(p))
		}
		return fmt.Errorf("%d validation error(s)", len(problems))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if _, err := config.Load(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s exists but is not a valid config: %w", path, err)
		}

		out := config.Default()
		// Keep the DSN out of the file; it is read from the environment.
		out.Database.DSN = ""
		if err := out.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
