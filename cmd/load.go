package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/propeire/propeire/internal/lock"
	"github.com/propeire/propeire/internal/ppr"
)

var (
	loadPeriod  string
	loadKind    string
	loadFile    string
	loadForce   bool
	loadSchema  string
	loadTable   string
	loadDataDir string
	loadOpts    uploadFlags
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Download and load the property price register",
	Long: `Download the residential or commercial property price register for a
period (ALL, YYYY or YYYY-MM), clean it and upsert it into the register table.

Downloads are cached in the data directory; use --force to fetch again or
--file to load a CSV already on disk.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := ppr.ParseKind(loadKind)
		if err != nil {
			return err
		}
		if err := ppr.ValidateFilter(loadPeriod); err != nil {
			return err
		}

		schemaName := cfg.PPR.Schema
		if cmd.Flags().Changed("schema") {
			schemaName = loadSchema
		}
		table := cfg.PPR.ResidentialTable
		if kind == ppr.KindCommercial {
			table = cfg.PPR.CommercialTable
		}
		if cmd.Flags().Changed("table") {
			table = loadTable
		}
		dataDir := cfg.PPR.DataDir
		if cmd.Flags().Changed("data-dir") {
			dataDir = loadDataDir
		}

		ctx, stop := signalContext()
		defer stop()

		lockPath := lock.Path(dataDir)
		if err := lock.Acquire(lockPath); err != nil {
			return err
		}
		defer lock.Release(lockPath)

		path, source := loadFile, loadFile
		if path == "" {
			source = string(kind) + "/" + loadPeriod
			path, err = fetchRegister(ctx, ppr.NewDownloader(nil, logger), dataDir, kind, loadPeriod)
			if err != nil {
				return err
			}
		}

		b, err := ppr.ReadFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("Read %d sales from %s\n", b.Len(), dimStyle.Render(path))

		return runUpsert(ctx, cmd, b, nil, source, schemaName, table, &loadOpts)
	},
}

// fetchRegister returns the cached export for kind and period, downloading
// it when absent or when --force is set.
func fetchRegister(ctx context.Context, d *ppr.Downloader, dir string, kind ppr.Kind, period string) (string, error) {
	cached := filepath.Join(dir, ppr.FileName(kind, period))
	if !loadForce {
		_, err := os.Stat(cached)
		if err == nil {
			logger.Info("using cached register", "path", cached)
			return cached, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checking cache: %w", err)
		}
	}

	fmt.Printf("Downloading %s register for %s...\n", kind, period)
	return d.Download(ctx, dir, kind, period)
}

func init() {
	loadCmd.Flags().StringVar(&loadPeriod, "period", "ALL", "period to load: ALL, YYYY or YYYY-MM")
	loadCmd.Flags().StringVar(&loadKind, "type", string(ppr.KindResidential), "register type: residential or commercial")
	loadCmd.Flags().StringVarP(&loadFile, "file", "f", "", "load this CSV instead of downloading")
	loadCmd.Flags().BoolVar(&loadForce, "force", false, "download even when a cached file exists")
	loadCmd.Flags().StringVar(&loadSchema, "schema", "", "target schema (default from config)")
	loadCmd.Flags().StringVar(&loadTable, "table", "", "target table (default from config)")
	loadCmd.Flags().StringVar(&loadDataDir, "data-dir", "", "download cache directory (default from config)")
	loadOpts.register(loadCmd)
	rootCmd.AddCommand(loadCmd)
}
