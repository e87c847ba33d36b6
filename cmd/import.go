package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/db"
	"github.com/sniffer-group/propintel-cli/internal/importer"
	"github.com/sniffer-group/propintel-cli/internal/store"
)

var (
	importFile     string
	importSheet    string
	importSkipRows int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed approved_projects from a spreadsheet",
	Long:  "Reads an approved-project sheet (XLSX or CSV) and bulk-upserts it on the (project_name, city) natural key. Columns the sheet does not carry are never touched, so re-importing cannot blank pipeline-fetched prices. Requires the postgres driver.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if cfg.Store.Driver != "postgres" {
			return eris.New("import requires store.driver=postgres (bulk upsert uses COPY)")
		}

		sheet, err := readSheet(importFile, importer.Options{
			SheetName: importSheet,
			SkipRows:  importSkipRows,
		})
		if err != nil {
			return err
		}
		if len(sheet.Records) == 0 {
			zap.L().Info("sheet has no importable rows", zap.String("file", importFile))
			return nil
		}

		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := db.BulkUpsert(ctx, st.Pool(), sheet.UpsertConfig("approved_projects"), sheet.Rows(time.Now().UTC()))
		if err != nil {
			return eris.Wrap(err, "import sheet")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("rows_in_sheet", len(sheet.Records)),
			zap.Int64("rows_upserted", n),
		)
		return nil
	},
}

// readSheet picks the parser by file extension.
func readSheet(path string, opts importer.Options) (*importer.Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open csv")
		}
		defer f.Close()
		return importer.ReadCSV(f, opts)
	case ".xlsx":
		return importer.ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("unsupported sheet format %q (want .xlsx or .csv)", filepath.Ext(path))
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to XLSX or CSV sheet (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 0, "rows to skip before the header")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
