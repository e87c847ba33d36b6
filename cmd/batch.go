package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/store"
)

var (
	batchDays        int
	batchCities      []string
	batchLimit       int
	batchConcurrency int
	batchSources     []string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Bulk prices-only refresh over stale properties",
	Long:  "Selects approved_projects rows whose updated_at is older than the staleness window (never-updated rows first), then runs a bounded-concurrency prices-only refresh over them. Individual failures never abort the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		days := batchDays
		if days == 0 {
			days = cfg.Batch.StaleDays
		}
		limit := batchLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrentProjects
		}

		summary, err := env.Pipeline.BulkRefreshPrices(ctx, store.StaleFilter{
			Days:   days,
			Cities: batchCities,
			Limit:  limit,
		}, batchSources, concurrency)
		if err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("selected", summary.TotalSelected),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return printJSON(summary)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchDays, "days", 0, "staleness window in days (default from config)")
	batchCmd.Flags().StringSliceVar(&batchCities, "cities", nil, "restrict to these cities")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max properties to refresh (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent refreshes (default from config)")
	batchCmd.Flags().StringSliceVar(&batchSources, "sources", nil, "price sources to refresh (default all)")
	rootCmd.AddCommand(batchCmd)
}
