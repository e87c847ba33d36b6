package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

var (
	lendersDays        int
	lendersLimit       int
	lendersConcurrency int
)

var lendersCmd = &cobra.Command{
	Use:   "lenders",
	Short: "Manage the canonical lender registry",
}

var lendersRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Bulk refresh home-loan terms for stale lenders",
	Long:  "Selects lenders whose terms have not been updated within the staleness window and re-researches each one: interest rate range, LTV, credit score and amount bounds, tenure, approval time, fees, offers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := lendersConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrentProjects
		}

		summary, err := env.Pipeline.BulkRefreshLenderTerms(ctx, lendersDays, lendersLimit, concurrency)
		if err != nil {
			return err
		}

		zap.L().Info("lender terms refresh complete",
			zap.Int("selected", summary.TotalSelected),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return printJSON(summary)
	},
}

var lendersAddCmd = &cobra.Command{
	Use:   "add <lender-name>...",
	Short: "Add lenders to the canonical registry",
	Long:  "Inserts one row per name into the lenders table. Names already present are left untouched, so re-running a seed list is safe.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		for _, name := range args {
			l := model.Lender{LenderName: name}
			if err := st.InsertLender(ctx, &l); err != nil {
				return err
			}
			zap.L().Info("lender added", zap.String("name", name), zap.String("id", l.ID))
		}
		return nil
	},
}

func init() {
	lendersRefreshCmd.Flags().IntVar(&lendersDays, "days", 1, "staleness window in days")
	lendersRefreshCmd.Flags().IntVar(&lendersLimit, "limit", 0, "max lenders to refresh (0 = no limit)")
	lendersRefreshCmd.Flags().IntVar(&lendersConcurrency, "concurrency", 0, "concurrent refreshes (default from config)")
	lendersCmd.AddCommand(lendersRefreshCmd)
	lendersCmd.AddCommand(lendersAddCmd)
	rootCmd.AddCommand(lendersCmd)
}
