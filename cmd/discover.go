package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <project-name> <city>",
	Short: "Research a property across listing portals and persist the result",
	Long:  "Runs the full pipeline for one property: fan-out grounded search, structured extraction, lender resolution, and an insert-or-update against approved_projects. New properties found in the sources are inserted; a known property keeps its identity columns.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.ResearchProperty(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		zap.L().Info("discover complete",
			zap.String("project", args[0]),
			zap.String("city", args[1]),
			zap.String("status", string(out.Status)),
			zap.Int("projects", len(out.Projects)),
		)

		return printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
