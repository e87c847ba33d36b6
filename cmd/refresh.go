package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sniffer-group/propintel-cli/internal/model"
)

var (
	refreshID      string
	refreshName    string
	refreshCity    string
	refreshSources []string
	refreshFull    bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh one known property",
	Long:  "Prices-only by default: re-queries the listing portals and updates just the price columns of the identified row. With --full the complete research pipeline runs instead, replacing research columns while keeping identity.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if refreshID == "" && (refreshName == "" || refreshCity == "") {
			return eris.New("either --id or both --name and --city are required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if refreshFull {
			if refreshName == "" || refreshCity == "" {
				return eris.New("--full requires --name and --city")
			}
			out, err := env.Pipeline.ResearchProperty(ctx, refreshName, refreshCity)
			if err != nil {
				return err
			}
			return printJSON(out)
		}

		ref := model.ProjectRef{ID: refreshID, ProjectName: refreshName, City: refreshCity}
		if ref.ID == "" {
			prop, err := env.Store.FindProject(ctx, refreshName, refreshCity)
			if err != nil {
				return eris.Wrap(err, "look up project")
			}
			if prop == nil {
				return eris.Errorf("no project named %q in %s; run discover first", refreshName, refreshCity)
			}
			ref = model.ProjectRef{ID: prop.ID, ProjectName: prop.ProjectName, City: prop.City}
		}

		out := env.Pipeline.RefreshPricesOnly(ctx, ref, refreshSources)
		zap.L().Info("refresh complete",
			zap.String("id", ref.ID),
			zap.String("status", string(out.Status)),
			zap.Strings("updated_columns", out.UpdatedColumns),
		)
		return printJSON(out)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	refreshCmd.Flags().StringVar(&refreshID, "id", "", "property id")
	refreshCmd.Flags().StringVar(&refreshName, "name", "", "project name (used with --city when --id is not set)")
	refreshCmd.Flags().StringVar(&refreshCity, "city", "", "city")
	refreshCmd.Flags().StringSliceVar(&refreshSources, "sources", nil, "price sources to refresh (default all: 99acres,google,housing,magicbricks,nobroker)")
	refreshCmd.Flags().BoolVar(&refreshFull, "full", false, "run the full research pipeline instead of prices-only")
	rootCmd.AddCommand(refreshCmd)
}
