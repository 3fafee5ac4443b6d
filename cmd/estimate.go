package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sunscout/installer-cli/internal/estimate"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <installer-id>",
	Short: "Estimate installed capacity for a stored installer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		installer, err := st.GetInstaller(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get installer")
		}
		if installer == nil {
			return eris.Errorf("installer %s not found", args[0])
		}

		projects, err := st.ListPortfolio(ctx, installer.ID)
		if err != nil {
			return eris.Wrap(err, "list portfolio")
		}

		estimator := estimate.New(estimate.Config{
			PortfolioConfidence: cfg.Estimate.PortfolioConfidence,
			HeuristicConfidence: cfg.Estimate.HeuristicConfidence,
			FloorConfidence:     cfg.Estimate.FloorConfidence,
			CommercialUnitKW:    cfg.Estimate.CommercialUnitKW,
			ResidentialUnitKW:   cfg.Estimate.ResidentialUnitKW,
			MinProjects:         cfg.Estimate.MinProjects,
		})

		result := estimator.Estimate(*installer, projects)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
