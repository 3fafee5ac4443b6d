package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunscout/installer-cli/internal/classify"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the schema and seed the specialty taxonomy",
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

		tags := classify.Tags()
		if err := st.SeedSpecialtyTags(ctx, tags); err != nil {
			return eris.Wrap(err, "seed specialty tags")
		}

		zap.L().Info("taxonomy seeded", zap.Int("tags", len(tags)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
