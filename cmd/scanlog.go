package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sunscout/installer-cli/internal/store"
)

var (
	scanlogInstaller string
	scanlogLimit     int
)

var scanlogCmd = &cobra.Command{
	Use:   "scanlog",
	Short: "Show the scan audit trail",
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

		entries, err := st.ListScanLog(ctx, store.ScanLogFilter{
			InstallerID: scanlogInstaller,
			Limit:       scanlogLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list scan log")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	scanlogCmd.Flags().StringVar(&scanlogInstaller, "installer", "", "filter by installer ID")
	scanlogCmd.Flags().IntVar(&scanlogLimit, "limit", 100, "maximum entries to return")
	rootCmd.AddCommand(scanlogCmd)
}
