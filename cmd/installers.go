package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sunscout/installer-cli/internal/store"
)

var (
	installersSpecialty string
	installersLimit     int
	installersOffset    int
)

var installersCmd = &cobra.Command{
	Use:   "installers",
	Short: "List installers in the directory",
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

		installers, err := st.ListInstallers(ctx, store.InstallerFilter{
			Specialty: installersSpecialty,
			Limit:     installersLimit,
			Offset:    installersOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list installers")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(installers)
	},
}

var installersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one installer with its reference links",
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

		refs, err := st.ListReferenceLinks(ctx, installer.ID)
		if err != nil {
			return eris.Wrap(err, "list reference links")
		}

		out := struct {
			Installer any `json:"installer"`
			Links     any `json:"reference_links"`
		}{installer, refs}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	installersCmd.Flags().StringVar(&installersSpecialty, "specialty", "", "filter by specialty slug")
	installersCmd.Flags().IntVar(&installersLimit, "limit", 50, "maximum rows to return")
	installersCmd.Flags().IntVar(&installersOffset, "offset", 0, "rows to skip")
	installersCmd.AddCommand(installersShowCmd)
	rootCmd.AddCommand(installersCmd)
}
