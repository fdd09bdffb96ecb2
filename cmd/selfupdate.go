package cmd

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/cmdpanel/internal/logging"
	"github.com/smazurov/cmdpanel/internal/updater"
)

// CreateSelfUpdateCmd creates the self-update command.
func CreateSelfUpdateCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Replace this binary with the latest release",
		Long: `Checks the configured GitHub repository for a newer release and installs it. ` +
			`The previous binary is kept as a backup for the server's rollback endpoint. ` +
			`A running server is not restarted.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			initCLILogging(opts)
			out := cmd.OutOrStdout()

			svc, err := updater.NewService(&updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
				Restart:    func() {},
				Logger:     logging.GetLogger("updater"),
			})
			if err != nil {
				fail(err)
			}
			if !svc.IsEnabled() {
				fail(fmt.Errorf("self-update unavailable: %s", svc.DisabledReason()))
			}

			info, err := svc.CheckForUpdate(cmd.Context())
			if err != nil {
				fail(err)
			}
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "Already up to date (%s)\n", info.CurrentVersion)
				return
			}

			fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintln(out, info.ReleaseURL)
			}
			if checkOnly {
				return
			}

			if err := svc.ApplyUpdate(cmd.Context()); err != nil {
				fail(err)
			}
			fmt.Fprintf(out, "Installed %s\n", info.LatestVersion)
		}),
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	return cmd
}
