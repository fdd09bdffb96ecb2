package cmd

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/cmdpanel/internal/store"
)

// CreateExportCmd creates the export command.
func CreateExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write all commands to a TOML seed file",
		Long:  `Writes every stored command, in display order, to a seed file that import or the server can load.`,
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			initCLILogging(opts)

			rt, err := NewRuntime(opts, nil)
			if err != nil {
				fail(err)
			}
			defer rt.Store.Close()

			seeds, err := rt.Service.ExportSeeds(cmd.Context())
			if err != nil {
				fail(err)
			}
			if err := store.SaveSeedFile(args[0], seeds); err != nil {
				fail(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d commands to %s\n", len(seeds), args[0])
		}),
	}
}

// CreateImportCmd creates the import command.
func CreateImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update commands from a TOML seed file",
		Long: `Reads a seed file and upserts its commands by name. ` +
			`New commands are appended in file order; existing ones keep their position.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			initCLILogging(opts)

			seeds, err := store.LoadSeedFile(args[0])
			if err != nil {
				fail(err)
			}
			if seeds == nil {
				fail(fmt.Errorf("seed file %s not found", args[0]))
			}

			rt, err := NewRuntime(opts, nil)
			if err != nil {
				fail(err)
			}
			defer rt.Store.Close()

			created, updated, err := rt.Service.ImportSeeds(cmd.Context(), seeds)
			if err != nil {
				fail(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated\n", args[0], created, updated)
		}),
	}
}
