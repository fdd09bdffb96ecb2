package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/cmdpanel/internal/commands"
	"github.com/smazurov/cmdpanel/internal/logging"
)

// CreateListCmd creates the list command.
func CreateListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored commands",
		Long:  `Prints the stored commands in display order together with the result of their last run.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			initCLILogging(opts)

			rt, err := NewRuntime(opts, nil)
			if err != nil {
				fail(err)
			}
			defer rt.Store.Close()

			cmds, err := rt.Service.ListCommands(cmd.Context())
			if err != nil {
				fail(err)
			}
			if err := renderCommands(cmd.OutOrStdout(), format, cmds); err != nil {
				fail(err)
			}
		}),
	}

	cmd.Flags().StringVarP(&format, "output", "o", FormatText, "Output format (text, json, yaml)")
	return cmd
}

// initCLILogging sends logs to stderr, away from command output, and keeps
// them to warnings unless debug logging was asked for.
func initCLILogging(opts *Options) {
	cfg := opts.LoggingConfig()
	cfg.Output = os.Stderr
	if cfg.Level != "debug" {
		cfg.Level = "warn"
		for module := range cfg.Modules {
			cfg.Modules[module] = "warn"
		}
	}
	logging.Initialize(cfg)
}

// resolveCommand finds a command by numeric id or by exact name.
func resolveCommand(ctx context.Context, svc *commands.Service, ref string) (*commands.Command, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return svc.GetCommand(ctx, id)
	}

	cmds, err := svc.ListCommands(ctx)
	if err != nil {
		return nil, err
	}
	var found *commands.Command
	for i := range cmds {
		if cmds[i].Name != ref {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("name %q matches more than one command; use the id", ref)
		}
		found = &cmds[i]
	}
	if found == nil {
		return nil, fmt.Errorf("no command named %q", ref)
	}
	return found, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
