// Package cmd holds the cmdpanel command line: shared options and the
// subcommands that work on the command database without the HTTP server.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/cmdpanel/internal/commands"
	"github.com/smazurov/cmdpanel/internal/logging"
	"github.com/smazurov/cmdpanel/internal/process"
	"github.com/smazurov/cmdpanel/internal/store"
)

// Options for the CLI - flat structure with toml mapping.
// Durations are strings so flags, env and TOML all accept "5s" forms.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Storage settings
	DatabasePath string `help:"SQLite database file" default:"cmdpanel.db" toml:"database.path" env:"DATABASE_PATH"`

	// Commands settings
	CommandsSeedFile string `help:"Command definitions imported at startup and on change" default:"commands.toml" toml:"commands.seed_file" env:"COMMANDS_SEED_FILE"`

	// Process settings
	ProcessShell            string `help:"Shell used to run commands (default: $SHELL or /bin/sh; cmd.exe on Windows)" toml:"process.shell" env:"PROCESS_SHELL"`
	ProcessGracePeriod      string `help:"Time a killed command gets to exit before it is force killed" default:"5s" toml:"process.grace_period" env:"PROCESS_GRACE_PERIOD"`
	ProcessDrainTimeout     string `help:"Time to wait for output after a kill" default:"1s" toml:"process.drain_timeout" env:"PROCESS_DRAIN_TIMEOUT"`
	ProcessExitDrainTimeout string `help:"Time to wait for output after a command exits (0 waits until its streams close)" default:"0s" toml:"process.exit_drain_timeout" env:"PROCESS_EXIT_DRAIN_TIMEOUT"`

	// Observability settings
	MetricsPrometheusEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Update settings
	UpdateRepository string `help:"GitHub repository used for self-update" default:"smazurov/cmdpanel" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases in self-update" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (auth is off when empty)" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess  string `help:"Process manager logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingCommands string `help:"Command service logging level" default:"info" toml:"logging.commands" env:"LOGGING_COMMANDS"`
	LoggingStore    string `help:"Store logging level" default:"info" toml:"logging.store" env:"LOGGING_STORE"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// LoggingConfig returns the logging setup described by the options.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"process":  o.LoggingProcess,
			"commands": o.LoggingCommands,
			"store":    o.LoggingStore,
			"api":      o.LoggingAPI,
		},
	}
}

// ProcessOptions builds process manager options. Unparsable durations fall
// back to the manager defaults with a warning.
func (o *Options) ProcessOptions(st process.Store, notifier process.Notifier, logger *slog.Logger) *process.Options {
	return &process.Options{
		Store:            st,
		Notifier:         notifier,
		Logger:           logger,
		Shell:            o.ProcessShell,
		GracePeriod:      parseDuration(logger, "process.grace_period", o.ProcessGracePeriod),
		DrainTimeout:     parseDuration(logger, "process.drain_timeout", o.ProcessDrainTimeout),
		ExitDrainTimeout: parseDuration(logger, "process.exit_drain_timeout", o.ProcessExitDrainTimeout),
	}
}

func parseDuration(logger *slog.Logger, name, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logger.Warn("Invalid duration, using default", "option", name, "value", value)
		return 0
	}
	return d
}

// Runtime is the command stack shared by the server and the CLI.
type Runtime struct {
	Store   *store.SQLite
	Manager *process.Manager
	Service *commands.Service
}

// NewRuntime opens the database and wires the manager and service.
// A nil notifier disables change notifications.
func NewRuntime(o *Options, notifier commands.Notifier) (*Runtime, error) {
	st, err := store.OpenSQLite(o.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", o.DatabasePath, err)
	}

	var procNotifier process.Notifier
	if notifier != nil {
		procNotifier = notifier
	} else {
		notifier = nopNotifier{}
	}

	mgr := process.NewManager(o.ProcessOptions(st, procNotifier, logging.GetLogger("process")))
	svc := commands.NewService(&commands.ServiceOptions{
		Store:    st,
		Runner:   mgr,
		Notifier: notifier,
		Logger:   logging.GetLogger("commands"),
	})

	return &Runtime{Store: st, Manager: mgr, Service: svc}, nil
}

// Close kills every running command, then closes the database.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(r.Manager.Shutdown(ctx), r.Store.Close())
}

type nopNotifier struct{}

func (nopNotifier) CommandChanged(int64)    {}
func (nopNotifier) CommandLogChanged(int64) {}
