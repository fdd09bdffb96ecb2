package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/cmdpanel/cmd"
	"github.com/smazurov/cmdpanel/internal/api"
	"github.com/smazurov/cmdpanel/internal/commands"
	"github.com/smazurov/cmdpanel/internal/config"
	"github.com/smazurov/cmdpanel/internal/events"
	"github.com/smazurov/cmdpanel/internal/logging"
	"github.com/smazurov/cmdpanel/internal/metrics"
	"github.com/smazurov/cmdpanel/internal/store"
	"github.com/smazurov/cmdpanel/internal/updater"
	"github.com/smazurov/cmdpanel/internal/version"
	"github.com/smazurov/cmdpanel/ui"
)

const shutdownTimeout = 30 * time.Second

// app is the long-running server. Start and stop may race when a signal
// arrives during startup, so both hold the lock.
type app struct {
	mu      sync.Mutex
	opts    *cmd.Options
	logger  *slog.Logger
	runtime *cmd.Runtime
	watcher *config.Watcher[[]commands.Seed]
	server  *api.Server
	stopped bool
}

func (a *app) start() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}

	// Create event bus for in-process event handling
	eventBus := events.New()
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(api.LogEntryToEvent(entry))
	})

	rt, err := cmd.NewRuntime(a.opts, events.NewNotifier(eventBus))
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.runtime = rt

	a.importSeeds()

	a.watcher = config.NewFileWatcher(a.opts.CommandsSeedFile, store.LoadSeedFile, a.logger)
	a.watcher.OnReload(func(seeds []commands.Seed) {
		a.logger.Info("Seed file changed, importing", "path", a.opts.CommandsSeedFile)
		if _, _, err := rt.Service.ImportSeeds(context.Background(), seeds); err != nil {
			a.logger.Error("Failed to import seed file", "error", err)
		}
	})
	if err := a.watcher.Start(); err != nil {
		a.logger.Warn("Failed to watch seed file", "path", a.opts.CommandsSeedFile, "error", err)
	}

	updateService, err := updater.NewService(&updater.Options{
		Repository: a.opts.UpdateRepository,
		Prerelease: a.opts.UpdatePrerelease,
	})
	if err != nil {
		a.logger.Warn("Update service unavailable", "error", err)
		updateService = nil
	}

	apiOpts := &api.Options{
		AuthUsername:   a.opts.AuthUsername,
		AuthPassword:   a.opts.AuthPassword,
		CommandService: rt.Service,
		EventBus:       eventBus,
		UpdateService:  updateService,
	}
	if a.opts.MetricsPrometheusEnabled {
		apiOpts.PrometheusHandler = metrics.Handler(a.logger)
	}
	if uiHandler, err := ui.Handler(); err != nil {
		a.logger.Warn("Frontend unavailable", "error", err)
	} else {
		apiOpts.UIHandler = uiHandler
	}
	if apiOpts.AuthUsername == "" {
		a.logger.Warn("Basic auth disabled, API is open to anyone who can reach it")
	}

	a.server = api.NewServer(apiOpts)
	server := a.server
	a.mu.Unlock()

	a.logger.Info("Starting HTTP server", "port", a.opts.Port)
	if err := server.Start(a.opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) importSeeds() {
	seeds, err := store.LoadSeedFile(a.opts.CommandsSeedFile)
	if err != nil {
		a.logger.Warn("Failed to load seed file", "path", a.opts.CommandsSeedFile, "error", err)
		return
	}
	if seeds == nil {
		return
	}
	if _, _, err := a.runtime.Service.ImportSeeds(context.Background(), seeds); err != nil {
		a.logger.Error("Failed to import seed file", "error", err)
	}
}

func (a *app) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("Shutting down server")
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Error stopping seed file watcher", "error", err)
		}
	}

	// Kill running commands after the HTTP server stops accepting requests
	if a.runtime != nil {
		if err := a.runtime.Close(ctx); err != nil {
			a.logger.Error("Error stopping commands", "error", err)
		}
	}
	logging.SetLogCallback(nil)
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())

		a := &app{opts: opts, logger: logging.GetLogger("main")}

		hooks.OnStart(func() {
			a.logger.Info("Starting cmdpanel", "version", version.Version)
			if err := a.start(); err != nil {
				a.logger.Error("Failed to start server", "error", err)
				a.stop()
				os.Exit(1)
			}
		})

		hooks.OnStop(a.stop)
	})

	root := cli.Root()
	root.Use = "cmdpanel"
	root.Short = "Run and inspect stored shell commands"
	root.Version = version.Get().String()

	root.AddCommand(
		cmd.CreateExecCmd(),
		cmd.CreateListCmd(),
		cmd.CreateExportCmd(),
		cmd.CreateImportCmd(),
		cmd.CreateSelfUpdateCmd(),
	)

	// Run the CLI
	cli.Run()
}
