package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/smazurov/cmdpanel/internal/commands"
	"github.com/smazurov/cmdpanel/internal/metrics"
)

// Default timeouts.
const (
	DefaultGracePeriod  = 5 * time.Second
	DefaultDrainTimeout = time.Second
	killTimeout         = 5 * time.Second
)

// Store persists run output and results.
type Store interface {
	CreateLogLine(ctx context.Context, line *commands.LogLine) error
	SetLastRunResult(ctx context.Context, id int64, kind commands.ResultKind, code *string) error
}

// Notifier signals that a command or its log changed.
type Notifier interface {
	CommandChanged(id int64)
	CommandLogChanged(id int64)
}

// Options configures a new Manager.
type Options struct {
	// Store records log lines and run results (required).
	Store Store

	// Notifier receives change signals. If nil, changes are not announced.
	Notifier Notifier

	// Logger for manager operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// Shell runs commands. Empty selects DefaultShell().
	Shell string

	// GracePeriod is how long Kill waits after the graceful signal.
	GracePeriod time.Duration

	// DrainTimeout bounds the wait for output after a kill.
	DrainTimeout time.Duration

	// ExitDrainTimeout bounds the wait for output after a natural exit.
	// Zero waits until both streams close.
	ExitDrainTimeout time.Duration

	// Terminator stops child processes. If nil, uses DefaultTerminator().
	Terminator Terminator

	// Clock supplies log line timestamps. If nil, uses time.Now.
	Clock func() time.Time
}

// Manager runs commands and finalizes each run exactly once.
type Manager struct {
	store            Store
	notifier         Notifier
	logger           *slog.Logger
	shell            string
	gracePeriod      time.Duration
	drainTimeout     time.Duration
	exitDrainTimeout time.Duration
	terminator       Terminator
	now              func() time.Time

	registry *Registry
	watchers sync.WaitGroup
}

// NewManager creates a process manager.
func NewManager(opts *Options) *Manager {
	if opts == nil || opts.Store == nil {
		panic("Options with Store is required")
	}

	m := &Manager{
		store:            opts.Store,
		notifier:         opts.Notifier,
		logger:           opts.Logger,
		shell:            opts.Shell,
		gracePeriod:      opts.GracePeriod,
		drainTimeout:     opts.DrainTimeout,
		exitDrainTimeout: opts.ExitDrainTimeout,
		terminator:       opts.Terminator,
		now:              opts.Clock,
		registry:         NewRegistry(),
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.gracePeriod <= 0 {
		m.gracePeriod = DefaultGracePeriod
	}
	if m.drainTimeout <= 0 {
		m.drainTimeout = DefaultDrainTimeout
	}
	if m.terminator == nil {
		m.terminator = DefaultTerminator()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Status reports whether the command is running, stopping or stopped.
func (m *Manager) Status(id int64) commands.RunStatus {
	return m.registry.Status(id)
}

// Run spawns cmd and returns once the child is registered as running or a
// spawn failure has been recorded as an error result. A second Run for the
// same id fails with commands.ErrAlreadyRunning until the first run is
// stopped. Store failures are logged and returned; the run continues.
func (m *Manager) Run(ctx context.Context, cmd commands.Command) error {
	rn := newRun(cmd.ID, m.logger)
	if err := m.registry.Register(cmd.ID, rn); err != nil {
		return err
	}

	// Writes outlive the request that started the run.
	ctx = context.WithoutCancel(ctx)

	cwd := resolveCwd(cmd.Cwd)
	child, out, err := spawn(m.shell, cmd.Command, cwd)
	if err != nil {
		return m.spawnFailed(ctx, rn, err)
	}

	rn.cmd = child
	go rn.reap()
	metrics.RunStarted()
	rn.logger.Info("Command started", "pid", child.Process.Pid, "command", cmd.Command, "cwd", cwd)

	startErr := errors.Join(
		m.writeLine(ctx, rn, commands.SourceInfo, fmt.Sprintf("Running command `%s` at `%s`", cmd.Command, cwd)),
		m.setResult(ctx, rn, commands.ResultNone, nil),
	)

	rn.output = collectOutput(out.stdout, out.stderr, func(source commands.Source, text string) {
		_ = m.writeLine(ctx, rn, source, text)
	})

	watchCtx, cancel := context.WithCancel(ctx)
	rn.cancelWatch = cancel
	rn.phase.Store(phaseWatching)

	m.watchers.Add(1)
	go func() {
		defer m.watchers.Done()
		defer close(rn.done)
		m.watch(watchCtx, ctx, rn)
	}()
	close(rn.ready)

	m.notifier.CommandChanged(cmd.ID)
	m.notifier.CommandLogChanged(cmd.ID)
	return startErr
}

// spawnFailed records a failed spawn as a terminal error result.
func (m *Manager) spawnFailed(ctx context.Context, rn *run, spawnErr error) error {
	rn.logger.Warn("Failed to start command", "error", spawnErr)

	err := errors.Join(
		m.writeLine(ctx, rn, commands.SourceInfo, fmt.Sprintf("Failed to start command: %v", spawnErr)),
		m.setResult(ctx, rn, commands.ResultError, nil),
	)

	m.registry.Take(rn.id, rn)
	close(rn.ready)
	metrics.RunFinished(string(commands.ResultError), false)

	m.notifier.CommandChanged(rn.id)
	m.notifier.CommandLogChanged(rn.id)
	return err
}

// watch waits for the child to exit and its output to drain, then records the
// exit result. Cancelling ctx before that makes it return without side
// effects; Kill does so to take over a run.
func (m *Manager) watch(ctx, storeCtx context.Context, rn *run) {
	select {
	case <-ctx.Done():
		return
	case <-rn.exited:
	}

	if !rn.phase.CompareAndSwap(phaseWatching, phaseDraining) {
		return
	}

	// Descendants may keep the pipes open long after the child exits.
	if err := rn.output.wait(ctx, m.exitDrainTimeout); err != nil && ctx.Err() == nil {
		rn.logger.Warn("Output collection ended early", "error", err)
	}

	if !rn.phase.CompareAndSwap(phaseDraining, phaseFinishing) {
		return
	}

	status := exitStatus(rn.state)
	err := errors.Join(
		m.writeLine(storeCtx, rn, commands.SourceInfo, "Command finished with status "+status),
		m.setResult(storeCtx, rn, commands.ResultExit, exitCode(rn.state)),
	)
	if err != nil {
		rn.logger.Error("Failed to record command exit", "error", err)
	}

	m.registry.Take(rn.id, rn)
	metrics.RunFinished(string(commands.ResultExit), true)
	rn.logger.Info("Command finished", "status", status)

	m.notifier.CommandChanged(rn.id)
	m.notifier.CommandLogChanged(rn.id)
}

// Kill stops the command's run: a graceful signal first, a force kill after
// the grace period. A run whose child already exited while descendants hold
// its output open is killed too. It is a no-op when the command is not
// running. When Kill returns the command is stopped and a killed result has
// been recorded.
func (m *Manager) Kill(ctx context.Context, id int64) error {
	rn, err := m.registry.TakeForStop(ctx, id)
	if err != nil {
		return fmt.Errorf("wait for command %d: %w", id, err)
	}
	if rn == nil {
		return nil
	}
	m.notifier.CommandChanged(id)
	rn.logger.Info("Stopping command")

	// The watcher must be gone before the child handle is touched.
	rn.cancelWatch()
	<-rn.done

	m.terminate(ctx, rn)
	m.stopLeftovers(rn)

	storeCtx := context.WithoutCancel(ctx)
	if err := rn.output.wait(storeCtx, m.drainTimeout); err != nil {
		rn.logger.Warn("Output did not drain after kill", "error", err)
	}

	err = errors.Join(
		m.writeLine(storeCtx, rn, commands.SourceInfo, "Command killed."),
		m.setResult(storeCtx, rn, commands.ResultKilled, nil),
	)

	m.registry.FinishStop(id)
	metrics.RunFinished(string(commands.ResultKilled), true)
	rn.logger.Info("Command killed")

	m.notifier.CommandChanged(id)
	m.notifier.CommandLogChanged(id)
	return err
}

// terminate signals the child and waits for it to be reaped. A failed
// graceful signal escalates straight to a force kill.
func (m *Manager) terminate(ctx context.Context, rn *run) {
	sent, err := rn.signal(m.terminator.Terminate)
	if !sent {
		return
	}

	if err != nil {
		rn.logger.Warn("Graceful termination failed, forcing kill", "error", err)
	} else {
		timer := time.NewTimer(m.gracePeriod)
		select {
		case <-rn.exited:
			timer.Stop()
			return
		case <-timer.C:
			rn.logger.Warn("Grace period elapsed, forcing kill", "grace_period", m.gracePeriod)
		case <-ctx.Done():
			timer.Stop()
			rn.logger.Warn("Kill cancelled, forcing kill", "error", ctx.Err())
		}
	}

	sent, err = rn.signal(m.terminator.ForceKill)
	if !sent {
		return
	}
	if err != nil {
		rn.logger.Error("Failed to force kill", "error", err)
		return
	}

	select {
	case <-rn.exited:
	case <-time.After(killTimeout):
		rn.logger.Error("Process did not exit after force kill", "timeout", killTimeout)
	}
}

// stopLeftovers kills what the child left running once it has been reaped,
// as long as something still holds its output open.
func (m *Manager) stopLeftovers(rn *run) {
	select {
	case <-rn.output.done:
		return
	default:
	}

	killer, ok := m.terminator.(leftoverKiller)
	if !ok {
		return
	}
	pid := rn.leftoverPid()
	if pid == 0 {
		return
	}
	if err := killer.KillLeftovers(pid); err != nil {
		rn.logger.Warn("Failed to kill leftover processes", "error", err)
		return
	}
	rn.logger.Info("Killed leftover processes", "pgid", pid)
}

// Shutdown kills every running command in parallel and waits for watchers
// of naturally exiting runs.
func (m *Manager) Shutdown(ctx context.Context) error {
	ids := m.registry.IDs()
	if len(ids) > 0 {
		m.logger.Info("Stopping all commands", "count", len(ids))
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Kill(ctx, id)
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		m.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for watchers: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// writeLine persists one log line for the run and announces it. Store
// failures are logged, counted and returned.
func (m *Manager) writeLine(ctx context.Context, rn *run, source commands.Source, text string) error {
	ts, err := timestamp(m.now())
	if err != nil {
		rn.logger.Error("Failed to capture timestamp", "error", err)
	}

	line := &commands.LogLine{CommandID: rn.id, Source: source, Text: text, Timestamp: ts}
	if err := m.store.CreateLogLine(ctx, line); err != nil {
		metrics.StoreError(metrics.OpLogLine)
		rn.logger.Error("Failed to store log line", "source", source.String(), "error", err)
		return fmt.Errorf("store %s line: %w", source, err)
	}

	metrics.LogLine(source.String())
	m.notifier.CommandLogChanged(rn.id)
	return nil
}

func (m *Manager) setResult(ctx context.Context, rn *run, kind commands.ResultKind, code *string) error {
	if err := m.store.SetLastRunResult(ctx, rn.id, kind, code); err != nil {
		metrics.StoreError(metrics.OpRunResult)
		rn.logger.Error("Failed to record run result", "result", string(kind), "error", err)
		return fmt.Errorf("record %s result: %w", kind, err)
	}
	return nil
}

// resolveCwd falls back to the home directory for an empty cwd.
func resolveCwd(cwd string) string {
	if cwd != "" {
		return cwd
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return cwd
}

type nopNotifier struct{}

func (nopNotifier) CommandChanged(int64)    {}
func (nopNotifier) CommandLogChanged(int64) {}
