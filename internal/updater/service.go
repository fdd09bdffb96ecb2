package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/cmdpanel/internal/logging"
	"github.com/smazurov/cmdpanel/internal/version"
)

// restartDelay lets the HTTP response that triggered a restart reach the client.
const restartDelay = 500 * time.Millisecond

type service struct {
	source     releaseSource
	backups    *backupManager
	executable func() (string, error)
	restart    func()
	disabled   string
	status     tracker
	logger     *slog.Logger
}

// NewService builds the updater. A binary whose directory cannot be written
// gets a disabled service instead of an error.
func NewService(opts *Options) (Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("updater")
	}

	if reason := replaceBlocker(); reason != "" {
		logger.Warn("Update service disabled", "reason", reason)
		return newDisabledService(reason, logger), nil
	}

	slug := opts.Repository
	if slug == "" {
		slug = DefaultRepository
	}
	source, err := newGitHubSource(slug, opts.Prerelease)
	if err != nil {
		return nil, err
	}

	svc := newService(source, logger)
	if opts.Restart != nil {
		svc.restart = opts.Restart
	}

	dir := opts.BackupDir
	if dir == "" {
		dir, err = defaultBackupDir()
	}
	if err == nil {
		svc.backups, err = newBackupManager(dir, svc.executable, logger)
	}
	if err != nil {
		logger.Warn("Backups unavailable, rollback disabled", "error", err)
	}
	return svc, nil
}

func newService(source releaseSource, logger *slog.Logger) *service {
	svc := &service{
		source:     source,
		executable: selfupdate.ExecutablePath,
		status:     tracker{state: StateIdle, logger: logger},
		logger:     logger,
	}
	svc.restart = svc.terminateSelf
	return svc
}

func newDisabledService(reason string, logger *slog.Logger) *service {
	svc := newService(nil, logger)
	svc.disabled = reason
	svc.restart = nil
	return svc
}

// replaceBlocker reports why the running binary cannot be swapped in place,
// or "" when it can.
func replaceBlocker() string {
	exe, err := os.Executable()
	if err == nil {
		exe, err = filepath.EvalSymlinks(exe)
	}
	if err != nil {
		return fmt.Sprintf("cannot locate executable: %v", err)
	}
	dir := filepath.Dir(exe)
	probe, err := os.CreateTemp(dir, ".cmdpanel.update.*")
	if err != nil {
		return fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return ""
}

func (s *service) IsEnabled() bool { return s.disabled == "" }

func (s *service) DisabledReason() string { return s.disabled }

func (s *service) guard() error {
	if s.disabled != "" {
		return fail(ErrCodeDisabled, nil, "%s", s.disabled)
	}
	return nil
}

// CheckForUpdate asks the release source for the newest build. Nothing is
// downloaded.
func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if !s.status.enter(StateChecking, checkableFrom...) {
		return nil, fail(ErrCodeInvalidState, nil, "cannot check for updates in state %s", s.status.current())
	}

	rel, err := s.source.latest(ctx, version.Version)
	switch {
	case errors.Is(err, errNoRelease):
		s.status.found(nil, time.Now())
		s.status.fail(err)
		return nil, fail(ErrCodeNotFound, err, "repository not found or has no releases")
	case err != nil:
		s.status.fail(err)
		return nil, fail(ErrCodeCheckFailed, err, "failed to check for updates")
	}

	info := &UpdateInfo{CurrentVersion: version.Version, LatestVersion: rel.version}
	if !rel.newer {
		s.status.found(nil, time.Now())
		s.status.enter(StateIdle)
		return info, nil
	}

	s.status.found(rel, time.Now())
	s.status.enter(StateAvailable)
	info.UpdateAvailable = true
	info.ReleaseNotes = rel.notes
	info.ReleaseURL = rel.url
	info.PublishedAt = rel.published
	info.AssetSize = rel.size
	return info, nil
}

// ApplyUpdate installs the pending release over the running binary, checking
// first when nothing is pending. The old binary is backed up and put back if
// the install fails.
func (s *service) ApplyUpdate(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.status.current() != StateAvailable {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return fail(ErrCodeNoUpdate, nil, "already running %s", info.CurrentVersion)
		}
	}
	if !s.status.enter(StateDownloading, StateAvailable) {
		return fail(ErrCodeInvalidState, nil, "cannot apply update in state %s", s.status.current())
	}
	rel := s.status.release()

	if s.backups != nil {
		if err := s.backups.createBackup(); err != nil {
			s.status.fail(err)
			return fail(ErrCodeBackupFailed, err, "failed to back up current binary")
		}
	}

	s.status.enter(StateApplying)
	exe, err := s.executable()
	if err != nil {
		s.status.fail(err)
		return fail(ErrCodeApplyFailed, err, "cannot locate executable")
	}
	if err := rel.install(ctx, exe); err != nil {
		s.status.fail(err)
		s.restoreAfterFailure(err)
		return fail(ErrCodeApplyFailed, err, "failed to install %s", rel.version)
	}

	s.status.enter(StateRestarting)
	s.logger.Info("Update installed, restarting", "version", rel.version)
	s.scheduleRestart()
	return nil
}

// restoreAfterFailure puts the backup back after a failed install. The install error
// stays visible in the status.
func (s *service) restoreAfterFailure(cause error) {
	if s.backups == nil || !s.backups.hasBackup() {
		s.logger.Error("Install failed and no backup is available", "error", cause)
		return
	}
	if err := s.backups.restore(); err != nil {
		s.logger.Error("Failed to restore backup", "error", err)
		return
	}
	s.status.settle(StateRolledBack, cause)
	s.logger.Info("Restored previous binary after failed install")
}

// Rollback puts the backed up binary back and schedules a restart.
func (s *service) Rollback(_ context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.backups == nil || !s.backups.hasBackup() {
		return fail(ErrCodeNoBackup, nil, "no backup available for rollback")
	}
	if err := s.backups.restore(); err != nil {
		return fail(ErrCodeRollbackFailed, err, "failed to restore backup")
	}

	s.status.enter(StateRolledBack)
	s.logger.Info("Rolled back, restarting", "version", s.backups.backupVersion())
	s.scheduleRestart()
	return nil
}

func (s *service) GetStatus(_ context.Context) *Status {
	st := &Status{CurrentVersion: version.Version}
	s.status.fill(st)
	if s.backups != nil {
		st.BackupAvailable = s.backups.hasBackup()
		st.BackupVersion = s.backups.backupVersion()
	}
	return st
}

func (s *service) Restart(_ context.Context) error {
	if s.restart == nil {
		return fail(ErrCodeDisabled, nil, "restart not available")
	}
	s.logger.Info("Restart requested")
	s.scheduleRestart()
	return nil
}

func (s *service) scheduleRestart() {
	if s.restart != nil {
		time.AfterFunc(restartDelay, s.restart)
	}
}

// terminateSelf sends SIGTERM to this process. The server stops its running
// commands on it and the supervisor starts the new binary.
func (s *service) terminateSelf() {
	self, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = self.Signal(syscall.SIGTERM)
	}
	if err != nil {
		s.logger.Error("Failed to send SIGTERM", "error", err)
	}
}
