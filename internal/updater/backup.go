// Package updater replaces the cmdpanel binary with the latest GitHub
// release, keeping one backup of the previous binary for rollback.
package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/cmdpanel/internal/version"
)

const (
	backupFilename     = "cmdpanel.backup"
	backupInfoFilename = "backup.json"
)

var errNoBackup = errors.New("no backup available")

// backupMeta describes the binary saved in the backup directory.
type backupMeta struct {
	Version   string    `json:"version"`
	Target    string    `json:"target"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// backupManager keeps a single copy of the binary that was running before
// the last update.
type backupManager struct {
	dir      string
	execPath func() (string, error)
	logger   *slog.Logger

	mu   sync.RWMutex
	meta *backupMeta
}

func defaultBackupDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get cache directory: %w", err)
	}
	return filepath.Join(cache, "cmdpanel", "backup"), nil
}

func newBackupManager(dir string, execPath func() (string, error), logger *slog.Logger) (*backupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, execPath: execPath, logger: logger}
	if meta, err := m.readMeta(); err != nil {
		logger.Debug("No usable backup", "dir", dir, "error", err)
	} else {
		m.meta = meta
		logger.Info("Found backup from previous update", "version", meta.Version)
	}
	return m, nil
}

func (m *backupManager) binPath() string  { return filepath.Join(m.dir, backupFilename) }
func (m *backupManager) metaPath() string { return filepath.Join(m.dir, backupInfoFilename) }

// readMeta loads the metadata left by an earlier process. The saved binary
// must still be present with the recorded size.
func (m *backupManager) readMeta() (*backupMeta, error) {
	data, err := os.ReadFile(m.metaPath())
	if err != nil {
		return nil, err
	}
	var meta backupMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt backup metadata: %w", err)
	}
	if err := m.checkBinary(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *backupManager) checkBinary(meta *backupMeta) error {
	fi, err := os.Stat(m.binPath())
	if err != nil {
		return err
	}
	if fi.Size() != meta.Size {
		return fmt.Errorf("backup binary is %d bytes, expected %d", fi.Size(), meta.Size)
	}
	return nil
}

func (m *backupManager) createBackup() error {
	target, err := m.execPath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	size, err := replaceFile(target, m.binPath())
	if err != nil {
		return fmt.Errorf("failed to copy executable: %w", err)
	}

	meta := &backupMeta{
		Version:   version.Version,
		Target:    target,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.metaPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}

	m.mu.Lock()
	m.meta = meta
	m.mu.Unlock()
	m.logger.Info("Backed up current binary", "version", meta.Version, "path", m.binPath())
	return nil
}

func (m *backupManager) restore() error {
	m.mu.RLock()
	meta := m.meta
	m.mu.RUnlock()
	if meta == nil {
		return errNoBackup
	}
	if err := m.checkBinary(meta); err != nil {
		return fmt.Errorf("backup unusable: %w", err)
	}
	if _, err := replaceFile(m.binPath(), meta.Target); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	m.logger.Info("Restored backup", "version", meta.Version, "target", meta.Target)
	return nil
}

func (m *backupManager) hasBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta != nil
}

func (m *backupManager) backupVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meta == nil {
		return ""
	}
	return m.meta.Version
}

// replaceFile copies src into a temp file beside dst and renames it over dst,
// so dst is either the old or the new content. This also works for a running
// executable on Unix.
func replaceFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in)
	if err == nil {
		err = tmp.Chmod(0o755)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, os.Rename(tmp.Name(), dst)
}
