package updater

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/cmdpanel"

// State is a step of the update state machine.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateApplying    State = "applying"
	StateRestarting  State = "restarting"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// Service checks for, installs and rolls back cmdpanel releases. Every
// operation of a disabled service fails with ErrCodeDisabled.
type Service interface {
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	// ApplyUpdate installs the newest release and schedules a restart.
	ApplyUpdate(ctx context.Context) error
	// Rollback reinstalls the binary saved by the last update.
	Rollback(ctx context.Context) error
	GetStatus(ctx context.Context) *Status
	Restart(ctx context.Context) error
	IsEnabled() bool
	DisabledReason() string
}

// UpdateInfo is the result of a release check.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes"`
	ReleaseURL      string    `json:"release_url"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is a snapshot of the updater.
type Status struct {
	State           State      `json:"state"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Progress        int        `json:"progress,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Options configures NewService.
type Options struct {
	Repository string // owner/name, DefaultRepository when empty
	Prerelease bool
	BackupDir  string // <user cache>/cmdpanel/backup when empty
	// Restart runs after the binary was replaced. The default sends SIGTERM
	// to this process; the CLI passes a no-op.
	Restart func()
	Logger  *slog.Logger
}
