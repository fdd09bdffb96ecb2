package models

import "time"

// UpdateCheckData is the result of a release check. Its fields mirror
// updater.UpdateInfo so the handler can convert directly.
type UpdateCheckData struct {
	CurrentVersion  string    `json:"current_version" example:"v0.4.0" doc:"Version of the running binary"`
	LatestVersion   string    `json:"latest_version" example:"v0.5.0" doc:"Newest published release"`
	ReleaseNotes    string    `json:"release_notes" doc:"Release notes in Markdown"`
	ReleaseURL      string    `json:"release_url" doc:"Release page"`
	PublishedAt     time.Time `json:"published_at" doc:"Release publication time"`
	AssetSize       int       `json:"asset_size" example:"9437184" doc:"Download size in bytes"`
	UpdateAvailable bool      `json:"update_available" example:"true" doc:"True when the release is newer than the running binary"`
}

type UpdateCheckResponse struct {
	Body UpdateCheckData
}

// UpdateStatusData is a snapshot of the updater.
type UpdateStatusData struct {
	State           string     `json:"state" example:"idle" enum:"idle,checking,available,downloading,applying,restarting,error,rolled_back" doc:"Updater state"`
	CurrentVersion  string     `json:"current_version" example:"v0.4.0" doc:"Version of the running binary"`
	TargetVersion   string     `json:"target_version,omitempty" example:"v0.5.0" doc:"Release found by the last check"`
	Progress        int        `json:"progress,omitempty" example:"45" doc:"Install progress percentage"`
	Error           string     `json:"error,omitempty" doc:"Error from the last failed operation"`
	LastChecked     *time.Time `json:"last_checked,omitempty" doc:"Time of the last release check"`
	BackupAvailable bool       `json:"backup_available" example:"true" doc:"A previous binary can be rolled back to"`
	BackupVersion   string     `json:"backup_version,omitempty" example:"v0.3.2" doc:"Version of the saved binary"`
}

type UpdateStatusResponse struct {
	Body UpdateStatusData
}
