// Package logging provides slog module loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per component:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"process": "debug"},
//	})
//	logger := logging.GetLogger("process").With("command_id", id)
//	logger.Info("Command started", "pid", pid)
//
// Every record goes to up to three places:
//
//   - Config.Output (stdout by default) as text or JSON
//   - the systemd journal when its socket is present, tagged SyslogIdentifier
//     with attributes as fields (journalctl -t cmdpanel MODULE=process)
//   - an in-memory ring buffer of recent entries, and the callback set with
//     SetLogCallback, which the server uses to stream logs over SSE
//
// Loggers returned before Initialize keep working and pick up the new levels
// and outputs when it runs.
package logging
