package commands

import (
	"strconv"
	"time"
)

// Source identifies where a log line came from. The numeric values are the
// stored encoding.
type Source int

// Log line sources.
const (
	SourceStdout Source = 1
	SourceStderr Source = 2
	SourceInfo   Source = 3
)

func (s Source) String() string {
	switch s {
	case SourceStdout:
		return "stdout"
	case SourceStderr:
		return "stderr"
	case SourceInfo:
		return "info"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// ResultKind is the outcome of a command's most recent run.
type ResultKind string

// Run results. Exit, Killed and Error are terminal.
const (
	ResultNone   ResultKind = "none"
	ResultExit   ResultKind = "exit"
	ResultKilled ResultKind = "killed"
	ResultError  ResultKind = "error"
)

// IsTerminal reports whether the result marks a concluded run.
func (r ResultKind) IsTerminal() bool {
	return r == ResultExit || r == ResultKilled || r == ResultError
}

// RunStatus is the live state of a command as seen by the process manager.
type RunStatus string

// Run states.
const (
	StatusRunning  RunStatus = "running"
	StatusStopping RunStatus = "stopping"
	StatusStopped  RunStatus = "stopped"
)

// Command is a stored shell command.
type Command struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Command       string     `json:"command"`
	Cwd           string     `json:"cwd"`
	OrderKey      string     `json:"order_key"`
	LastRunResult ResultKind `json:"last_run_result"`
	LastRunCode   *string    `json:"last_run_code,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LogLine is one line of command output or a lifecycle message.
// Timestamp is fractional milliseconds since the Unix epoch.
type LogLine struct {
	ID        int64   `json:"id"`
	CommandID int64   `json:"command_id"`
	Source    Source  `json:"source"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// ExitCode renders a native exit code the way it is stored.
func ExitCode(code int) *string {
	s := strconv.Itoa(code)
	return &s
}
