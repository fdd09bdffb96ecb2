package commands

import "context"

// Page size limits for log line queries.
const (
	DefaultPageSize = 1000
	MaxPageSize     = 1000
)

// Store persists commands and their log lines.
type Store interface {
	CreateCommand(ctx context.Context, cmd *Command) error
	GetCommand(ctx context.Context, id int64) (*Command, error)
	// ListCommands returns all commands ordered by order key, then id.
	ListCommands(ctx context.Context) ([]Command, error)
	UpdateCommand(ctx context.Context, cmd *Command) error
	// DeleteCommand removes the command and its log lines.
	DeleteCommand(ctx context.Context, id int64) error
	SetLastRunResult(ctx context.Context, id int64, result ResultKind, code *string) error

	// CreateLogLine appends a line and assigns it the next id.
	CreateLogLine(ctx context.Context, line *LogLine) error
	// LogLinesBefore returns up to limit of the newest lines with id < cursor,
	// oldest first. A cursor <= 0 starts from the newest line.
	LogLinesBefore(ctx context.Context, commandID, cursor int64, limit int) ([]LogLine, error)
	// LogLinesAfter returns up to limit of the oldest lines with id > cursor,
	// oldest first.
	LogLinesAfter(ctx context.Context, commandID, cursor int64, limit int) ([]LogLine, error)

	Close() error
}

// ClampPageSize bounds a caller supplied page size.
func ClampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
