// Package store provides the SQLite command store and the TOML seed file.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/smazurov/cmdpanel/internal/commands"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type commandRecord struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Name          string `gorm:"not null;default:''"`
	Command       string `gorm:"not null;default:''"`
	Cwd           string `gorm:"not null;default:''"`
	OrderKey      string `gorm:"not null;default:'';index"`
	LastRunResult string `gorm:"not null;default:'none'"`
	LastRunCode   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (commandRecord) TableName() string { return "commands" }

type logLineRecord struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	CommandID int64   `gorm:"not null;index"`
	Source    int     `gorm:"not null"`
	Text      string  `gorm:"not null"`
	Timestamp float64 `gorm:"not null"`
}

func (logLineRecord) TableName() string { return "command_log_lines" }

// SQLite implements commands.Store on a SQLite database.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "cmdpanel.db"
	}

	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// One writer at a time; also keeps a single shared in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&commandRecord{}, &logLineRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateCommand inserts cmd and sets its id and timestamps.
func (s *SQLite) CreateCommand(ctx context.Context, cmd *commands.Command) error {
	rec := toRecord(cmd)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create command: %w", err)
	}
	*cmd = fromRecord(rec)
	return nil
}

// GetCommand loads one command.
func (s *SQLite) GetCommand(ctx context.Context, id int64) (*commands.Command, error) {
	var rec commandRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, commands.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get command %d: %w", id, err)
	}
	cmd := fromRecord(rec)
	return &cmd, nil
}

// ListCommands returns all commands by order key, then id.
func (s *SQLite) ListCommands(ctx context.Context) ([]commands.Command, error) {
	var recs []commandRecord
	if err := s.db.WithContext(ctx).Order("order_key ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	out := make([]commands.Command, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out, nil
}

// UpdateCommand writes the editable fields of cmd.
func (s *SQLite) UpdateCommand(ctx context.Context, cmd *commands.Command) error {
	res := s.db.WithContext(ctx).Model(&commandRecord{ID: cmd.ID}).Updates(map[string]any{
		"name":      cmd.Name,
		"command":   cmd.Command,
		"cwd":       cmd.Cwd,
		"order_key": cmd.OrderKey,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update command %d: %w", cmd.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return commands.ErrNotFound
	}
	return nil
}

// DeleteCommand removes the command and its log lines.
func (s *SQLite) DeleteCommand(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("command_id = ?", id).Delete(&logLineRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete log lines of command %d: %w", id, err)
		}
		res := tx.Delete(&commandRecord{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete command %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return commands.ErrNotFound
		}
		return nil
	})
}

// SetLastRunResult records the outcome of the latest run.
func (s *SQLite) SetLastRunResult(ctx context.Context, id int64, result commands.ResultKind, code *string) error {
	res := s.db.WithContext(ctx).Model(&commandRecord{ID: id}).Updates(map[string]any{
		"last_run_result": string(result),
		"last_run_code":   code,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to set last run result of command %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return commands.ErrNotFound
	}
	return nil
}

// CreateLogLine appends a line and sets its id.
func (s *SQLite) CreateLogLine(ctx context.Context, line *commands.LogLine) error {
	rec := logLineRecord{
		CommandID: line.CommandID,
		Source:    int(line.Source),
		Text:      line.Text,
		Timestamp: line.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create log line: %w", err)
	}
	line.ID = rec.ID
	return nil
}

// LogLinesBefore returns the newest lines older than cursor, oldest first.
func (s *SQLite) LogLinesBefore(ctx context.Context, commandID, cursor int64, limit int) ([]commands.LogLine, error) {
	q := s.db.WithContext(ctx).Where("command_id = ?", commandID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var recs []logLineRecord
	if err := q.Order("id DESC").Limit(commands.ClampPageSize(limit)).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read log lines: %w", err)
	}
	slices.Reverse(recs)
	return linesFromRecords(recs), nil
}

// LogLinesAfter returns the oldest lines newer than cursor.
func (s *SQLite) LogLinesAfter(ctx context.Context, commandID, cursor int64, limit int) ([]commands.LogLine, error) {
	var recs []logLineRecord
	err := s.db.WithContext(ctx).
		Where("command_id = ? AND id > ?", commandID, cursor).
		Order("id ASC").
		Limit(commands.ClampPageSize(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read log lines: %w", err)
	}
	return linesFromRecords(recs), nil
}

func toRecord(cmd *commands.Command) commandRecord {
	result := cmd.LastRunResult
	if result == "" {
		result = commands.ResultNone
	}
	return commandRecord{
		ID:            cmd.ID,
		Name:          cmd.Name,
		Command:       cmd.Command,
		Cwd:           cmd.Cwd,
		OrderKey:      cmd.OrderKey,
		LastRunResult: string(result),
		LastRunCode:   cmd.LastRunCode,
	}
}

func fromRecord(rec commandRecord) commands.Command {
	return commands.Command{
		ID:            rec.ID,
		Name:          rec.Name,
		Command:       rec.Command,
		Cwd:           rec.Cwd,
		OrderKey:      rec.OrderKey,
		LastRunResult: commands.ResultKind(rec.LastRunResult),
		LastRunCode:   rec.LastRunCode,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func linesFromRecords(recs []logLineRecord) []commands.LogLine {
	out := make([]commands.LogLine, len(recs))
	for i, rec := range recs {
		out[i] = commands.LogLine{
			ID:        rec.ID,
			CommandID: rec.CommandID,
			Source:    commands.Source(rec.Source),
			Text:      rec.Text,
			Timestamp: rec.Timestamp,
		}
	}
	return out
}
