// Package commands holds the stored command model and the service used by
// the API and CLI to manage commands and their runs.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/smazurov/cmdpanel/internal/orderkey"
)

// ErrAlreadyRunning is returned when a run is requested for a command that
// is starting, running or stopping.
var ErrAlreadyRunning = errors.New("command already running")

// Runner starts and stops command processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
	Kill(ctx context.Context, id int64) error
	Status(id int64) RunStatus
}

// Notifier signals that a command or its log changed. Delivery is best effort.
type Notifier interface {
	CommandChanged(id int64)
	CommandLogChanged(id int64)
}

// CreateParams describes a new command.
type CreateParams struct {
	Name    string
	Command string
	Cwd     string
}

// UpdateParams changes selected fields of a command. Nil fields are kept.
type UpdateParams struct {
	Name     *string
	Command  *string
	Cwd      *string
	OrderKey *string
}

// MoveParams places a command after and/or before other commands. Zero ids
// mean "no neighbour given"; at least one must be set.
type MoveParams struct {
	AfterID  int64
	BeforeID int64
}

// LogQuery selects a page of log lines. With neither cursor set the newest
// page is returned.
type LogQuery struct {
	Before int64
	After  int64
	Limit  int
}

// Seed is a command definition imported from a file.
type Seed struct {
	Name    string `toml:"name" json:"name"`
	Command string `toml:"command" json:"command"`
	Cwd     string `toml:"cwd,omitempty" json:"cwd,omitempty"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store    Store
	Runner   Runner
	Notifier Notifier
	Logger   *slog.Logger
	// HomeDir returns the default working directory. Defaults to os.UserHomeDir.
	HomeDir func() (string, error)
}

// Service manages stored commands and delegates runs to a Runner.
type Service struct {
	store    Store
	runner   Runner
	notifier Notifier
	logger   *slog.Logger
	homeDir  func() (string, error)
}

// NewService creates a command service.
func NewService(opts *ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	homeDir := opts.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	return &Service{
		store:    opts.Store,
		runner:   opts.Runner,
		notifier: opts.Notifier,
		logger:   logger,
		homeDir:  homeDir,
	}
}

// ListCommands returns all commands in display order.
func (s *Service) ListCommands(ctx context.Context) ([]Command, error) {
	cmds, err := s.store.ListCommands(ctx)
	if err != nil {
		return nil, NewError(ErrCodeStoreError, "failed to list commands", err)
	}
	return cmds, nil
}

// GetCommand returns a single command.
func (s *Service) GetCommand(ctx context.Context, id int64) (*Command, error) {
	cmd, err := s.store.GetCommand(ctx, id)
	if err != nil {
		return nil, storeError(id, err)
	}
	return cmd, nil
}

// CreateCommand appends a new command at the end of the list. An empty cwd
// defaults to the user's home directory.
func (s *Service) CreateCommand(ctx context.Context, params CreateParams) (*Command, error) {
	cmds, err := s.store.ListCommands(ctx)
	if err != nil {
		return nil, NewError(ErrCodeStoreError, "failed to list commands", err)
	}

	cmd := &Command{
		Name:          params.Name,
		Command:       params.Command,
		Cwd:           s.defaultCwd(params.Cwd),
		OrderKey:      orderkey.Midpoint(lastKey(cmds), ""),
		LastRunResult: ResultNone,
	}
	if err := s.store.CreateCommand(ctx, cmd); err != nil {
		return nil, NewError(ErrCodeStoreError, "failed to create command", err)
	}

	s.logger.Info("Command created", "command_id", cmd.ID, "name", cmd.Name)
	s.notifier.CommandChanged(cmd.ID)
	return cmd, nil
}

// UpdateCommand changes the given fields. The current run, if any, keeps the
// invocation it was started with.
func (s *Service) UpdateCommand(ctx context.Context, id int64, params UpdateParams) (*Command, error) {
	cmd, err := s.store.GetCommand(ctx, id)
	if err != nil {
		return nil, storeError(id, err)
	}

	if params.Name != nil {
		cmd.Name = *params.Name
	}
	if params.Command != nil {
		cmd.Command = *params.Command
	}
	if params.Cwd != nil {
		cmd.Cwd = *params.Cwd
	}
	if params.OrderKey != nil {
		if err := orderkey.Validate(*params.OrderKey); err != nil {
			return nil, NewError(ErrCodeInvalidParams, "invalid order key", err)
		}
		cmd.OrderKey = *params.OrderKey
	}

	if err := s.store.UpdateCommand(ctx, cmd); err != nil {
		return nil, storeError(id, err)
	}

	s.logger.Debug("Command updated", "command_id", id)
	s.notifier.CommandChanged(id)
	return cmd, nil
}

// MoveCommand gives the command a key between its new neighbours. Only the
// moved command is written.
func (s *Service) MoveCommand(ctx context.Context, id int64, params MoveParams) (*Command, error) {
	if params.AfterID == 0 && params.BeforeID == 0 {
		return nil, NewError(ErrCodeInvalidParams, "move requires after_id or before_id", nil)
	}
	if params.AfterID == id || params.BeforeID == id {
		return nil, NewError(ErrCodeInvalidParams, "cannot move a command relative to itself", nil)
	}

	cmds, err := s.store.ListCommands(ctx)
	if err != nil {
		return nil, NewError(ErrCodeStoreError, "failed to list commands", err)
	}

	idx := slices.IndexFunc(cmds, func(c Command) bool { return c.ID == id })
	if idx < 0 {
		return nil, NewError(ErrCodeNotFound, fmt.Sprintf("command %d not found", id), ErrNotFound)
	}
	moved := cmds[idx]
	others := slices.Delete(slices.Clone(cmds), idx, idx+1)

	prev, next, err := neighbourKeys(others, params)
	if err != nil {
		return nil, err
	}

	key, err := orderkey.Between(prev, next)
	if err != nil {
		return nil, NewError(ErrCodeInvalidParams, "cannot place command between neighbours", err)
	}

	moved.OrderKey = key
	if err := s.store.UpdateCommand(ctx, &moved); err != nil {
		return nil, storeError(id, err)
	}

	s.logger.Debug("Command moved", "command_id", id, "order_key", key)
	s.notifier.CommandChanged(id)
	return &moved, nil
}

// DeleteCommand stops any run of the command and removes it with its logs.
func (s *Service) DeleteCommand(ctx context.Context, id int64) error {
	if _, err := s.store.GetCommand(ctx, id); err != nil {
		return storeError(id, err)
	}

	if err := s.runner.Kill(ctx, id); err != nil {
		s.logger.Warn("Failed to stop command before delete", "command_id", id, "error", err)
	}

	if err := s.store.DeleteCommand(ctx, id); err != nil {
		return storeError(id, err)
	}

	s.logger.Info("Command deleted", "command_id", id)
	s.notifier.CommandChanged(id)
	return nil
}

// RunCommand starts the stored command.
func (s *Service) RunCommand(ctx context.Context, id int64) error {
	cmd, err := s.store.GetCommand(ctx, id)
	if err != nil {
		return storeError(id, err)
	}
	if cmd.Cwd == "" {
		cmd.Cwd = s.defaultCwd("")
	}

	if err := s.runner.Run(ctx, *cmd); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return NewError(ErrCodeAlreadyRunning, fmt.Sprintf("command %d is already running", id), err)
		}
		return NewError(ErrCodeStoreError, "failed to record run", err)
	}
	return nil
}

// KillCommand stops the command's run. Killing a stopped command is a no-op.
func (s *Service) KillCommand(ctx context.Context, id int64) error {
	if err := s.runner.Kill(ctx, id); err != nil {
		return killError(id, err)
	}
	return nil
}

// Status returns the live run state of the command.
func (s *Service) Status(id int64) RunStatus {
	return s.runner.Status(id)
}

// LogLines returns one page of the command's log in id order.
func (s *Service) LogLines(ctx context.Context, id int64, q LogQuery) ([]LogLine, error) {
	if q.Before > 0 && q.After > 0 {
		return nil, NewError(ErrCodeInvalidParams, "before and after are mutually exclusive", nil)
	}
	if _, err := s.store.GetCommand(ctx, id); err != nil {
		return nil, storeError(id, err)
	}

	limit := ClampPageSize(q.Limit)

	var (
		lines []LogLine
		err   error
	)
	if q.After > 0 {
		lines, err = s.store.LogLinesAfter(ctx, id, q.After, limit)
	} else {
		lines, err = s.store.LogLinesBefore(ctx, id, q.Before, limit)
	}
	if err != nil {
		return nil, NewError(ErrCodeStoreError, "failed to read log lines", err)
	}
	return lines, nil
}

// ImportSeeds creates or updates commands by name. New commands are appended
// in seed order. Returns the number of created and updated commands.
func (s *Service) ImportSeeds(ctx context.Context, seeds []Seed) (created, updated int, err error) {
	cmds, err := s.store.ListCommands(ctx)
	if err != nil {
		return 0, 0, NewError(ErrCodeStoreError, "failed to list commands", err)
	}

	byName := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = c
		}
	}
	last := lastKey(cmds)

	for _, seed := range seeds {
		if existing, ok := byName[seed.Name]; ok {
			cwd := s.defaultCwd(seed.Cwd)
			if existing.Command == seed.Command && existing.Cwd == cwd {
				continue
			}
			existing.Command = seed.Command
			existing.Cwd = cwd
			if err := s.store.UpdateCommand(ctx, &existing); err != nil {
				return created, updated, storeError(existing.ID, err)
			}
			byName[seed.Name] = existing
			updated++
			s.notifier.CommandChanged(existing.ID)
			continue
		}

		last = orderkey.Midpoint(last, "")
		cmd := &Command{
			Name:          seed.Name,
			Command:       seed.Command,
			Cwd:           s.defaultCwd(seed.Cwd),
			OrderKey:      last,
			LastRunResult: ResultNone,
		}
		if err := s.store.CreateCommand(ctx, cmd); err != nil {
			return created, updated, NewError(ErrCodeStoreError, "failed to create command", err)
		}
		byName[seed.Name] = *cmd
		created++
		s.notifier.CommandChanged(cmd.ID)
	}

	s.logger.Info("Seed import finished", "created", created, "updated", updated)
	return created, updated, nil
}

// ExportSeeds returns the stored commands as seeds, in display order.
func (s *Service) ExportSeeds(ctx context.Context) ([]Seed, error) {
	cmds, err := s.ListCommands(ctx)
	if err != nil {
		return nil, err
	}
	seeds := make([]Seed, len(cmds))
	for i, c := range cmds {
		seeds[i] = Seed{Name: c.Name, Command: c.Command, Cwd: c.Cwd}
	}
	return seeds, nil
}

func (s *Service) defaultCwd(cwd string) string {
	if cwd != "" {
		return cwd
	}
	home, err := s.homeDir()
	if err != nil {
		s.logger.Warn("Failed to resolve home directory", "error", err)
		return ""
	}
	return home
}

// neighbourKeys resolves the keys a moved command must sit between. cmds is
// ordered and excludes the moved command.
func neighbourKeys(cmds []Command, params MoveParams) (prev, next string, err error) {
	find := func(id int64) int {
		return slices.IndexFunc(cmds, func(c Command) bool { return c.ID == id })
	}

	afterIdx, beforeIdx := -1, -1
	if params.AfterID != 0 {
		if afterIdx = find(params.AfterID); afterIdx < 0 {
			return "", "", NewError(ErrCodeNotFound, fmt.Sprintf("command %d not found", params.AfterID), ErrNotFound)
		}
	}
	if params.BeforeID != 0 {
		if beforeIdx = find(params.BeforeID); beforeIdx < 0 {
			return "", "", NewError(ErrCodeNotFound, fmt.Sprintf("command %d not found", params.BeforeID), ErrNotFound)
		}
	}

	switch {
	case afterIdx >= 0 && beforeIdx >= 0:
		return cmds[afterIdx].OrderKey, cmds[beforeIdx].OrderKey, nil
	case afterIdx >= 0:
		if afterIdx+1 < len(cmds) {
			next = cmds[afterIdx+1].OrderKey
		}
		return cmds[afterIdx].OrderKey, next, nil
	default:
		if beforeIdx > 0 {
			prev = cmds[beforeIdx-1].OrderKey
		}
		return prev, cmds[beforeIdx].OrderKey, nil
	}
}

func lastKey(cmds []Command) string {
	if len(cmds) == 0 {
		return ""
	}
	return cmds[len(cmds)-1].OrderKey
}
