package commands

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	nextLine int64
	commands map[int64]Command
	lines    []LogLine
}

func newMemStore() *memStore {
	return &memStore{commands: make(map[int64]Command)}
}

func (m *memStore) CreateCommand(_ context.Context, cmd *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cmd.ID = m.nextID
	m.commands[cmd.ID] = *cmd
	return nil
}

func (m *memStore) GetCommand(_ context.Context, id int64) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memStore) ListCommands(_ context.Context) ([]Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Command) int {
		return cmp.Or(cmp.Compare(a.OrderKey, b.OrderKey), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *memStore) UpdateCommand(_ context.Context, cmd *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commands[cmd.ID]; !ok {
		return ErrNotFound
	}
	m.commands[cmd.ID] = *cmd
	return nil
}

func (m *memStore) DeleteCommand(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commands[id]; !ok {
		return ErrNotFound
	}
	delete(m.commands, id)
	m.lines = slices.DeleteFunc(m.lines, func(l LogLine) bool { return l.CommandID == id })
	return nil
}

func (m *memStore) SetLastRunResult(_ context.Context, id int64, result ResultKind, code *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok {
		return ErrNotFound
	}
	c.LastRunResult = result
	c.LastRunCode = code
	m.commands[id] = c
	return nil
}

func (m *memStore) CreateLogLine(_ context.Context, line *LogLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLine++
	line.ID = m.nextLine
	m.lines = append(m.lines, *line)
	return nil
}

func (m *memStore) LogLinesBefore(_ context.Context, commandID, cursor int64, limit int) ([]LogLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogLine
	for i := len(m.lines) - 1; i >= 0 && len(out) < limit; i-- {
		l := m.lines[i]
		if l.CommandID == commandID && (cursor <= 0 || l.ID < cursor) {
			out = append(out, l)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (m *memStore) LogLinesAfter(_ context.Context, commandID, cursor int64, limit int) ([]LogLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogLine
	for _, l := range m.lines {
		if len(out) == limit {
			break
		}
		if l.CommandID == commandID && l.ID > cursor {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type fakeRunner struct {
	mu      sync.Mutex
	running map[int64]bool
	runs    []Command
	kills   []int64
	killErr error
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[cmd.ID] {
		return ErrAlreadyRunning
	}
	f.running[cmd.ID] = true
	f.runs = append(f.runs, cmd)
	return nil
}

func (f *fakeRunner) Kill(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, id)
	if f.killErr != nil {
		return f.killErr
	}
	delete(f.running, id)
	return nil
}

func (f *fakeRunner) Status(id int64) RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[id] {
		return StatusRunning
	}
	return StatusStopped
}

type countingNotifier struct {
	mu      sync.Mutex
	changed []int64
}

func (n *countingNotifier) CommandChanged(id int64) {
	n.mu.Lock()
	n.changed = append(n.changed, id)
	n.mu.Unlock()
}

func (n *countingNotifier) CommandLogChanged(int64) {}

func newTestService(t *testing.T) (*Service, *memStore, *fakeRunner, *countingNotifier) {
	t.Helper()
	store := newMemStore()
	runner := &fakeRunner{running: make(map[int64]bool)}
	notifier := &countingNotifier{}
	svc := NewService(&ServiceOptions{
		Store:    store,
		Runner:   runner,
		Notifier: notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		HomeDir:  func() (string, error) { return "/home/tester", nil },
	})
	return svc, store, runner, notifier
}

func names(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Name
	}
	return out
}

func TestCreateCommandAppendsInOrder(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"build", "test", "lint"} {
		_, err := svc.CreateCommand(ctx, CreateParams{Name: name, Command: "make " + name})
		require.NoError(t, err)
	}

	cmds, err := svc.ListCommands(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test", "lint"}, names(cmds))
	assert.Equal(t, "/home/tester", cmds[0].Cwd)
	assert.Equal(t, ResultNone, cmds[0].LastRunResult)
	assert.Len(t, notifier.changed, 3)
}

func TestMoveCommand(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a", "b", "c", "d"} {
		cmd, err := svc.CreateCommand(ctx, CreateParams{Name: name})
		require.NoError(t, err)
		ids = append(ids, cmd.ID)
	}

	// d after a
	_, err := svc.MoveCommand(ctx, ids[3], MoveParams{AfterID: ids[0]})
	require.NoError(t, err)
	cmds, _ := svc.ListCommands(ctx)
	assert.Equal(t, []string{"a", "d", "b", "c"}, names(cmds))

	// a before c
	_, err = svc.MoveCommand(ctx, ids[0], MoveParams{BeforeID: ids[2]})
	require.NoError(t, err)
	cmds, _ = svc.ListCommands(ctx)
	assert.Equal(t, []string{"d", "b", "a", "c"}, names(cmds))

	// c to the front
	_, err = svc.MoveCommand(ctx, ids[2], MoveParams{BeforeID: ids[3]})
	require.NoError(t, err)
	cmds, _ = svc.ListCommands(ctx)
	assert.Equal(t, []string{"c", "d", "b", "a"}, names(cmds))

	// b to the end
	_, err = svc.MoveCommand(ctx, ids[1], MoveParams{AfterID: ids[0]})
	require.NoError(t, err)
	cmds, _ = svc.ListCommands(ctx)
	assert.Equal(t, []string{"c", "d", "a", "b"}, names(cmds))
}

func TestMoveCommandOnlyWritesMovedKey(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	a, _ := svc.CreateCommand(ctx, CreateParams{Name: "a"})
	b, _ := svc.CreateCommand(ctx, CreateParams{Name: "b"})
	c, _ := svc.CreateCommand(ctx, CreateParams{Name: "c"})

	before, _ := store.ListCommands(ctx)
	moved, err := svc.MoveCommand(ctx, c.ID, MoveParams{AfterID: a.ID, BeforeID: b.ID})
	require.NoError(t, err)

	after, _ := store.ListCommands(ctx)
	for _, cmd := range after {
		if cmd.ID == c.ID {
			assert.Equal(t, moved.OrderKey, cmd.OrderKey)
			continue
		}
		idx := slices.IndexFunc(before, func(o Command) bool { return o.ID == cmd.ID })
		assert.Equal(t, before[idx].OrderKey, cmd.OrderKey)
	}
}

func TestMoveCommandErrors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.CreateCommand(ctx, CreateParams{Name: "a"})

	_, err := svc.MoveCommand(ctx, a.ID, MoveParams{})
	assertCode(t, err, ErrCodeInvalidParams)

	_, err = svc.MoveCommand(ctx, a.ID, MoveParams{AfterID: a.ID})
	assertCode(t, err, ErrCodeInvalidParams)

	_, err = svc.MoveCommand(ctx, a.ID, MoveParams{AfterID: 999})
	assertCode(t, err, ErrCodeNotFound)

	_, err = svc.MoveCommand(ctx, 999, MoveParams{AfterID: a.ID})
	assertCode(t, err, ErrCodeNotFound)
}

func TestUpdateCommand(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	cmd, _ := svc.CreateCommand(ctx, CreateParams{Name: "old", Command: "true", Cwd: "/tmp"})

	name := "new"
	updated, err := svc.UpdateCommand(ctx, cmd.ID, UpdateParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, "true", updated.Command)
	assert.Equal(t, "/tmp", updated.Cwd)

	bad := "Zz"
	_, err = svc.UpdateCommand(ctx, cmd.ID, UpdateParams{OrderKey: &bad})
	assertCode(t, err, ErrCodeInvalidParams)

	_, err = svc.UpdateCommand(ctx, 42, UpdateParams{Name: &name})
	assertCode(t, err, ErrCodeNotFound)
}

func TestRunCommandRejectsSecondRun(t *testing.T) {
	svc, _, runner, _ := newTestService(t)
	ctx := context.Background()
	cmd, _ := svc.CreateCommand(ctx, CreateParams{Name: "sleep", Command: "sleep 1"})

	require.NoError(t, svc.RunCommand(ctx, cmd.ID))
	assert.Equal(t, StatusRunning, svc.Status(cmd.ID))

	err := svc.RunCommand(ctx, cmd.ID)
	assertCode(t, err, ErrCodeAlreadyRunning)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Len(t, runner.runs, 1)

	assertCode(t, svc.RunCommand(ctx, 404), ErrCodeNotFound)
}

func TestDeleteCommandKillsFirst(t *testing.T) {
	svc, store, runner, _ := newTestService(t)
	ctx := context.Background()
	cmd, _ := svc.CreateCommand(ctx, CreateParams{Name: "x"})
	require.NoError(t, svc.RunCommand(ctx, cmd.ID))
	require.NoError(t, store.CreateLogLine(ctx, &LogLine{CommandID: cmd.ID, Source: SourceInfo, Text: "hi"}))

	require.NoError(t, svc.DeleteCommand(ctx, cmd.ID))
	assert.Equal(t, []int64{cmd.ID}, runner.kills)

	_, err := svc.GetCommand(ctx, cmd.ID)
	assertCode(t, err, ErrCodeNotFound)
	assert.Empty(t, store.lines)
}

func TestKillCommandErrorCodes(t *testing.T) {
	svc, _, runner, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.KillCommand(ctx, 1))

	runner.killErr = fmt.Errorf("wait for command 1: %w", context.DeadlineExceeded)
	err := svc.KillCommand(ctx, 1)
	assertCode(t, err, ErrCodeTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	runner.killErr = fmt.Errorf("wait for command 1: %w", context.Canceled)
	assertCode(t, svc.KillCommand(ctx, 1), ErrCodeTimeout)

	runner.killErr = errors.New("disk full")
	assertCode(t, svc.KillCommand(ctx, 1), ErrCodeStoreError)
}

func TestLogLinesPaging(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	cmd, _ := svc.CreateCommand(ctx, CreateParams{Name: "x"})
	other, _ := svc.CreateCommand(ctx, CreateParams{Name: "y"})

	for i := range 10 {
		require.NoError(t, store.CreateLogLine(ctx, &LogLine{CommandID: cmd.ID, Text: string(rune('0' + i))}))
		require.NoError(t, store.CreateLogLine(ctx, &LogLine{CommandID: other.ID, Text: "noise"}))
	}

	newest, err := svc.LogLines(ctx, cmd.ID, LogQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, []string{"7", "8", "9"}, texts(newest))

	older, err := svc.LogLines(ctx, cmd.ID, LogQuery{Before: newest[0].ID, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5", "6"}, texts(older))

	newer, err := svc.LogLines(ctx, cmd.ID, LogQuery{After: older[0].ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, texts(newer))

	_, err = svc.LogLines(ctx, cmd.ID, LogQuery{Before: 1, After: 1})
	assertCode(t, err, ErrCodeInvalidParams)
}

func TestImportSeeds(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateCommand(ctx, CreateParams{Name: "existing", Command: "echo old", Cwd: "/srv"})

	created, updated, err := svc.ImportSeeds(ctx, []Seed{
		{Name: "existing", Command: "echo new", Cwd: "/srv"},
		{Name: "fresh", Command: "date"},
		{Name: "another", Command: "uptime", Cwd: "/var"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, updated)

	cmds, _ := svc.ListCommands(ctx)
	assert.Equal(t, []string{"existing", "fresh", "another"}, names(cmds))
	assert.Equal(t, "echo new", cmds[0].Command)
	assert.Equal(t, "/home/tester", cmds[1].Cwd)

	// Re-importing the same seeds changes nothing.
	created, updated, err = svc.ImportSeeds(ctx, []Seed{
		{Name: "existing", Command: "echo new", Cwd: "/srv"},
		{Name: "fresh", Command: "date"},
	})
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Zero(t, updated)

	seeds, err := svc.ExportSeeds(ctx)
	require.NoError(t, err)
	assert.Len(t, seeds, 3)
	assert.Equal(t, "uptime", seeds[2].Command)
}

func texts(lines []LogLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var cmdErr *Error
	require.True(t, errors.As(err, &cmdErr), "expected *commands.Error, got %v", err)
	assert.Equal(t, code, cmdErr.Code)
}
