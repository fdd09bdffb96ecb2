package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetLogging gives the test a fresh registry writing to the returned buffer.
func resetLogging(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	prev := std
	std = newRegistry()
	t.Cleanup(func() { std = prev })

	var out bytes.Buffer
	cfg.Output = &out
	Initialize(cfg)
	return &out
}

func TestModuleLevels(t *testing.T) {
	resetLogging(t, Config{
		Level:   "info",
		Modules: map[string]string{"process": "debug", "api": "warn"},
	})
	ctx := context.Background()

	tests := []struct {
		module string
		debug  bool
		info   bool
		warn   bool
	}{
		{"process", true, true, true},
		{"api", false, false, true},
		{"store", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			assert.Equal(t, tt.debug, h.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.info, h.Enabled(ctx, slog.LevelInfo))
			assert.Equal(t, tt.warn, h.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestLoggerWritesModuleAttribute(t *testing.T) {
	out := resetLogging(t, Config{Level: "debug"})

	GetLogger("process").With("command_id", int64(7)).Debug("Command started", "pid", 42)

	line := out.String()
	assert.Contains(t, line, "level=DEBUG")
	assert.Contains(t, line, "module=process")
	assert.Contains(t, line, "command_id=7")
	assert.Contains(t, line, "pid=42")
	assert.Contains(t, line, `msg="Command started"`)
}

func TestJSONFormat(t *testing.T) {
	out := resetLogging(t, Config{Format: "json"})

	GetLogger("store").WithGroup("db").Info("opened", "path", "cmdpanel.db")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "opened", rec["msg"])
	assert.Equal(t, "store", rec["module"])
	assert.Equal(t, map[string]any{"path": "cmdpanel.db"}, rec["db"])
}

func TestLoggerCreatedBeforeInitialize(t *testing.T) {
	prev := std
	std = newRegistry()
	t.Cleanup(func() { std = prev })

	logger := GetLogger("early")
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))

	var out bytes.Buffer
	Initialize(Config{Level: "info", Modules: map[string]string{"early": "debug"}, Output: &out})

	assert.Same(t, logger, GetLogger("early"))
	logger.Debug("now visible")
	assert.Contains(t, out.String(), "now visible")
	require.Len(t, GetBuffer().ReadAll(), 1)
}

func TestReinitializeChangesLevels(t *testing.T) {
	out := resetLogging(t, Config{Level: "info"})
	logger := GetLogger("commands")

	logger.Info("first")
	Initialize(Config{Level: "warn", Output: out})
	logger.Info("second")
	logger.Warn("third")

	text := out.String()
	assert.Contains(t, text, "first")
	assert.NotContains(t, text, "second")
	assert.Contains(t, text, "third")
}

func TestUnknownLevelFallsBack(t *testing.T) {
	resetLogging(t, Config{Level: "loud", Modules: map[string]string{"api": "quiet"}})
	ctx := context.Background()

	h := GetLogger("api").Handler()
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
}

func TestDefaultLoggerFollowsGlobalLevel(t *testing.T) {
	prevDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prevDefault) })

	out := resetLogging(t, Config{Level: "error"})
	slog.Warn("dropped")
	slog.Error("kept")

	assert.NotContains(t, out.String(), "dropped")
	assert.Contains(t, out.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"", 0, false},
		{"trace", 0, false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.in), func(t *testing.T) {
			got, ok := parseLevel(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "COMMAND_ID", journalKey("command_id"))
	assert.Equal(t, "RUN_ID", journalKey("run-id"))
	assert.Equal(t, "X", journalKey("_x"))
	assert.Equal(t, "", journalKey("__"))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return assert.AnError }

func TestFanoutReachesEveryHandler(t *testing.T) {
	var text, js bytes.Buffer
	textH := slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelDebug})
	jsonH := slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelWarn})

	single := newFanout(textH)
	assert.Same(t, textH, single)

	h := newFanout(textH, jsonH)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("command_id", 3).WithGroup("run")
	logger.Debug("Command started", "pid", 9)
	logger.Warn("Grace period elapsed")

	assert.Contains(t, text.String(), "run.pid=9")
	assert.Contains(t, text.String(), "Grace period elapsed")
	assert.NotContains(t, js.String(), "Command started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &entry))
	assert.Equal(t, "Grace period elapsed", entry["msg"])
	assert.EqualValues(t, 3, entry["command_id"])

	failing := newFanout(failingHandler{textH}, jsonH)
	err := failing.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "boom", 0))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, js.String(), "boom")
}
