package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// acceptAll lets sinks see every record; module handlers do the filtering.
const acceptAll = slog.LevelDebug - 4

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// Output receives text or JSON records. Nil means stdout when stdout
	// is usable.
	Output io.Writer `toml:"-"`
}

// registry owns the module levels and the current sink. Loggers look the
// sink up per record, so Initialize affects loggers handed out earlier.
type registry struct {
	mu       sync.RWMutex
	cfg      Config
	global   *slog.LevelVar
	levels   map[string]*slog.LevelVar
	loggers  map[string]*slog.Logger
	sink     slog.Handler
	buffer   *RingBuffer
	callback LogCallback
}

var std = newRegistry()

func newRegistry() *registry {
	return &registry{
		global:  &slog.LevelVar{},
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
		sink:    buildSink(Config{}),
	}
}

// Initialize applies config. It may be called again, for example by CLI
// subcommands that want quieter output than the server.
func Initialize(config Config) {
	std.mu.Lock()
	std.cfg = config
	std.buffer = NewRingBuffer(defaultBufferSize)
	std.sink = buildSink(config)
	std.global.Set(levelOr(config.Level, slog.LevelInfo))
	for module, lv := range std.levels {
		lv.Set(std.levelFor(module))
	}
	std.mu.Unlock()

	slog.SetDefault(slog.New(&moduleHandler{level: std.global}))
}

// GetBuffer returns the ring buffer of recent entries, nil before Initialize.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer
}

// SetLogCallback registers a function called with every entry. The server
// uses it to publish log events on the bus. Nil removes it.
func SetLogCallback(callback LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = callback
}

// GetLogger returns the logger for module, creating it on first use. Every
// record carries a "module" attribute.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(std.levelFor(module))
	logger = slog.New(&moduleHandler{level: lv}).With("module", module)
	std.levels[module] = lv
	std.loggers[module] = logger
	return logger
}

// levelFor resolves a module's level: its own setting, then the global one.
// Callers hold mu.
func (r *registry) levelFor(module string) slog.Level {
	return levelOr(r.cfg.Modules[module], levelOr(r.cfg.Level, slog.LevelInfo))
}

func (r *registry) outputs() (slog.Handler, *RingBuffer, LogCallback) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink, r.buffer, r.callback
}

// moduleHandler filters by its module level and forwards to the current
// sink, replaying the WithAttrs/WithGroup calls made on it.
type moduleHandler struct {
	level *slog.LevelVar
	ops   []func(slog.Handler) slog.Handler
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	sink, _, _ := std.outputs()
	for _, op := range h.ops {
		sink = op(sink)
	}
	return sink.Handle(ctx, r)
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *moduleHandler) with(op func(slog.Handler) slog.Handler) *moduleHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &moduleHandler{level: h.level, ops: append(ops, op)}
}

// buildSink fans records out to the text/JSON writer, the journal when
// present and the ring buffer.
func buildSink(cfg Config) slog.Handler {
	handlers := make([]slog.Handler, 0, 3)

	out := cfg.Output
	if out == nil && stdoutUsable() {
		out = os.Stdout
	}
	if out != nil {
		opts := &slog.HandlerOptions{Level: acceptAll}
		if strings.EqualFold(cfg.Format, "json") {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}
	if cfg.Output == nil && IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(acceptAll))
	}
	handlers = append(handlers, NewBufferHandler(acceptAll))
	return newFanout(handlers...)
}

// stdoutUsable is false when stdout is closed, as under some service managers.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts a level name. ok is false for unknown names.
func parseLevel(name string) (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelOr(name string, fallback slog.Level) slog.Level {
	if level, ok := parseLevel(name); ok {
		return level
	}
	return fallback
}
