package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/cmdpanel/internal/commands"
)

func testOptions(t *testing.T) *Options {
	t.Helper()
	return &Options{
		DatabasePath:        filepath.Join(t.TempDir(), "cmdpanel.db"),
		ProcessGracePeriod:  "1s",
		ProcessDrainTimeout: "200ms",
	}
}

func createCommand(t *testing.T, opts *Options, name, command string) int64 {
	t.Helper()
	rt, err := NewRuntime(opts, nil)
	require.NoError(t, err)
	defer rt.Store.Close()

	cmd, err := rt.Service.CreateCommand(context.Background(), commands.CreateParams{
		Name:    name,
		Command: command,
		Cwd:     t.TempDir(),
	})
	require.NoError(t, err)
	return cmd.ID
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name string
		cmd  commands.Command
		want int
	}{
		{"exit zero", commands.Command{LastRunResult: commands.ResultExit, LastRunCode: commands.ExitCode(0)}, 0},
		{"exit code", commands.Command{LastRunResult: commands.ResultExit, LastRunCode: commands.ExitCode(3)}, 3},
		{"exit without code", commands.Command{LastRunResult: commands.ResultExit}, 1},
		{"killed", commands.Command{LastRunResult: commands.ResultKilled}, exitInterrupted},
		{"error", commands.Command{LastRunResult: commands.ResultError}, 1},
		{"never run", commands.Command{LastRunResult: commands.ResultNone}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitStatus(&tt.cmd))
		})
	}
}

func TestLinePrinterRoutesSources(t *testing.T) {
	var stdout, stderr bytes.Buffer
	p := newLinePrinter(&stdout, &stderr)

	p.print(commands.LogLine{Source: commands.SourceStdout, Text: "out"})
	p.print(commands.LogLine{Source: commands.SourceStderr, Text: "err"})
	p.print(commands.LogLine{Source: commands.SourceInfo, Text: "info"})

	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\ninfo\n", stderr.String())
}

func TestResolveCommand(t *testing.T) {
	opts := testOptions(t)
	id := createCommand(t, opts, "build", "make")
	createCommand(t, opts, "dup", "true")
	createCommand(t, opts, "dup", "false")

	rt, err := NewRuntime(opts, nil)
	require.NoError(t, err)
	defer rt.Store.Close()
	ctx := context.Background()

	cmd, err := resolveCommand(ctx, rt.Service, "build")
	require.NoError(t, err)
	assert.Equal(t, id, cmd.ID)

	cmd, err = resolveCommand(ctx, rt.Service, "1")
	require.NoError(t, err)
	assert.Equal(t, "build", cmd.Name)

	_, err = resolveCommand(ctx, rt.Service, "dup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one")

	_, err = resolveCommand(ctx, rt.Service, "missing")
	require.Error(t, err)
}

func TestExecCommandStreamsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	opts := testOptions(t)
	createCommand(t, opts, "greet", "echo hello; echo oops >&2; exit 3")

	var stdout, stderr bytes.Buffer
	code := execCommand(context.Background(), &stdout, &stderr, opts, "greet")

	assert.Equal(t, 3, code)
	assert.Equal(t, "hello\n", stdout.String())
	assert.Contains(t, stderr.String(), "oops")
}

func TestExecCommandSkipsEarlierRuns(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	opts := testOptions(t)
	createCommand(t, opts, "once", "echo line")

	var first bytes.Buffer
	require.Equal(t, 0, execCommand(context.Background(), &first, &bytes.Buffer{}, opts, "once"))

	var second bytes.Buffer
	require.Equal(t, 0, execCommand(context.Background(), &second, &bytes.Buffer{}, opts, "once"))
	assert.Equal(t, "line\n", second.String())
}

func TestExecCommandUnknown(t *testing.T) {
	var stderr bytes.Buffer
	code := execCommand(context.Background(), &bytes.Buffer{}, &stderr, testOptions(t), "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "nope")
}

func TestParseDuration(t *testing.T) {
	logger := testLogger()
	assert.Equal(t, "5s", parseDuration(logger, "x", "5s").String())
	assert.Zero(t, parseDuration(logger, "x", ""))
	assert.Zero(t, parseDuration(logger, "x", "soon"))
	assert.Zero(t, parseDuration(logger, "x", "-1s"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
