package process

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/cmdpanel/internal/commands"
)

type recordedLine struct {
	source commands.Source
	text   string
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []recordedLine
}

func (r *lineRecorder) emit(source commands.Source, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, recordedLine{source, text})
}

func (r *lineRecorder) texts(source commands.Source) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if l.source == source {
			out = append(out, l.text)
		}
	}
	return out
}

type failingReader struct {
	data string
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data == "" {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *failingReader) Close() error { return nil }

func TestCollectOutputSplitsLines(t *testing.T) {
	rec := &lineRecorder{}
	stdout := io.NopCloser(strings.NewReader("one\r\ntwo\n\nthree"))
	stderr := io.NopCloser(strings.NewReader("oops\n"))

	c := collectOutput(stdout, stderr, rec.emit)
	require.NoError(t, c.wait(context.Background(), 0))

	assert.Equal(t, []string{"one", "two", "", "three"}, rec.texts(commands.SourceStdout))
	assert.Equal(t, []string{"oops"}, rec.texts(commands.SourceStderr))
}

func TestCollectOutputLongLine(t *testing.T) {
	rec := &lineRecorder{}
	long := strings.Repeat("x", 1<<20)
	c := collectOutput(io.NopCloser(strings.NewReader(long+"\n")), io.NopCloser(strings.NewReader("")), rec.emit)
	require.NoError(t, c.wait(context.Background(), 0))
	require.Len(t, rec.texts(commands.SourceStdout), 1)
	assert.Len(t, rec.texts(commands.SourceStdout)[0], 1<<20)
}

func TestCollectOutputReadErrorAbortsWithoutOtherStream(t *testing.T) {
	rec := &lineRecorder{}
	readErr := errors.New("device gone")
	blockedR, blockedW := io.Pipe()
	defer blockedW.Close()

	c := collectOutput(&failingReader{data: "partial\n", err: readErr}, blockedR, rec.emit)

	err := c.wait(context.Background(), time.Second)
	require.ErrorIs(t, err, readErr)
	assert.Equal(t, []string{"partial"}, rec.texts(commands.SourceStdout))
}

func TestCollectionWaitTimeoutDropsLaterLines(t *testing.T) {
	rec := &lineRecorder{}
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	defer stdoutW.Close()
	defer stderrW.Close()

	c := collectOutput(stdoutR, stderrR, rec.emit)
	assert.ErrorIs(t, c.wait(context.Background(), 20*time.Millisecond), errDrainTimeout)

	_, err := stdoutW.Write([]byte("late\n"))
	assert.Error(t, err)
	assert.Empty(t, rec.texts(commands.SourceStdout))
}

func TestCollectionWaitersShareResult(t *testing.T) {
	rec := &lineRecorder{}
	stdoutR, stdoutW := io.Pipe()
	c := collectOutput(stdoutR, io.NopCloser(strings.NewReader("")), rec.emit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.wait(ctx, 0), context.Canceled)

	require.NoError(t, stdoutW.Close())
	require.NoError(t, c.wait(context.Background(), 0))
	require.NoError(t, c.wait(context.Background(), time.Second))
}

func TestTimestamp(t *testing.T) {
	ts, err := timestamp(time.UnixMilli(1500).Add(250 * time.Microsecond))
	require.NoError(t, err)
	assert.InDelta(t, 1500.25, ts, 1e-9)

	_, err = timestamp(time.Unix(-1, 0))
	assert.ErrorIs(t, err, ErrClockBeforeEpoch)
}
