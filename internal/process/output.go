package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/smazurov/cmdpanel/internal/commands"
)

// errDrainTimeout is returned when output collection outlives its drain timeout.
var errDrainTimeout = errors.New("timed out waiting for output to drain")

// lineFunc persists one line of output.
type lineFunc func(source commands.Source, text string)

// collection is the completion handle of one run's output readers.
type collection struct {
	done    chan struct{} // closed once collection completes
	err     error         // first read error, set before done is closed
	readers []io.Closer
	stopped atomic.Bool
}

// collectOutput starts one reader per stream. Each reader hands every line to
// emit as soon as it is read. Collection completes with the first read error,
// or with nil once both streams reach end of file.
func collectOutput(stdout, stderr io.ReadCloser, emit lineFunc) *collection {
	c := &collection{
		done:    make(chan struct{}),
		readers: []io.Closer{stdout, stderr},
	}

	sink := func(source commands.Source, text string) {
		if c.stopped.Load() {
			return
		}
		emit(source, text)
	}

	errs := make(chan error, 2)
	go func() { errs <- readLines(stdout, commands.SourceStdout, sink) }()
	go func() { errs <- readLines(stderr, commands.SourceStderr, sink) }()

	go func() {
		defer close(c.done)
		for range 2 {
			if err := <-errs; err != nil {
				c.err = err
				return
			}
		}
	}()

	return c
}

// wait blocks until collection completes or ctx is done. Any number of
// goroutines may wait. A positive timeout bounds the wait; when it elapses the
// readers are closed and further lines are dropped.
func (c *collection) wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.done:
		return c.err
	case <-expired:
		c.stop()
		return errDrainTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *collection) stop() {
	c.stopped.Store(true)
	for _, r := range c.readers {
		_ = r.Close()
	}
}

// readLines reads r one line at a time until end of file. Line endings are
// stripped and an unterminated final line is still emitted.
func readLines(r io.ReadCloser, source commands.Source, emit lineFunc) error {
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			emit(source, trimLineEnding(line))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read %s: %w", source, err)
		}
	}
}

func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
