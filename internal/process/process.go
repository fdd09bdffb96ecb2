package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/smazurov/cmdpanel/internal/commands"
)

// run is the runtime state of one spawn of a command.
type run struct {
	id     int64
	runID  string
	logger *slog.Logger

	phase atomic.Int32
	ready chan struct{} // closed once the spawn has settled
	done  chan struct{} // closed when the watcher returns

	cancelWatch func()

	procMu sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{} // closed after the child has been reaped
	state  *os.ProcessState

	output *collection // set before the watcher starts
}

func newRun(id int64, logger *slog.Logger) *run {
	runID := uuid.NewString()
	return &run{
		id:     id,
		runID:  runID,
		logger: logger.With("command_id", id, "run_id", runID),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (rn *run) hasExited() bool {
	select {
	case <-rn.exited:
		return true
	default:
		return false
	}
}

// signal calls send with the child process unless it has already been
// reaped. It reports whether send was called.
func (rn *run) signal(send func(*os.Process) error) (bool, error) {
	rn.procMu.Lock()
	defer rn.procMu.Unlock()

	if rn.hasExited() {
		return false, nil
	}
	return true, send(rn.cmd.Process)
}

// leftoverPid returns the pid of a child that has already been reaped, or 0
// while it is still running.
func (rn *run) leftoverPid() int {
	rn.procMu.Lock()
	defer rn.procMu.Unlock()

	if !rn.hasExited() {
		return 0
	}
	return rn.cmd.Process.Pid
}

// pipes are the parent's read ends of the child's output.
type pipes struct {
	stdout *os.File
	stderr *os.File
}

// spawn starts command under the platform shell in cwd with stdin on the null
// device and both output streams on fresh pipes.
func spawn(shell, command, cwd string) (*exec.Cmd, *pipes, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := shellCommand(shell, command, cwd)
	cmd.Dir = cwd
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, nil, err
	}

	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)
	return cmd, &pipes{stdout: stdoutR, stderr: stderrR}, nil
}

// reap waits for the child and publishes its exit state.
func (rn *run) reap() {
	err := rn.cmd.Wait()
	if err != nil && rn.cmd.ProcessState == nil {
		rn.logger.Error("Failed to wait for process", "error", err)
	}
	rn.state = rn.cmd.ProcessState
	close(rn.exited)
}

// exitCode returns the native exit code, or nil when the child did not exit
// with one.
func exitCode(state *os.ProcessState) *string {
	if state == nil || state.ExitCode() < 0 {
		return nil
	}
	return commands.ExitCode(state.ExitCode())
}

func exitStatus(state *os.ProcessState) string {
	if state == nil {
		return "unknown"
	}
	return state.String()
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
