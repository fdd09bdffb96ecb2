//go:build !windows

package process

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// signalTerminator signals the child's process group. Children are started
// as group leaders, so the group id equals the child pid.
type signalTerminator struct{}

func newTerminator() Terminator {
	return signalTerminator{}
}

func (signalTerminator) Terminate(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGTERM)
}

func (signalTerminator) ForceKill(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGKILL)
}

// KillLeftovers kills what remains of a reaped child's process group. The
// group id cannot be reused while any member is alive.
func (signalTerminator) KillLeftovers(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// already gone
		return nil
	}
	return err
}
