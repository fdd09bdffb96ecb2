package process

import "os"

// Terminator stops a child process and everything it spawned.
type Terminator interface {
	// Terminate asks the process tree to exit.
	Terminate(p *os.Process) error
	// ForceKill stops the process tree unconditionally.
	ForceKill(p *os.Process) error
}

// leftoverKiller is implemented by terminators that can still reach a child's
// descendants after the child itself has been reaped.
type leftoverKiller interface {
	KillLeftovers(pid int) error
}

// DefaultTerminator returns the Terminator for the current platform.
func DefaultTerminator() Terminator {
	return newTerminator()
}
