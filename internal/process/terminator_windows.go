//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// treeTerminator stops the child and its descendants with taskkill.
type treeTerminator struct{}

func newTerminator() Terminator {
	return treeTerminator{}
}

func (treeTerminator) Terminate(p *os.Process) error {
	return taskkill("/T", "/PID", strconv.Itoa(p.Pid))
}

func (treeTerminator) ForceKill(p *os.Process) error {
	if err := taskkill("/F", "/T", "/PID", strconv.Itoa(p.Pid)); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func taskkill(args ...string) error {
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill %v: %w: %s", args, err, out)
	}
	return nil
}
