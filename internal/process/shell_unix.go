//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// DefaultShell returns bash when installed, sh otherwise.
func DefaultShell() string {
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

// shellCommand builds `<shell> -c <command>`. The child leads its own process
// group so signals reach everything it starts.
func shellCommand(shell, command, _ string) *exec.Cmd {
	if shell == "" {
		shell = DefaultShell()
	}
	cmd := exec.Command(shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}
