//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// DefaultShell returns %ComSpec%, or cmd.exe when it is unset.
func DefaultShell() string {
	if comspec := os.Getenv("ComSpec"); comspec != "" {
		return comspec
	}
	return "cmd.exe"
}

// shellCommand builds a cmd.exe /C invocation. cmd.exe refuses UNC working
// directories, so those run under PowerShell instead.
func shellCommand(shell, command, cwd string) *exec.Cmd {
	if strings.HasPrefix(cwd, `\\`) {
		cmd := exec.Command("powershell.exe", "-NoProfile", "-NonInteractive", "-Command", command)
		cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NO_WINDOW}
		return cmd
	}

	if shell == "" {
		shell = DefaultShell()
	}
	cmd := exec.Command(shell)
	// cmd.exe parses its own command line, so pass the text through unescaped.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       fmt.Sprintf("%s /C %s", syscall.EscapeArg(shell), command),
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	return cmd
}
