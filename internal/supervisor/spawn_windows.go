//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// hideWindow suppresses the console window Windows would otherwise pop up
// for a piped child process (spec.md §4.3.1 step 6).
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
