//go:build !windows

package supervisor

import "os/exec"

// hideWindow is a no-op on platforms with no console window to hide.
func hideWindow(cmd *exec.Cmd) {}
