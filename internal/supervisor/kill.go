package supervisor

import "os"

// killProcess sends a kill signal to pid. Full process-tree termination is
// out of scope (spec.md §1) — this kills only the direct child, matching the
// teacher's own single-PID shutdown.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
