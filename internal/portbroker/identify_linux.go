//go:build linux

package portbroker

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// linuxIdentifier shells out to `ss`, the modern netstat-equivalent, mirroring
// the teacher's exec.Command-plus-output-parsing pattern from its systemd
// provider (there: `systemctl --output=json`; here: `ss`'s fixed columns).
type linuxIdentifier struct{}

// NewPlatformIdentifier returns the Linux ss-backed Identifier.
func NewPlatformIdentifier() Identifier { return linuxIdentifier{} }

func (linuxIdentifier) Identify(port int) (int, string, bool) {
	cmd := exec.Command("ss", "-ltnp", fmt.Sprintf("sport = :%d", port))
	output, err := cmd.Output()
	if err != nil {
		return 0, "", false
	}
	return parseSSOutput(string(output))
}

func (linuxIdentifier) Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// parseSSOutput extracts pid/name from a line like:
// LISTEN 0 128 127.0.0.1:5173 0.0.0.0:* users:(("node",pid=1234,fd=20))
func parseSSOutput(output string) (int, string, bool) {
	idx := strings.Index(output, "pid=")
	if idx == -1 {
		return 0, "", false
	}
	rest := output[idx+len("pid="):]
	end := strings.IndexAny(rest, ",)")
	if end == -1 {
		return 0, "", false
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, "", false
	}

	name := ""
	if nidx := strings.Index(output, `(("`); nidx != -1 {
		rest := output[nidx+3:]
		if nend := strings.Index(rest, `"`); nend != -1 {
			name = rest[:nend]
		}
	}
	return pid, name, true
}
