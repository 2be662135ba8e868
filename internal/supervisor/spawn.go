package supervisor

import (
	"bufio"
	"errors"
	"io"
	"os/exec"
	"runtime"

	"quicklaunch/internal/models"
)

// buildCommand constructs the exec.Cmd for cfg.Command, routing through a
// shell on Windows-like platforms (spec.md §4.3.1 step 6).
func buildCommand(cfg models.AppConfig) *exec.Cmd {
	argv := cfg.Command
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		args := append([]string{"/C"}, argv...)
		cmd = exec.Command("cmd", args...)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}
	cmd.Dir = cfg.Path
	hideWindow(cmd)
	return cmd
}

// exitCodeFrom extracts a child's exit code from cmd.Wait's error, or -1 for
// a non-ExitError failure (e.g. the binary itself could not be found).
func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// normalExitCodes is the set from spec.md §4.3.2: clean exit, Ctrl-C, and
// Windows system logoff/shutdown.
var normalExitCodes = map[int]bool{0: true, 0xC000013A: true, 0x40010004: true}

// readStream tails one pipe into the entry's log ring, flagging lines that
// match a known startup-crash marker while the entry is still starting
// (spec.md §4.3.1 step 7).
func (m *LifecycleManager) readStream(key string, stream string, pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		entry, ok := m.table.Get(key)
		if !ok {
			continue
		}
		entry.Logs.Append(models.LogLine{Timestamp: now(), Stream: stream, Text: line})

		if entry.Status != models.StatusStarting {
			continue
		}
		if kind, matched := classifyLine(line); matched {
			m.table.SetStartupError(key, &models.StructuredError{Kind: kind, SupportCode: supportCodeForKind(kind), Message: line})
		}
	}
}

func supportCodeForKind(kind string) string {
	switch kind {
	case "PORT_IN_USE":
		return models.SupportPortInUse
	case "MISSING_DEPENDENCIES":
		return models.SupportDepsMissing
	case "FILE_NOT_FOUND":
		return models.SupportFileMissing
	default:
		return models.SupportUnknown
	}
}
