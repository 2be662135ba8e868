package models

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a managed process entry.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
	StatusRestarting Status = "restarting"
	StatusCompleted  Status = "completed"
	StatusExternal   Status = "external"
)

// Terminal reports whether a status is a terminal one that must never be
// upgraded back to running/starting by a stale observer.
func (s Status) Terminal() bool {
	switch s {
	case StatusStopped, StatusFailed, StatusCompleted:
		return true
	default:
		return false
	}
}

// LogLine is one captured line of stdout/stderr output.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // "stdout" | "stderr"
	Text      string    `json:"text"`
}

// LogRing is a bounded ring buffer of the most recent log lines.
type LogRing struct {
	mu    sync.Mutex
	cap   int
	lines []LogLine
}

// NewLogRing creates a ring buffer bounded at capacity.
func NewLogRing(capacity int) *LogRing {
	return &LogRing{cap: capacity}
}

// Append adds a line, evicting the oldest entry once capacity is reached.
func (r *LogRing) Append(line LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

// Last returns a copy of the last n lines (or fewer if not that many exist).
func (r *LogRing) Last(n int) []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]LogLine, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

// All returns a copy of every retained line, oldest first.
func (r *LogRing) All() []LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogLine, len(r.lines))
	copy(out, r.lines)
	return out
}

// StructuredError is the taxonomy described in spec.md §7: every failure
// carries a kind, a support code, a human suggestion, and a trace.
type StructuredError struct {
	Kind            string   `json:"kind"`
	SupportCode     string   `json:"supportCode"`
	Message         string   `json:"message"`
	Suggestion      string   `json:"suggestion,omitempty"`
	Troubleshooting []string `json:"troubleshooting,omitempty"`
	CanRetry        bool     `json:"canRetry,omitempty"`
	CanUseAlt       bool     `json:"canUseAlternative,omitempty"`
	AlternativePort int      `json:"alternativePort,omitempty"`
	NeedsInstall    bool     `json:"needsInstall,omitempty"`
	PackageManager  string   `json:"packageManager,omitempty"`
}

func (e *StructuredError) Error() string { return e.Message }

// Support codes surfaced verbatim to clients (spec.md §6).
const (
	SupportPortInUse        = "QL-PORT-001"
	SupportPortInUseRetried = "QL-PORT-002"
	SupportPathMissing      = "QL-PATH-001"
	SupportManifestMissing  = "QL-NPM-001"
	SupportDepsMissing      = "QL-MOD-001"
	SupportFileMissing      = "QL-FILE-001"
	SupportNetworkError     = "QL-NET-001"
	SupportUnknown          = "QL-ERR-000"
	SupportServerException  = "QL-ERR-500"
)

// ProcessEntry is the canonical in-memory record of a managed child process.
// It is mutated only by the LifecycleManager and by the stdout/stderr/exit
// observers it spawns, always under ProcessTable's lock.
type ProcessEntry struct {
	Key           string // appId, or "appId:sync" for the hybrid scheduled task
	AppID         string
	DisplayName   string
	Port          int
	PID           int
	Status        Status
	ExitCode      *int
	Err           *StructuredError
	StartTime     time.Time
	Logs          *LogRing
	ConfigSnap    AppConfig
	IsScheduled   bool
	IsManual      bool
	IsSyncProcess bool

	cancelHealth func() // cancels any in-flight health poll for this entry
}

// NewProcessEntry builds a fresh starting entry from a config snapshot.
func NewProcessEntry(key string, cfg AppConfig, isScheduled, isManual, isSync bool) *ProcessEntry {
	return &ProcessEntry{
		Key:           key,
		AppID:         cfg.ID,
		DisplayName:   cfg.Name,
		Port:          cfg.Port,
		Status:        StatusStarting,
		StartTime:     time.Now(),
		Logs:          NewLogRing(200),
		ConfigSnap:    cfg,
		IsScheduled:   isScheduled,
		IsManual:      isManual,
		IsSyncProcess: isSync,
	}
}

// SetCancelHealth stores the cancel func for the entry's active health poll.
func (p *ProcessEntry) SetCancelHealth(cancel func()) { p.cancelHealth = cancel }

// CancelHealth cancels any in-flight health poll, a no-op if none is active.
func (p *ProcessEntry) CancelHealth() {
	if p.cancelHealth != nil {
		p.cancelHealth()
	}
}

// CompositeKey returns "appId" or "appId:sync" for the hybrid periodic task.
func CompositeKey(appID string, sync bool) string {
	if sync {
		return appID + ":sync"
	}
	return appID
}

// RestartTracker is the per-app restart bookkeeping described in spec.md §3.
type RestartTracker struct {
	Attempts      int
	LastAttempt   time.Time
	CooldownUntil time.Time
}

// Exhausted reports whether the tracker currently blocks a restart: the
// attempt budget is spent, or an earlier exhaustion's 5-minute cooldown has
// not yet elapsed. This is the negation of spec.md §4.3.3's restart decision.
func (t *RestartTracker) Exhausted(max int, now time.Time) bool {
	return t.Attempts >= max || now.Before(t.CooldownUntil)
}

// StartupAttemptResult is the outcome of one recorded startup attempt.
type StartupAttemptResult string

const (
	ResultSuccess      StartupAttemptResult = "success"
	ResultPartial      StartupAttemptResult = "partial"
	ResultFailed       StartupAttemptResult = "failed"
	ResultNeedsInstall StartupAttemptResult = "needs_install"
)

// StartupAttempt is one entry in an app's bounded StartupHistory.
type StartupAttempt struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Steps     []string             `json:"steps"`
	Result    StartupAttemptResult `json:"result"`
}
