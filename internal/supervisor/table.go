// Package supervisor implements the ProcessTable, LifecycleManager, and
// HealthProber components (spec.md §4.3, §4.4): spawning and owning child
// processes, classifying their exits, applying the auto-restart policy, and
// polling for HTTP liveness.
package supervisor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"quicklaunch/internal/models"
)

const maxStartupHistory = 20

// Table is the canonical in-memory ProcessTable: managed processes keyed by
// composite key, plus the per-app restart and startup-history bookkeeping
// that rides alongside it (spec.md §3, §5).
type Table struct {
	mu       sync.Mutex
	entries  map[string]*models.ProcessEntry
	restarts map[string]*models.RestartTracker
	history  map[string][]models.StartupAttempt
}

// NewTable creates an empty ProcessTable.
func NewTable() *Table {
	return &Table{
		entries:  make(map[string]*models.ProcessEntry),
		restarts: make(map[string]*models.RestartTracker),
		history:  make(map[string][]models.StartupAttempt),
	}
}

// Get returns the entry for key, if any.
func (t *Table) Get(key string) (*models.ProcessEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return e, ok
}

// Insert stores a fresh entry, overwriting whatever terminal entry was there.
func (t *Table) Insert(entry *models.ProcessEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[entry.Key] = entry
}

// Remove deletes the entry for key, returning it if present. Used by Stop to
// remove-before-kill (spec.md §5) so a late exit observer is a no-op.
func (t *Table) Remove(key string) (*models.ProcessEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return e, ok
}

// CompareAndSetStatus transitions the entry's status only if its current
// status is not already terminal, implementing the one-writer rule for
// starting→running and the "never upgrade a terminal entry" rule for every
// other writer (spec.md §5).
func (t *Table) CompareAndSetStatus(key string, status models.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.Status.Terminal() {
		return false
	}
	e.Status = status
	return true
}

// ForceTerminal unconditionally sets a terminal status, exit code, and
// error — the exit observer's exclusive write path, valid from any state.
func (t *Table) ForceTerminal(key string, status models.Status, exitCode int, err *models.StructuredError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.Status = status
	ec := exitCode
	e.ExitCode = &ec
	e.Err = err
}

// SetStartupError records a structured error observed on a still-starting
// entry (spec.md §4.3.1 step 7: classified stdout/stderr lines attributed
// before the exit observer has a final exit code). A no-op once the entry
// has left the starting status, so a late-arriving line can't clobber a
// terminal entry's own error.
func (t *Table) SetStartupError(key string, se *models.StructuredError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.Status != models.StatusStarting {
		return
	}
	e.Err = se
}

// Err returns the entry's currently recorded structured error, if any.
func (t *Table) Err(key string) *models.StructuredError {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	return e.Err
}

// SetStatus unconditionally sets a non-terminal status. Only the exit
// observer's own follow-up restart goroutine calls this;
// every other writer must go through CompareAndSetStatus or ForceTerminal.
func (t *Table) SetStatus(key string, status models.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.Status = status
	}
}

// Snapshot returns a shallow copy of every entry currently in the table.
func (t *Table) Snapshot() map[string]*models.ProcessEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*models.ProcessEntry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// RestartTracker returns the tracker for key, creating one on first access.
func (t *Table) RestartTracker(key string) *models.RestartTracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	rt, ok := t.restarts[key]
	if !ok {
		rt = &models.RestartTracker{}
		t.restarts[key] = rt
	}
	return rt
}

// ClearRestartTracker drops the tracker for key (the 60s stability reset).
func (t *Table) ClearRestartTracker(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.restarts, key)
}

// AppendHistory records a bounded StartupAttempt for appID, stamping an ID
// if the caller didn't set one.
func (t *Table) AppendHistory(appID string, attempt models.StartupAttempt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	h := append(t.history[appID], attempt)
	if len(h) > maxStartupHistory {
		h = h[len(h)-maxStartupHistory:]
	}
	t.history[appID] = h
}

// History returns appID's bounded StartupHistory, most recent last.
func (t *Table) History(appID string) []models.StartupAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.StartupAttempt, len(t.history[appID]))
	copy(out, t.history[appID])
	return out
}

// LastError returns the most recent StartupAttempt's failure, if the last
// attempt failed, for the /api/history/:id response.
func (t *Table) LastError(appID string) *models.StartupAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[appID]
	if len(h) == 0 {
		return nil
	}
	last := h[len(h)-1]
	if last.Result == models.ResultSuccess {
		return nil
	}
	return &last
}

// now is overridable in tests.
var now = time.Now
