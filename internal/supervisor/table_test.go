package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklaunch/internal/models"
)

func TestCompareAndSetStatusRefusesTerminal(t *testing.T) {
	table := NewTable()
	entry := models.NewProcessEntry("app1", models.AppConfig{ID: "app1"}, false, true, false)
	table.Insert(entry)

	table.ForceTerminal("app1", models.StatusFailed, 1, nil)

	assert.False(t, table.CompareAndSetStatus("app1", models.StatusRunning), "expected CompareAndSetStatus to refuse a terminal entry")
	got, _ := table.Get("app1")
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestCompareAndSetStatusSucceedsFromStarting(t *testing.T) {
	table := NewTable()
	table.Insert(models.NewProcessEntry("app1", models.AppConfig{ID: "app1"}, false, true, false))

	assert.True(t, table.CompareAndSetStatus("app1", models.StatusRunning), "expected CompareAndSetStatus to succeed from starting")
	got, _ := table.Get("app1")
	assert.Equal(t, models.StatusRunning, got.Status)
}

func TestRemoveThenStaleForceTerminalIsNoop(t *testing.T) {
	table := NewTable()
	table.Insert(models.NewProcessEntry("app1", models.AppConfig{ID: "app1"}, false, true, false))

	_, ok := table.Remove("app1")
	require.True(t, ok, "expected Remove to find the entry")

	// A late exit observer finding nothing is the documented no-op
	// (spec.md §5): ForceTerminal on a missing key must not panic or
	// resurrect an entry.
	table.ForceTerminal("app1", models.StatusFailed, 1, nil)
	_, ok = table.Get("app1")
	assert.False(t, ok, "expected no entry to exist after remove-then-late-exit")
}

func TestRestartTrackerClearedAfterStability(t *testing.T) {
	table := NewTable()
	tracker := table.RestartTracker("app1")
	tracker.Attempts = 2

	table.ClearRestartTracker("app1")

	fresh := table.RestartTracker("app1")
	assert.Equal(t, 0, fresh.Attempts, "expected attempts reset to 0 after clear")
}

func TestAppendHistoryBoundsLength(t *testing.T) {
	table := NewTable()
	for i := 0; i < maxStartupHistory+5; i++ {
		table.AppendHistory("app1", models.StartupAttempt{Result: models.ResultFailed})
	}
	assert.Len(t, table.History("app1"), maxStartupHistory)
}

func TestLastErrorNilOnSuccess(t *testing.T) {
	table := NewTable()
	table.AppendHistory("app1", models.StartupAttempt{Result: models.ResultFailed})
	table.AppendHistory("app1", models.StartupAttempt{Result: models.ResultSuccess})

	assert.Nil(t, table.LastError("app1"), "expected nil LastError after a successful attempt")
}
