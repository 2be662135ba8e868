package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklaunch/internal/models"
)

func TestLoadCreatesDocumentSeededWithSupervisorPort(t *testing.T) {
	s := New(t.TempDir())
	doc, err := s.Load()
	require.NoError(t, err)
	_, ok := doc.ReservedPorts[models.SupervisorReservedPort]
	assert.True(t, ok, "expected a fresh document to reserve the supervisor's own port")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New(t.TempDir())
	doc, err := s.Load()
	require.NoError(t, err)
	doc.Apps = append(doc.Apps, models.AppConfig{ID: "web", Name: "Web", Port: 5173})
	require.NoError(t, s.Save(doc))

	reloaded := New(s.dir)
	got, err := reloaded.Load()
	require.NoError(t, err)
	require.Len(t, got.Apps, 1)
	assert.Equal(t, "web", got.Apps[0].ID)
}

func TestSupervisorPortReservationSurvivesReload(t *testing.T) {
	s := New(t.TempDir())
	doc, err := s.Load()
	require.NoError(t, err)
	delete(doc.ReservedPorts, models.SupervisorReservedPort)
	require.NoError(t, s.Save(doc))

	reloaded := New(s.dir)
	got, err := reloaded.Load()
	require.NoError(t, err)
	_, ok := got.ReservedPorts[models.SupervisorReservedPort]
	assert.True(t, ok, "expected Load to re-seed the supervisor's own port reservation")
}

func TestSnapshotWithoutLoadReturnsEmptyDocument(t *testing.T) {
	s := New(t.TempDir())
	snap := s.Snapshot()
	require.NotNil(t, snap, "expected a non-nil snapshot even before Load")
	assert.Empty(t, snap.Apps)
}

func TestScheduleStateRoundTrips(t *testing.T) {
	s := New(t.TempDir())
	doc, err := s.LoadSchedule()
	require.NoError(t, err)
	assert.Empty(t, doc, "expected an empty schedule-state document initially")

	doc["web"] = models.ScheduleState{LastExitCode: 0}
	require.NoError(t, s.SaveSchedule(doc))

	reloaded := New(s.dir)
	got, err := reloaded.LoadSchedule()
	require.NoError(t, err)
	_, ok := got["web"]
	assert.True(t, ok, "expected schedule state for 'web' to survive a reload")
}
