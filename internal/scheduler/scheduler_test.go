package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklaunch/internal/models"
)

func TestToCronExpr(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"14:30", "30 14 * * *", false},
		{"00:00", "0 0 * * *", false},
		{"9:05", "5 9 * * *", false},
		{"*/5 * * * *", "*/5 * * * *", false},
		{"not a schedule", "", true},
	}
	for _, c := range cases {
		got, err := toCronExpr(c.in)
		if c.wantErr {
			assert.Error(t, err, "toCronExpr(%q): expected error", c.in)
			continue
		}
		require.NoError(t, err, "toCronExpr(%q)", c.in)
		assert.Equal(t, c.want, got)
	}
}

func TestDescribe(t *testing.T) {
	cases := map[string]string{
		"14:30": "Daily at 2:30 PM",
		"00:00": "Daily at 12:00 AM",
		"12:00": "Daily at 12:00 PM",
		"09:05": "Daily at 9:05 AM",
	}
	for in, want := range cases {
		assert.Equal(t, want, Describe(in), "Describe(%q)", in)
	}
}

type fakeRunner struct {
	running map[string]bool
	runs    []string
	exit    int
	err     error
}

func (f *fakeRunner) RunScheduled(cfg models.AppConfig, key string, isManual bool) (int, error) {
	f.runs = append(f.runs, key)
	return f.exit, f.err
}

func (f *fakeRunner) IsRunning(key string) bool { return f.running[key] }

type fakeState struct {
	doc models.ScheduleStateDocument
}

func (f *fakeState) LoadSchedule() (models.ScheduleStateDocument, error) {
	if f.doc == nil {
		f.doc = models.ScheduleStateDocument{}
	}
	return f.doc, nil
}

func (f *fakeState) SaveSchedule(doc models.ScheduleStateDocument) error {
	f.doc = doc
	return nil
}

func TestRunManualRejectsDisabledSchedule(t *testing.T) {
	s := New(&fakeRunner{}, &fakeState{})
	defer s.Stop()

	app := models.AppConfig{ID: "worker", Schedule: "09:00", ScheduleEnabled: false}
	_, serr := s.RunManual(app)
	assert.NotNil(t, serr, "expected rejection for disabled schedule")
}

func TestRunManualRejectsAlreadyRunningSync(t *testing.T) {
	runner := &fakeRunner{running: map[string]bool{"worker:sync": true}}
	s := New(runner, &fakeState{})
	defer s.Stop()

	app := models.AppConfig{ID: "worker", Schedule: "09:00", ScheduleEnabled: true, ScheduleCommand: []string{"npm", "run", "sync"}}
	_, serr := s.RunManual(app)
	assert.NotNil(t, serr, "expected rejection for already-running sync task")
}

func TestRunManualExecutesAndRecordsState(t *testing.T) {
	runner := &fakeRunner{exit: 0}
	state := &fakeState{}
	s := New(runner, state)
	defer s.Stop()

	app := models.AppConfig{ID: "worker", Schedule: "09:00", ScheduleEnabled: true}
	code, serr := s.RunManual(app)
	require.Nil(t, serr, "unexpected rejection: %v", serr)
	assert.Equal(t, 0, code)
	require.Len(t, runner.runs, 1)
	assert.Equal(t, "worker", runner.runs[0])
	_, ok := state.doc["worker"]
	assert.True(t, ok, "expected schedule state to be recorded for worker")
}

func TestRecoverMissedRunsSkipsAlreadyRunToday(t *testing.T) {
	runner := &fakeRunner{}
	state := &fakeState{doc: models.ScheduleStateDocument{
		"worker": {LastRun: time.Now(), LastExitCode: 0},
	}}
	s := New(runner, state)
	defer s.Stop()

	past := time.Now().Add(-time.Hour)
	app := models.AppConfig{
		ID: "worker", Schedule: pastHHMM(past), ScheduleEnabled: true, RunIfMissed: true,
	}
	s.RecoverMissedRuns([]models.AppConfig{app})
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, runner.runs, "expected no recovery run")
}

func pastHHMM(t time.Time) string {
	return t.Format("15:04")
}
