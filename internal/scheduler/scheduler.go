// Package scheduler installs and fires per-app cron jobs over the
// LifecycleManager, and recovers missed runs on startup (spec.md §4.5).
package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
)

// Runner is the slice of LifecycleManager the Scheduler drives: synchronous
// scheduled execution and the manual-run "already running" precondition.
type Runner interface {
	RunScheduled(cfg models.AppConfig, key string, isManual bool) (int, error)
	IsRunning(key string) bool
}

// StateStore is the slice of configstore.Store the Scheduler needs to
// persist ScheduleState across restarts.
type StateStore interface {
	LoadSchedule() (models.ScheduleStateDocument, error)
	SaveSchedule(models.ScheduleStateDocument) error
}

var hhmmRE = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Scheduler owns one robfig/cron engine and the map of installed entries,
// keyed by app ID (spec.md §5: per-app keys, synchronized around
// insert/remove, the same idiom as ProcessTable's restart bookkeeping).
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	runner  Runner
	state   StateStore
	entries map[string]cron.EntryID
}

// New creates a Scheduler over runner and state, starting its cron engine.
func New(runner Runner, state StateStore) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		state:   state,
		entries: make(map[string]cron.EntryID),
	}
	s.cron.Start()
	return s
}

// Stop halts the cron engine, waiting for any in-flight job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// toCronExpr translates spec.md §4.5's accepted schedule forms: a bare
// `HH:MM` becomes a daily `<m> <h> * * *`; anything else is assumed to
// already be a 5-field cron expression and passed through.
func toCronExpr(schedule string) (string, error) {
	if m := hhmmRE.FindStringSubmatch(schedule); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%d %d * * *", mi, h), nil
	}
	if len(strings.Fields(schedule)) != 5 {
		return "", fmt.Errorf("schedule %q is neither HH:MM nor a 5-field cron expression", schedule)
	}
	return schedule, nil
}

// Describe renders a human-readable description of schedule, used by the
// dashboard (spec.md §4.5, e.g. "Daily at 2:30 PM").
func Describe(schedule string) string {
	if m := hhmmRE.FindStringSubmatch(schedule); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		suffix := "AM"
		h12 := h
		if h == 0 {
			h12 = 12
		} else if h == 12 {
			suffix = "PM"
		} else if h > 12 {
			h12 = h - 12
			suffix = "PM"
		}
		return fmt.Sprintf("Daily at %d:%02d %s", h12, mi, suffix)
	}
	return "Custom schedule: " + schedule
}

// Install cancels any existing entry for app.ID and, if app.Schedule is set
// and app.ScheduleEnabled, installs a fresh one (spec.md §4.5:
// "cancel-and-reinstall on any config change").
func (s *Scheduler) Install(app models.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(app.ID)

	if app.Schedule == "" || !app.ScheduleEnabled {
		return nil
	}
	expr, err := toCronExpr(app.Schedule)
	if err != nil {
		return err
	}

	cfg := app
	id, err := s.cron.AddFunc(expr, func() { s.executeScheduledApp(cfg, false) })
	if err != nil {
		return fmt.Errorf("install schedule for %s: %w", app.ID, err)
	}
	s.entries[app.ID] = id
	logger.Info("schedule installed", "app", app.ID, "schedule", app.Schedule, "expr", expr)
	return nil
}

// Remove cancels the installed entry for appID, if any.
func (s *Scheduler) Remove(appID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(appID)
}

func (s *Scheduler) removeLocked(appID string) {
	if id, ok := s.entries[appID]; ok {
		s.cron.Remove(id)
		delete(s.entries, appID)
	}
}

// IsInstalled reports whether appID currently has a cron entry installed.
func (s *Scheduler) IsInstalled(appID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[appID]
	return ok
}

// State returns the persisted ScheduleState for appID, if any.
func (s *Scheduler) State(appID string) (models.ScheduleState, bool) {
	doc, err := s.state.LoadSchedule()
	if err != nil {
		return models.ScheduleState{}, false
	}
	st, ok := doc[appID]
	return st, ok
}

// AllState returns the whole persisted ScheduleStateDocument, used by the
// GET /api/schedules listing endpoint.
func (s *Scheduler) AllState() models.ScheduleStateDocument {
	doc, err := s.state.LoadSchedule()
	if err != nil {
		return models.ScheduleStateDocument{}
	}
	return doc
}

// RunManual executes app immediately on the caller's behalf, enforcing the
// manual-run preconditions (spec.md §4.5): the schedule must be enabled, and
// no sync run under the same composite key may already be in flight.
func (s *Scheduler) RunManual(app models.AppConfig) (int, *models.StructuredError) {
	if !app.ScheduleEnabled {
		return 0, &models.StructuredError{
			Kind:        "EXCEPTION",
			SupportCode: models.SupportUnknown,
			Message:     app.ID + "'s schedule is not enabled",
		}
	}
	key := scheduledKey(app)
	if s.runner.IsRunning(key) {
		return 0, &models.StructuredError{
			Kind:        "EXCEPTION",
			SupportCode: models.SupportUnknown,
			Message:     app.ID + " is already running its scheduled task",
		}
	}
	code, err := s.executeScheduledApp(app, true)
	if err != nil {
		return 0, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()}
	}
	return code, nil
}

// scheduledKey picks the composite key a scheduled run spawns under: the
// dedicated ":sync" key for hybrid apps (so the long-running server keeps
// running alongside it), else the app's own key (spec.md §4.5).
func scheduledKey(app models.AppConfig) string {
	return models.CompositeKey(app.ID, app.IsHybrid())
}

// executeScheduledApp spawns app's scheduled command and records the result
// into ScheduleState (spec.md §4.5).
func (s *Scheduler) executeScheduledApp(app models.AppConfig, isManual bool) (int, error) {
	key := scheduledKey(app)

	cfg := app
	if app.IsHybrid() {
		cfg.Command = app.ScheduleCommand
	}
	if !isManual && containsNpmRunSync(cfg.Command) {
		cfg.Command = append(append([]string{}, cfg.Command...), "--", "--headless")
	}

	code, err := s.runner.RunScheduled(cfg, key, isManual)
	if err != nil {
		logger.Warn("scheduled run failed to spawn", "app", app.ID, "error", err)
		return code, err
	}

	if serr := s.recordRun(app.ID, code, isManual); serr != nil {
		logger.Warn("failed to persist schedule state", "app", app.ID, "error", serr)
	}
	return code, nil
}

func containsNpmRunSync(argv []string) bool {
	joined := strings.Join(argv, " ")
	return strings.Contains(joined, "npm run sync")
}

func (s *Scheduler) recordRun(appID string, exitCode int, isManual bool) error {
	doc, err := s.state.LoadSchedule()
	if err != nil {
		return err
	}
	doc[appID] = models.ScheduleState{LastRun: time.Now(), LastExitCode: exitCode, WasManual: isManual}
	return s.state.SaveSchedule(doc)
}

// RecoverMissedRuns implements spec.md §4.5's missed-run recovery: on
// startup, for each enabled app with RunIfMissed true, run it immediately if
// it has never run or didn't run today and today's scheduled time has
// already passed.
func (s *Scheduler) RecoverMissedRuns(apps []models.AppConfig) {
	doc, err := s.state.LoadSchedule()
	if err != nil {
		logger.Warn("failed to load schedule state for missed-run recovery", "error", err)
		return
	}

	nowT := time.Now()
	for _, app := range apps {
		if !app.ScheduleEnabled || !app.RunIfMissed || app.Schedule == "" {
			continue
		}
		if !s.scheduledTimePassedToday(app.Schedule, nowT) {
			continue
		}
		state, hasRun := doc[app.ID]
		missed := !hasRun || !sameCalendarDate(state.LastRun, nowT)
		if !missed {
			continue
		}
		logger.Info("recovering missed scheduled run", "app", app.ID)
		go s.executeScheduledApp(app, false)
	}
}

func sameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// scheduledTimePassedToday reports whether schedule's HH:MM time-of-day has
// already occurred today; non-HH:MM (bare cron) schedules are treated as
// always-eligible since spec.md's recovery rule is defined in terms of
// time-of-day.
func (s *Scheduler) scheduledTimePassedToday(schedule string, nowT time.Time) bool {
	m := hhmmRE.FindStringSubmatch(schedule)
	if m == nil {
		return true
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	scheduledToday := time.Date(nowT.Year(), nowT.Month(), nowT.Day(), h, mi, 0, 0, nowT.Location())
	return nowT.After(scheduledToday)
}
