package supervisor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
	"quicklaunch/internal/portbroker"
)

// Diagnostics is the slice of DiagnosticsEngine the LifecycleManager needs:
// writing troubleshooting events and consulting/synthesizing advisories.
// Defined here (point of use) so *diagnostics.Engine satisfies it without
// either package importing the other's concrete type.
type Diagnostics interface {
	LogEvent(level, app, message string, details map[string]any) error
	Analyze(appName string) (models.Analysis, error)
	SynthesizeTodo(appName string, analysis models.Analysis) error
}

// LifecycleManager implements the start/stop state machine (spec.md §4.3).
type LifecycleManager struct {
	table  *Table
	ports  *portbroker.Broker
	diag   Diagnostics
	health *HealthProber

	// IsPackageManagerCommand overrides the default npm/yarn/pnpm predicate
	// used by the manifest/dependency preflight check (spec.md §9).
	IsPackageManagerCommand func(argv []string) bool

	// OnScheduleComplete, if set, is invoked after every scheduled run
	// (interactive starts never call it) with the run's exit code.
	OnScheduleComplete func(appID string, exitCode int, isManual bool)
}

// NewLifecycleManager wires a LifecycleManager over the given collaborators.
func NewLifecycleManager(table *Table, ports *portbroker.Broker, diag Diagnostics, health *HealthProber) *LifecycleManager {
	return &LifecycleManager{table: table, ports: ports, diag: diag, health: health}
}

// StartRequest is the LifecycleManager.Start input (spec.md §6 POST /api/start).
type StartRequest struct {
	ID                 string
	Name               string
	Port               int
	Path               string
	Command            []string
	Retry              bool
	OverridePort       int
	HealthCheckURL     string
	StartupTimeout     int
	AutoRestart        bool
	MaxRestartAttempts int
}

// StartResult is the success envelope for Start.
type StartResult struct {
	Success  bool
	Status   models.Status
	Port     int
	PID      int
	Elapsed  time.Duration
	Warning  string
	Analysis *models.Analysis
}

// Start runs the full interactive preflight/spawn/health-poll sequence
// (spec.md §4.3.1).
func (m *LifecycleManager) Start(req StartRequest) (*StartResult, *models.StructuredError) {
	key := models.CompositeKey(req.ID, false)

	// Step 1.
	if entry, ok := m.table.Get(key); ok {
		if entry.Status.Terminal() {
			m.table.Remove(key)
		} else {
			return nil, &models.StructuredError{
				Kind:        "EXCEPTION",
				SupportCode: models.SupportUnknown,
				Message:     fmt.Sprintf("%s is already %s", req.ID, entry.Status),
			}
		}
	}

	// Step 2: advisory analysis, synthesizing a TODO on a critical tier.
	var analysisPtr *models.Analysis
	if m.diag != nil {
		if analysis, err := m.diag.Analyze(req.ID); err == nil {
			analysisPtr = &analysis
			if analysis.ShouldAutoTodo {
				if err := m.diag.SynthesizeTodo(req.ID, analysis); err != nil {
					logger.Warn("auto-todo synthesis failed", "app", req.ID, "error", err)
				}
			}
		}
	}

	port := req.Port
	if req.OverridePort != 0 {
		port = req.OverridePort
	}

	// Step 3: port check.
	if port > 0 {
		if se := m.checkPort(req.ID, port, req.Retry); se != nil {
			return nil, se
		}
	}

	// Step 4: path check.
	if se := checkPath(req.Path); se != nil {
		return nil, se
	}

	// Step 5: manifest/dependency check.
	if se := m.checkManifestAndDeps(req.Path, req.Command); se != nil {
		return nil, se
	}

	cfg := models.AppConfig{
		ID:                 req.ID,
		Name:               req.Name,
		Port:               port,
		Path:               req.Path,
		Command:            req.Command,
		HealthCheckURL:     req.HealthCheckURL,
		StartupTimeout:     req.StartupTimeout,
		AutoRestart:        req.AutoRestart,
		MaxRestartAttempts: req.MaxRestartAttempts,
	}
	cfg.ApplyDefaults()

	// Steps 6-7: spawn and track.
	if _, err := m.spawn(key, cfg, false, true, false); err != nil {
		se := &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()}
		m.table.AppendHistory(req.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultFailed})
		return nil, se
	}

	// Step 8: settle check.
	time.Sleep(500 * time.Millisecond)
	if cur, ok := m.table.Get(key); ok && cur.Status == models.StatusFailed {
		se := m.table.Err(key)
		if se == nil {
			se = &models.StructuredError{Kind: "STARTUP_CRASH", SupportCode: models.SupportUnknown, Message: req.ID + " exited immediately after starting"}
		}
		m.table.AppendHistory(req.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultFailed})
		return nil, se
	}

	result := &StartResult{Success: true, Status: models.StatusStarting, Port: port, Analysis: analysisPtr}
	if entry, ok := m.table.Get(key); ok {
		result.PID = entry.PID
	}

	if port == 0 {
		m.table.CompareAndSetStatus(key, models.StatusRunning)
		result.Status = models.StatusRunning
		m.table.AppendHistory(req.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultSuccess})
		return result, nil
	}

	// Step 9: health poll. A concurrent Stop cancels it via entry.CancelHealth.
	stop := make(chan struct{})
	var once sync.Once
	if entry, ok := m.table.Get(key); ok {
		entry.SetCancelHealth(func() { once.Do(func() { close(stop) }) })
	}

	hr := m.health.WaitForHealthy(HealthCheckOptions{
		Port:           port,
		HealthURL:      cfg.HealthURL(),
		StartupTimeout: time.Duration(cfg.StartupTimeout) * time.Millisecond,
	}, stop)

	if hr.Healthy {
		m.table.CompareAndSetStatus(key, models.StatusRunning)
		result.Status = models.StatusRunning
		result.Elapsed = hr.Elapsed
		m.table.AppendHistory(req.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultSuccess})
		return result, nil
	}

	result.Warning = "health check timed out; the app may still become healthy"
	result.Elapsed = hr.Elapsed
	m.table.AppendHistory(req.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultPartial})
	return result, nil
}

// checkPort implements preflight step 3.
func (m *LifecycleManager) checkPort(appID string, port int, retry bool) *models.StructuredError {
	check := m.ports.Check(port, appID)
	if check.Available {
		return nil
	}

	if retry {
		if err := m.ports.FreePort(port); err != nil {
			return &models.StructuredError{
				Kind:        "PORT_IN_USE",
				SupportCode: models.SupportPortInUseRetried,
				Message:     fmt.Sprintf("port %d is still in use after retry", port),
				Suggestion:  "Stop the blocking process manually, or retry with a different port.",
				CanRetry:    true,
			}
		}
		time.Sleep(500 * time.Millisecond)
		return nil
	}

	se := &models.StructuredError{
		Kind:        "PORT_IN_USE",
		SupportCode: models.SupportPortInUse,
		Message:     fmt.Sprintf("port %d is already in use", port),
		Suggestion:  "Retry to free the port automatically, or use the suggested alternative.",
		CanRetry:    true,
	}
	if ident, ok := m.ports.Identify(port); ok {
		se.Troubleshooting = append(se.Troubleshooting, fmt.Sprintf("port %d is held by pid %d (%s)", port, ident.PID, ident.Name))
	}
	if alt, err := m.ports.Suggest(port + 1); err == nil {
		se.CanUseAlt = true
		se.AlternativePort = alt
	}
	return se
}

// spawn starts cfg's command under key, inserting the entry and detaching
// the stdout/stderr/exit observer goroutines (spec.md §4.3.1 steps 6-7).
func (m *LifecycleManager) spawn(key string, cfg models.AppConfig, isScheduled, isManual, isSync bool) (*models.ProcessEntry, error) {
	entry := models.NewProcessEntry(key, cfg, isScheduled, isManual, isSync)
	m.table.Insert(entry)

	cmd := buildCommand(cfg)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return entry, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return entry, err
	}

	if err := cmd.Start(); err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return entry, err
	}
	entry.PID = cmd.Process.Pid

	go m.readStream(key, "stdout", stdout)
	go m.readStream(key, "stderr", stderr)
	go m.watchExit(key, cmd, cfg, isScheduled, isManual, isSync)

	logger.Info("process spawned", "app", cfg.ID, "pid", entry.PID, "key", key)
	return entry, nil
}

// watchExit is the exit observer: it owns exclusive write access to the
// entry's terminal status and decides whether to restart (spec.md §4.3.2).
func (m *LifecycleManager) watchExit(key string, cmd interface{ Wait() error }, cfg models.AppConfig, isScheduled, isManual, isSync bool) {
	err := cmd.Wait()
	entry, ok := m.table.Get(key)
	if !ok {
		return // removed by Stop; no-op (spec.md §5)
	}

	exitCode := exitCodeFrom(err)
	runtime := now().Sub(entry.StartTime)
	normal := normalExitCodes[exitCode]

	level := "INFO"
	if !normal {
		level = "WARN"
	}
	if m.diag != nil {
		_ = m.diag.LogEvent(level, cfg.ID, fmt.Sprintf("%s exited with code %d", cfg.ID, exitCode),
			map[string]any{"exitCode": exitCode, "normalTermination": normal})
	}

	switch {
	case normal:
		m.table.ForceTerminal(key, models.StatusStopped, exitCode, nil)
		m.table.ClearRestartTracker(key)
	case runtime < 5*time.Second:
		se := m.table.Err(key)
		if se == nil {
			se = &models.StructuredError{Kind: "STARTUP_CRASH", SupportCode: models.SupportUnknown,
				Message: fmt.Sprintf("%s crashed during startup (exit %d)", cfg.ID, exitCode)}
		}
		m.table.ForceTerminal(key, models.StatusFailed, exitCode, se)
		m.table.AppendHistory(cfg.ID, models.StartupAttempt{Timestamp: now(), Result: models.ResultFailed})
	case cfg.AutoRestart:
		m.table.ForceTerminal(key, models.StatusFailed, exitCode, &models.StructuredError{
			Kind: "RUNTIME_CRASH", SupportCode: models.SupportUnknown,
			Message: fmt.Sprintf("%s crashed (exit %d)", cfg.ID, exitCode)})
		go m.scheduleRestart(key, cfg, isScheduled, isManual, isSync)
	default:
		m.table.ForceTerminal(key, models.StatusFailed, exitCode, &models.StructuredError{
			Kind: "RUNTIME_CRASH", SupportCode: models.SupportUnknown,
			Message: fmt.Sprintf("%s crashed (exit %d)", cfg.ID, exitCode)})
	}

	if isScheduled && m.OnScheduleComplete != nil {
		m.OnScheduleComplete(cfg.ID, exitCode, isManual)
	}
}

// scheduleRestart applies the auto-restart policy (spec.md §4.3.3).
func (m *LifecycleManager) scheduleRestart(key string, cfg models.AppConfig, isScheduled, isManual, isSync bool) {
	tracker := m.table.RestartTracker(key)
	nowT := now()

	if tracker.Exhausted(cfg.MaxRestartAttempts, nowT) {
		if m.diag != nil {
			_ = m.diag.LogEvent("ERROR", cfg.ID, fmt.Sprintf("%s exhausted auto-restart attempts", cfg.ID),
				map[string]any{"attempts": tracker.Attempts})
		}
		return
	}

	tracker.Attempts++
	tracker.LastAttempt = nowT
	if tracker.Attempts >= cfg.MaxRestartAttempts {
		tracker.CooldownUntil = nowT.Add(5 * time.Minute)
	}

	m.table.SetStatus(key, models.StatusRestarting)
	time.Sleep(2 * time.Second)

	if cfg.Port > 0 && portbroker.IsPortInUse(cfg.Port) {
		_ = m.ports.FreePort(cfg.Port)
	}

	if _, err := m.spawn(key, cfg, isScheduled, isManual, isSync); err != nil {
		if m.diag != nil {
			_ = m.diag.LogEvent("ERROR", cfg.ID, fmt.Sprintf("%s restart failed to spawn: %v", cfg.ID, err), nil)
		}
		return
	}

	go m.stabilityReset(key)
}

// stabilityReset clears the restart tracker 60s after a successful restart
// if the replacement is still alive (spec.md §3, glossary "Stability reset").
func (m *LifecycleManager) stabilityReset(key string) {
	time.Sleep(60 * time.Second)
	entry, ok := m.table.Get(key)
	if !ok {
		return
	}
	if entry.Status == models.StatusRunning || entry.Status == models.StatusStarting {
		m.table.ClearRestartTracker(key)
		logger.Debug("restart tracker cleared after stability window", "key", key)
	}
}

// Stop removes the entry before killing the process, so a late exit
// observer finds nothing (spec.md §4.3.4, §5). Valid for any non-terminal
// status, including starting — after removing the entry it cancels the
// pending health poll, then kills the process (spec.md §9).
func (m *LifecycleManager) Stop(appID string) *models.StructuredError {
	key := models.CompositeKey(appID, false)
	entry, ok := m.table.Remove(key)
	if !ok {
		return &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportUnknown, Message: appID + " is not running"}
	}

	entry.CancelHealth()
	if entry.PID > 0 {
		if err := killProcess(entry.PID); err != nil {
			logger.Warn("failed to kill process", "app", appID, "pid", entry.PID, "error", err)
		}
	}

	if m.diag != nil {
		_ = m.diag.LogEvent("INFO", appID, appID+" stopped by request", nil)
	}
	return nil
}

// IsRunning reports whether the composite key currently holds a running
// entry — used by the Scheduler's manual-run precondition (spec.md §4.5).
func (m *LifecycleManager) IsRunning(key string) bool {
	e, ok := m.table.Get(key)
	return ok && e.Status == models.StatusRunning
}

// RunScheduled spawns cfg synchronously under key and blocks until it exits,
// recording the exit through the same observer bookkeeping as interactive
// starts (spec.md §4.5's executeScheduledApp).
func (m *LifecycleManager) RunScheduled(cfg models.AppConfig, key string, isManual bool) (int, error) {
	isSync := strings.HasSuffix(key, ":sync")
	entry := models.NewProcessEntry(key, cfg, true, isManual, isSync)
	m.table.Insert(entry)

	cmd := buildCommand(cfg)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		m.table.ForceTerminal(key, models.StatusFailed, -1, &models.StructuredError{Kind: "EXCEPTION", SupportCode: models.SupportServerException, Message: err.Error()})
		return -1, err
	}
	entry.PID = cmd.Process.Pid

	go m.readStream(key, "stdout", stdout)
	go m.readStream(key, "stderr", stderr)

	waitErr := cmd.Wait()
	exitCode := exitCodeFrom(waitErr)
	normal := normalExitCodes[exitCode]

	if exitCode == 0 {
		m.table.ForceTerminal(key, models.StatusCompleted, exitCode, nil)
	} else {
		m.table.ForceTerminal(key, models.StatusFailed, exitCode, &models.StructuredError{
			Kind: "RUNTIME_CRASH", SupportCode: models.SupportUnknown,
			Message: fmt.Sprintf("scheduled run of %s exited with code %d", cfg.ID, exitCode)})
	}

	if m.diag != nil {
		level := "INFO"
		if !normal {
			level = "WARN"
		}
		_ = m.diag.LogEvent(level, cfg.ID, fmt.Sprintf("%s scheduled run exited with code %d", cfg.ID, exitCode),
			map[string]any{"exitCode": exitCode, "normalTermination": normal})
	}
	if m.OnScheduleComplete != nil {
		m.OnScheduleComplete(cfg.ID, exitCode, isManual)
	}
	return exitCode, nil
}

// StatusInfo is one entry of the GET /api/status map (spec.md §6).
type StatusInfo struct {
	Running    bool
	Port       int
	Name       string
	PID        int
	Status     models.Status
	RecentLogs []models.LogLine
	StartTime  time.Time
	External   bool
}

// Status reports the live state of every configured app, falling back to a
// fast health probe for any app not currently running|starting in the table
// (spec.md §4.3.5) — including one whose table entry is present but terminal.
func (m *LifecycleManager) Status(apps []models.AppConfig) map[string]StatusInfo {
	out := make(map[string]StatusInfo, len(apps))
	for _, app := range apps {
		key := models.CompositeKey(app.ID, false)
		entry, ok := m.table.Get(key)
		if ok && (entry.Status == models.StatusRunning || entry.Status == models.StatusStarting) {
			out[app.ID] = StatusInfo{
				Running:    entry.Status == models.StatusRunning,
				Port:       entry.Port,
				Name:       entry.DisplayName,
				PID:        entry.PID,
				Status:     entry.Status,
				RecentLogs: entry.Logs.Last(10),
				StartTime:  entry.StartTime,
			}
			continue
		}

		if app.Port > 0 && m.health.Probe(app.Port, app.HealthURL(), 500*time.Millisecond) {
			out[app.ID] = StatusInfo{Running: true, External: true, Status: models.StatusExternal, Port: app.Port, Name: app.Name}
			continue
		}

		if ok {
			out[app.ID] = StatusInfo{
				Port:       entry.Port,
				Name:       entry.DisplayName,
				PID:        entry.PID,
				Status:     entry.Status,
				RecentLogs: entry.Logs.Last(10),
				StartTime:  entry.StartTime,
			}
			continue
		}

		out[app.ID] = StatusInfo{Name: app.Name, Port: app.Port}
	}
	return out
}

// Table exposes the underlying ProcessTable for components (status
// aggregation, history lookups) that need read access without a method on
// LifecycleManager for every query shape.
func (m *LifecycleManager) Table() *Table { return m.table }
