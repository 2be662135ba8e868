package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quicklaunch/internal/models"
	"quicklaunch/internal/scheduler"
)

// scheduleInfo is the GET /api/schedule/:id and list-entry wire shape.
func (s *Server) scheduleInfo(appID, schedule string, enabled, runIfMissed bool) gin.H {
	state, ok := s.sched.State(appID)
	return scheduleInfoFromState(s, appID, schedule, enabled, runIfMissed, state, ok)
}

// scheduleInfoFromState builds the same wire shape as scheduleInfo but from a
// ScheduleState already looked up by the caller, so listing every app's
// schedule only loads the ScheduleState document once (see AllState).
func scheduleInfoFromState(s *Server, appID, schedule string, enabled, runIfMissed bool, state models.ScheduleState, hasState bool) gin.H {
	info := gin.H{
		"id":              appID,
		"schedule":        schedule,
		"scheduleEnabled": enabled,
		"runIfMissed":     runIfMissed,
		"installed":       s.sched.IsInstalled(appID),
	}
	if schedule != "" {
		info["description"] = scheduler.Describe(schedule)
	}
	if hasState {
		info["lastRun"] = state.LastRun
		info["lastExitCode"] = state.LastExitCode
		info["wasManual"] = state.WasManual
	}
	return info
}

// handleGetSchedule implements GET /api/schedule/:id.
func (s *Server) handleGetSchedule(c *gin.Context) {
	id := c.Param("id")
	doc := s.store.Snapshot()
	app := doc.FindApp(id)
	if app == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}
	c.JSON(http.StatusOK, s.scheduleInfo(app.ID, app.Schedule, app.ScheduleEnabled, app.RunIfMissed))
}

// handleUpdateSchedule implements PUT /api/schedule/:id: updates an app's
// schedule fields and reinstalls its cron entry.
func (s *Server) handleUpdateSchedule(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Schedule        *string  `json:"schedule"`
		ScheduleEnabled *bool    `json:"scheduleEnabled"`
		RunIfMissed     *bool    `json:"runIfMissed"`
		ScheduleCommand []string `json:"scheduleCommand"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	app := doc.FindApp(id)
	if app == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}

	if body.Schedule != nil {
		app.Schedule = *body.Schedule
	}
	if body.ScheduleEnabled != nil {
		app.ScheduleEnabled = *body.ScheduleEnabled
	}
	if body.RunIfMissed != nil {
		app.RunIfMissed = *body.RunIfMissed
	}
	if body.ScheduleCommand != nil {
		app.ScheduleCommand = body.ScheduleCommand
	}

	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.sched.Install(*app); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.scheduleInfo(app.ID, app.Schedule, app.ScheduleEnabled, app.RunIfMissed))
}

// handleEnableSchedule implements POST /api/schedule/:id/enable: {enabled}.
func (s *Server) handleEnableSchedule(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	app := doc.FindApp(id)
	if app == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}

	app.ScheduleEnabled = body.Enabled
	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.sched.Install(*app); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.scheduleInfo(app.ID, app.Schedule, app.ScheduleEnabled, app.RunIfMissed))
}

// handleRunSchedule implements POST /api/schedule/:id/run: a manual run,
// subject to the Scheduler's manual-run preconditions (spec.md §4.5).
func (s *Server) handleRunSchedule(c *gin.Context) {
	id := c.Param("id")
	doc := s.store.Snapshot()
	app := doc.FindApp(id)
	if app == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}

	code, se := s.sched.RunManual(*app)
	if se != nil {
		errorJSON(c, http.StatusBadRequest, se.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exitCode": code})
}

// handleScheduleStatus implements GET /api/schedule/:id/status.
func (s *Server) handleScheduleStatus(c *gin.Context) {
	id := c.Param("id")
	doc := s.store.Snapshot()
	app := doc.FindApp(id)
	if app == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}
	c.JSON(http.StatusOK, s.scheduleInfo(app.ID, app.Schedule, app.ScheduleEnabled, app.RunIfMissed))
}

// handleListSchedules implements GET /api/schedules: every configured app
// that declares a schedule.
func (s *Server) handleListSchedules(c *gin.Context) {
	doc := s.store.Snapshot()
	states := s.sched.AllState()
	out := make([]gin.H, 0, len(doc.Apps))
	for _, app := range doc.Apps {
		if app.Schedule == "" {
			continue
		}
		state, ok := states[app.ID]
		out = append(out, scheduleInfoFromState(s, app.ID, app.Schedule, app.ScheduleEnabled, app.RunIfMissed, state, ok))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": out})
}
