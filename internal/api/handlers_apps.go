package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quicklaunch/internal/models"
)

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// handleStatus implements GET /api/status (spec.md §6).
func (s *Server) handleStatus(c *gin.Context) {
	doc := s.store.Snapshot()
	statuses := s.lifecycle.Status(doc.Apps)

	out := make(gin.H, len(statuses))
	for id, info := range statuses {
		out[id] = gin.H{
			"running":    info.Running,
			"port":       info.Port,
			"name":       info.Name,
			"pid":        info.PID,
			"status":     info.Status,
			"recentLogs": info.RecentLogs,
			"startTime":  info.StartTime,
			"external":   info.External,
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleHistory implements GET /api/history/:id.
func (s *Server) handleHistory(c *gin.Context) {
	id := c.Param("id")
	attempts := s.lifecycle.Table().History(id)
	lastErr := s.lifecycle.Table().LastError(id)
	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "lastError": lastErr})
}

// handleListApps implements GET /api/apps.
func (s *Server) handleListApps(c *gin.Context) {
	doc := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{"apps": doc.Apps, "reservedPorts": doc.ReservedPorts})
}

// handleAddApp implements POST /api/apps.
func (s *Server) handleAddApp(c *gin.Context) {
	var app models.AppConfig
	if err := c.ShouldBindJSON(&app); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	app.ApplyDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if doc.FindApp(app.ID) != nil {
		errorJSON(c, http.StatusBadRequest, "app "+app.ID+" already exists")
		return
	}

	if app.Port > 0 {
		check := s.ports.Check(app.Port, app.ID)
		if !check.Available {
			c.JSON(http.StatusBadRequest, gin.H{"error": "port conflict", "suggestedPort": check.SuggestedPort})
			return
		}
	}

	doc.Apps = append(doc.Apps, app)
	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	_ = s.sched.Install(app)
	c.JSON(http.StatusOK, app)
}

// handleUpdateApp implements PUT /api/apps/:id — id is immutable; a port
// change is re-validated exactly like an add.
func (s *Server) handleUpdateApp(c *gin.Context) {
	id := c.Param("id")

	var patch models.AppConfig
	if err := c.ShouldBindJSON(&patch); err != nil {
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
	existing := doc.FindApp(id)
	if existing == nil {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}

	if patch.Port > 0 && patch.Port != existing.Port {
		check := s.ports.Check(patch.Port, id)
		if !check.Available {
			c.JSON(http.StatusBadRequest, gin.H{"error": "port conflict", "suggestedPort": check.SuggestedPort})
			return
		}
	}

	patch.ID = id
	patch.ApplyDefaults()
	*existing = patch

	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	_ = s.sched.Install(*existing)
	c.JSON(http.StatusOK, existing)
}

// handleDeleteApp implements DELETE /api/apps/:id.
func (s *Server) handleDeleteApp(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	idx := -1
	for i := range doc.Apps {
		if doc.Apps[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		errorJSON(c, http.StatusNotFound, "app "+id+" not found")
		return
	}

	doc.Apps = append(doc.Apps[:idx], doc.Apps[idx+1:]...)
	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.sched.Remove(id)
	c.Status(http.StatusNoContent)
}

// migrateResult is one outcome entry of POST /api/apps/migrate.
type migrateResult struct {
	ID     string `json:"id"`
	Status string `json:"status"` // imported | skipped
	Reason string `json:"reason,omitempty"`
}

// handleMigrateApps implements POST /api/apps/migrate: bulk import, each
// item independently accepted or skipped (spec.md §6).
func (s *Server) handleMigrateApps(c *gin.Context) {
	var body struct {
		Apps []models.AppConfig `json:"apps"`
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

	results := make([]migrateResult, 0, len(body.Apps))
	for _, app := range body.Apps {
		if doc.FindApp(app.ID) != nil {
			results = append(results, migrateResult{ID: app.ID, Status: "skipped", Reason: "already exists"})
			continue
		}
		if app.Port > 0 {
			check := s.ports.Check(app.Port, app.ID)
			if !check.Available {
				results = append(results, migrateResult{ID: app.ID, Status: "skipped", Reason: "port conflict"})
				continue
			}
		}
		app.ApplyDefaults()
		doc.Apps = append(doc.Apps, app)
		results = append(results, migrateResult{ID: app.ID, Status: "imported"})
	}

	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	for _, app := range doc.Apps {
		_ = s.sched.Install(app)
	}
	c.JSON(http.StatusOK, results)
}
