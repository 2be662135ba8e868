package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quicklaunch/internal/models"
	"quicklaunch/internal/supervisor"
)

// startBody is the POST /api/start wire shape (spec.md §6).
type startBody struct {
	ID                 string   `json:"id" binding:"required"`
	Name               string   `json:"name"`
	Port               int      `json:"port"`
	Path               string   `json:"path" binding:"required"`
	Command            []string `json:"command" binding:"required"`
	Retry              bool     `json:"retry"`
	OverridePort       int      `json:"overridePort"`
	HealthCheckURL     string   `json:"healthCheckUrl"`
	StartupTimeout     int      `json:"startupTimeout"`
	AutoRestart        bool     `json:"autoRestart"`
	MaxRestartAttempts int      `json:"maxRestartAttempts"`
}

// handleStart implements POST /api/start: the full preflight/spawn/health-poll
// sequence (spec.md §4.3.1, §6). Failures return the structured error
// envelope verbatim; retry/overridePort let the caller recover locally.
func (s *Server) handleStart(c *gin.Context) {
	var body startBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	req := supervisor.StartRequest{
		ID:                 body.ID,
		Name:               body.Name,
		Port:               body.Port,
		Path:               body.Path,
		Command:            body.Command,
		Retry:              body.Retry,
		OverridePort:       body.OverridePort,
		HealthCheckURL:     body.HealthCheckURL,
		StartupTimeout:     body.StartupTimeout,
		AutoRestart:        body.AutoRestart,
		MaxRestartAttempts: body.MaxRestartAttempts,
	}
	if req.Name == "" {
		req.Name = req.ID
	}

	result, se := s.lifecycle.Start(req)
	if se != nil {
		c.JSON(structuredErrorStatus(se), gin.H{
			"error":             se.Message,
			"kind":              se.Kind,
			"supportCode":       se.SupportCode,
			"suggestion":        se.Suggestion,
			"troubleshooting":   se.Troubleshooting,
			"canRetry":          se.CanRetry,
			"canUseAlternative": se.CanUseAlt,
			"alternativePort":   se.AlternativePort,
			"needsInstall":      se.NeedsInstall,
			"packageManager":    se.PackageManager,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  result.Success,
		"status":   result.Status,
		"port":     result.Port,
		"pid":      result.PID,
		"elapsed":  result.Elapsed.Milliseconds(),
		"warning":  result.Warning,
		"analysis": result.Analysis,
	})
}

// structuredErrorStatus maps a StructuredError to an HTTP status: port/path/
// manifest/dependency preflight failures are client errors (400), an
// EXCEPTION (an app already active, or a spawn failure) is a conflict (409),
// and anything else (e.g. a startup crash) is a server error (500).
func structuredErrorStatus(se *models.StructuredError) int {
	switch se.Kind {
	case "PORT_IN_USE", "PATH_NOT_FOUND", "MISSING_MANIFEST", "MISSING_DEPENDENCIES", "FILE_NOT_FOUND":
		return http.StatusBadRequest
	case "EXCEPTION":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleStop implements POST /api/stop: {id}.
func (s *Server) handleStop(c *gin.Context) {
	var body struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	if se := s.lifecycle.Stop(body.ID); se != nil {
		errorJSON(c, http.StatusBadRequest, se.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
