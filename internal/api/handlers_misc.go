package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"quicklaunch/internal/supervisor"
)

// handleCheckDeps implements POST /api/check-deps: {needsInstall,
// hasPackageJson, packageManager} (spec.md §6).
func (s *Server) handleCheckDeps(c *gin.Context) {
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	needsInstall, hasPackageJSON, pm := supervisor.CheckDeps(body.Path)
	c.JSON(http.StatusOK, gin.H{
		"needsInstall":   needsInstall,
		"hasPackageJson": hasPackageJSON,
		"packageManager": pm,
	})
}

// handleInstall implements POST /api/install: starts a background install
// and returns immediately (spec.md §6).
func (s *Server) handleInstall(c *gin.Context) {
	var body struct {
		AppID string `json:"appId" binding:"required"`
		Path  string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.installer.Start(body.AppID, body.Path)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": record.ID, "status": "started", "packageManager": record.PackageManager})
}

// handleInstallStatus implements GET /api/install/:id: {status, logs[≤20],
// exitCode?, duration?}.
func (s *Server) handleInstallStatus(c *gin.Context) {
	record, ok := s.installer.Get(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "install "+c.Param("id")+" not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   record.Status,
		"logs":     record.Logs.Last(20),
		"exitCode": record.ExitCode,
		"duration": record.Duration().Milliseconds(),
	})
}

// iconExtensions are the file extensions handleIcon is willing to serve
// (spec.md §6).
var iconExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".ico": true, ".webp": true,
}

// handleIcon implements GET /api/icon?path=: serves a local file whose
// extension is in the allowed icon set.
func (s *Server) handleIcon(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		errorJSON(c, http.StatusBadRequest, "path is required")
		return
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !iconExtensions[ext] {
		errorJSON(c, http.StatusBadRequest, "unsupported icon extension: "+ext)
		return
	}
	c.File(path)
}
