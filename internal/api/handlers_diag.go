package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quicklaunch/internal/models"
)

// handleTodos implements GET /api/todos (spec.md §4.6.4, §6).
func (s *Server) handleTodos(c *gin.Context) {
	items, err := s.diag.Items()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items, "itemsWithPriority": items})
}

// handleTriage implements POST /api/triage: {items:[{text, priority, action}]}.
func (s *Server) handleTriage(c *gin.Context) {
	var body struct {
		App   string              `json:"app"`
		Items []models.TriageItem `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.diag.Triage(body.App, body.Items)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"parking": result.Parking, "implement": result.Implement, "dontdo": result.Dontdo})
}

// handleListResolutions implements GET /api/resolutions.
func (s *Server) handleListResolutions(c *gin.Context) {
	resolutions, err := s.diag.Resolutions()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolutions": resolutions})
}

// handleAddResolution implements POST /api/resolutions: records a Resolution
// and deletes the matching TODO item (spec.md §4.6.5).
func (s *Server) handleAddResolution(c *gin.Context) {
	var body struct {
		App         string `json:"app" binding:"required"`
		Issue       string `json:"issue" binding:"required"`
		ErrorType   string `json:"errorType"`
		Disposition string `json:"disposition" binding:"required"`
		Explanation string `json:"explanation"`
		Notes       string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	resolution, todoDeleted, err := s.diag.AddResolution(body.App, body.Issue, body.ErrorType, body.Disposition, body.Explanation, body.Notes)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolution": resolution, "todoDeleted": todoDeleted})
}
