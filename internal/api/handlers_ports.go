package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handlePortCheck implements GET /api/ports/check/:port?exclude=.
func (s *Server) handlePortCheck(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid port")
		return
	}
	c.JSON(http.StatusOK, s.ports.Check(port, c.Query("exclude")))
}

// handlePortSuggest implements GET /api/ports/suggest?base=.
func (s *Server) handlePortSuggest(c *gin.Context) {
	base := 5174
	if v := c.Query("base"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			base = parsed
		}
	}
	port, err := s.ports.Suggest(base)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestedPort": port})
}

// handleReservePort implements POST /api/ports/reserve.
func (s *Server) handleReservePort(c *gin.Context) {
	var body struct {
		Port        int    `json:"port" binding:"required"`
		Description string `json:"description"`
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
	if _, reserved := doc.ReservedPorts[body.Port]; reserved {
		errorJSON(c, http.StatusBadRequest, "port already reserved")
		return
	}
	if appID, used := doc.PortOwner(body.Port, ""); used {
		errorJSON(c, http.StatusBadRequest, "port is assigned to app "+appID)
		return
	}

	doc.ReservedPorts[body.Port] = body.Description
	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, doc.ReservedPorts)
}

// handleUnreservePort implements DELETE /api/ports/reserve/:port — 8000 may
// never be removed (spec.md §6, models.SupervisorReservedPort).
func (s *Server) handleUnreservePort(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid port")
		return
	}
	if port == 8000 {
		errorJSON(c, http.StatusBadRequest, "the supervisor's own port reservation cannot be removed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	delete(doc.ReservedPorts, port)
	if err := s.store.Save(doc); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
