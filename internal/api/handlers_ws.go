package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
)

// upgrader mirrors the teacher's localhost-only websocket upgrader: no
// origin checking since this surface is meant for local dashboards only.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLogStream implements GET /api/apps/:id/logs: a WebSocket that
// tails a managed process's log ring, supplementing spec.md §6's polling
// endpoints with the teacher's own push-based log streaming (its
// LogStreamer/HandleLogStream pattern), adapted from tailing an OS log
// command to polling ProcessEntry.Logs.
func (s *Server) handleLogStream(c *gin.Context) {
	appID := c.Param("id")
	key := models.CompositeKey(appID, false)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "app", appID, "error", err)
		return
	}
	defer conn.Close()

	logger.Info("websocket log stream connected", "app", appID)

	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	entry, ok := s.lifecycle.Table().Get(key)
	if !ok {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("app "+appID+" is not running"))
		return
	}

	sent := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			lines := entry.Logs.All()
			if len(lines) <= sent {
				continue
			}
			for _, line := range lines[sent:] {
				payload, _ := json.Marshal(line)
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
			sent = len(lines)
		}
	}
}
