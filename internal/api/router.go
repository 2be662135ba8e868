// Package api exposes the RPC surface (spec.md §4.7/§6) as an HTTP server:
// gin routing and CORS over the supervisor's components. Handlers are
// stateless over their collaborators; config-document mutations are
// serialized by Server's own lock.
package api

import (
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quicklaunch/internal/configstore"
	"quicklaunch/internal/diagnostics"
	"quicklaunch/internal/portbroker"
	"quicklaunch/internal/scheduler"
	"quicklaunch/internal/supervisor"
)

// Server wraps every supervisor component behind the RPC surface and owns
// the one lock that serializes config-document writers (spec.md §5).
type Server struct {
	mu        sync.Mutex
	store     *configstore.Store
	ports     *portbroker.Broker
	lifecycle *supervisor.LifecycleManager
	installer *supervisor.Installer
	sched     *scheduler.Scheduler
	diag      *diagnostics.Engine
	engine    *gin.Engine
}

// New wires a Server over the given collaborators and registers every route.
func New(store *configstore.Store, ports *portbroker.Broker, lifecycle *supervisor.LifecycleManager, installer *supervisor.Installer, sched *scheduler.Scheduler, diag *diagnostics.Engine) *Server {
	s := &Server{
		store:     store,
		ports:     ports,
		lifecycle: lifecycle,
		installer: installer,
		sched:     sched,
		diag:      diag,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.routes()
	return s
}

// Engine exposes the underlying gin.Engine for the daemon's http.Server.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/status", s.handleStatus)
	api.GET("/history/:id", s.handleHistory)

	api.GET("/apps", s.handleListApps)
	api.POST("/apps", s.handleAddApp)
	api.PUT("/apps/:id", s.handleUpdateApp)
	api.DELETE("/apps/:id", s.handleDeleteApp)
	api.POST("/apps/migrate", s.handleMigrateApps)
	api.GET("/apps/:id/logs", s.handleLogStream)

	api.GET("/ports/check/:port", s.handlePortCheck)
	api.GET("/ports/suggest", s.handlePortSuggest)
	api.POST("/ports/reserve", s.handleReservePort)
	api.DELETE("/ports/reserve/:port", s.handleUnreservePort)

	api.POST("/check-deps", s.handleCheckDeps)
	api.POST("/install", s.handleInstall)
	api.GET("/install/:id", s.handleInstallStatus)

	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)

	api.GET("/schedule/:id", s.handleGetSchedule)
	api.PUT("/schedule/:id", s.handleUpdateSchedule)
	api.POST("/schedule/:id/enable", s.handleEnableSchedule)
	api.POST("/schedule/:id/run", s.handleRunSchedule)
	api.GET("/schedule/:id/status", s.handleScheduleStatus)
	api.GET("/schedules", s.handleListSchedules)

	api.GET("/todos", s.handleTodos)
	api.POST("/triage", s.handleTriage)
	api.GET("/resolutions", s.handleListResolutions)
	api.POST("/resolutions", s.handleAddResolution)

	api.GET("/icon", s.handleIcon)
}
