// Command quicklaunchd is the QuickLaunch supervisor daemon: it wires every
// component described in spec.md §2 and serves the RPC surface over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quicklaunch/internal/api"
	"quicklaunch/internal/config"
	"quicklaunch/internal/configstore"
	"quicklaunch/internal/diagnostics"
	"quicklaunch/internal/logger"
	"quicklaunch/internal/portbroker"
	"quicklaunch/internal/scheduler"
	"quicklaunch/internal/supervisor"
)

func main() {
	cfg := config.LoadOrDefault()

	host := flag.String("host", cfg.Host, "address to bind to")
	port := flag.Int("port", cfg.Port, "port to listen on")
	dataDir := flag.String("data-dir", cfg.DataDir, "working directory for the config document and logs")
	verbose := flag.Bool("verbose", cfg.Verbose, "enable debug logging")
	flag.Parse()

	logger.Init(*verbose)
	defer logger.Sync()

	store := configstore.New(*dataDir)
	doc, err := store.Load()
	if err != nil {
		logger.Error("failed to load config document", "error", err)
		os.Exit(1)
	}

	ports := portbroker.New(store, portbroker.NewPlatformIdentifier())
	table := supervisor.NewTable()
	health := supervisor.NewHealthProber()
	diag := diagnostics.New(*dataDir)
	lifecycle := supervisor.NewLifecycleManager(table, ports, diag, health)
	installer := supervisor.NewInstaller()
	sched := scheduler.New(lifecycle, store)

	lifecycle.OnScheduleComplete = func(appID string, exitCode int, isManual bool) {
		logger.Debug("scheduled run completed", "app", appID, "exitCode", exitCode, "manual", isManual)
	}

	for _, app := range doc.Apps {
		if err := sched.Install(app); err != nil {
			logger.Warn("failed to install schedule", "app", app.ID, "error", err)
		}
	}
	sched.RecoverMissedRuns(doc.Apps)

	server := api.New(store, ports, lifecycle, installer, sched, diag)

	addr := fmt.Sprintf("%s:%d", *host, *port)
	httpServer := &http.Server{Addr: addr, Handler: server.Engine()}

	go func() {
		logger.Info("quicklaunch supervisor listening", "addr", addr, "dataDir", *dataDir)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}
