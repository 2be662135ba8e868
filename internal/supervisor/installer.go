package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"quicklaunch/internal/logger"
	"quicklaunch/internal/models"
)

// InstallStatus is the lifecycle state of one dependency install run.
type InstallStatus string

const (
	InstallRunning   InstallStatus = "running"
	InstallSucceeded InstallStatus = "succeeded"
	InstallFailed    InstallStatus = "failed"
)

const maxInstallLogLines = 20

// InstallRecord is the polled state of one POST /api/install run
// (spec.md §6: `GET /api/install/:id` → `{status, logs[≤20], exitCode?, duration?}`).
type InstallRecord struct {
	ID             string
	AppID          string
	PackageManager string
	Status         InstallStatus
	Logs           *models.LogRing
	ExitCode       *int
	Started        time.Time
	Finished       time.Time
}

// Duration returns the elapsed install time, up to Finished if set.
func (r *InstallRecord) Duration() time.Duration {
	end := r.Finished
	if end.IsZero() {
		end = now()
	}
	return end.Sub(r.Started)
}

// Installer runs package-manager installs in the background and tracks
// their outcome for polling, the same piped-exec.Cmd shape LifecycleManager
// uses for apps themselves, pared down to fire-and-forget (spec.md §6
// "returns immediately with {status:started, packageManager}").
type Installer struct {
	mu      sync.Mutex
	records map[string]*InstallRecord
}

// NewInstaller creates an empty Installer.
func NewInstaller() *Installer {
	return &Installer{records: make(map[string]*InstallRecord)}
}

// Start spawns "<packageManager> install" in path and returns its ID and
// detected package manager immediately; the run continues in background.
func (in *Installer) Start(appID, path string) (*InstallRecord, error) {
	pm := detectPackageManager(path)
	record := &InstallRecord{
		ID:             uuid.NewString(),
		AppID:          appID,
		PackageManager: pm,
		Status:         InstallRunning,
		Logs:           models.NewLogRing(maxInstallLogLines),
		Started:        now(),
	}

	cmd := exec.Command(pm, "install")
	cmd.Dir = path
	hideWindow(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s install: %w", pm, err)
	}

	in.mu.Lock()
	in.records[record.ID] = record
	in.mu.Unlock()

	go in.tailInstall(record, stdout, "stdout")
	go in.tailInstall(record, stderr, "stderr")
	go in.awaitInstall(record, cmd)

	logger.Info("dependency install started", "app", appID, "id", record.ID, "packageManager", pm)
	return record, nil
}

func (in *Installer) tailInstall(record *InstallRecord, pipe io.Reader, stream string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		record.Logs.Append(models.LogLine{Timestamp: now(), Stream: stream, Text: scanner.Text()})
	}
}

func (in *Installer) awaitInstall(record *InstallRecord, cmd *exec.Cmd) {
	err := cmd.Wait()
	code := exitCodeFrom(err)
	in.mu.Lock()
	defer in.mu.Unlock()
	record.ExitCode = &code
	record.Finished = now()
	if code == 0 {
		record.Status = InstallSucceeded
	} else {
		record.Status = InstallFailed
	}
}

// installExpiry is how long a finished install record stays pollable before
// self-expiring (spec.md §5: "Install jobs are not cancellable; they
// self-expire 30s after exit").
const installExpiry = 30 * time.Second

// Get returns the install record for id, if any. A finished record older
// than installExpiry is pruned and reported as absent.
func (in *Installer) Get(id string) (*InstallRecord, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	r, ok := in.records[id]
	if !ok {
		return nil, false
	}
	if !r.Finished.IsZero() && now().Sub(r.Finished) > installExpiry {
		delete(in.records, id)
		return nil, false
	}
	return r, true
}
