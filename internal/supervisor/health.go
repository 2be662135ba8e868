package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"quicklaunch/internal/logger"
)

const (
	defaultPollInterval       = 500 * time.Millisecond
	defaultSingleCheckTimeout = 2 * time.Second
)

// HealthCheckOptions configures one waitForHealthy run (spec.md §4.4).
type HealthCheckOptions struct {
	Port               int
	HealthURL          string
	StartupTimeout     time.Duration
	PollInterval       time.Duration
	SingleCheckTimeout time.Duration
}

// HealthResult is waitForHealthy's outcome.
type HealthResult struct {
	Healthy    bool
	StatusCode int
	Elapsed    time.Duration
	Attempts   int
	Err        error
	TimedOut   bool
}

// HealthProber polls a port's HTTP health endpoint until it answers or the
// deadline elapses. Built over go-resty so every attempt gets its own
// per-request timeout independent of the outer deadline.
type HealthProber struct {
	client *resty.Client
}

// NewHealthProber creates a prober with a shared resty client.
func NewHealthProber() *HealthProber {
	return &HealthProber{client: resty.New()}
}

// WaitForHealthy repeatedly GETs http://localhost:<port><healthUrl> until any
// response (including 4xx) arrives or the total deadline elapses. stop, if
// non-nil, lets a caller cancel the poll early (Stop of a starting process,
// spec.md §9).
func (p *HealthProber) WaitForHealthy(opts HealthCheckOptions, stop <-chan struct{}) HealthResult {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SingleCheckTimeout <= 0 {
		opts.SingleCheckTimeout = defaultSingleCheckTimeout
	}
	healthURL := opts.HealthURL
	if healthURL == "" {
		healthURL = "/"
	}
	url := fmt.Sprintf("http://localhost:%d%s", opts.Port, healthURL)

	start := now()
	attempts := 0
	for {
		select {
		case <-stop:
			return HealthResult{Elapsed: now().Sub(start), Attempts: attempts, Err: fmt.Errorf("health poll cancelled")}
		default:
		}

		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), opts.SingleCheckTimeout)
		resp, err := p.client.R().SetContext(ctx).Get(url)
		cancel()
		elapsed := now().Sub(start)
		if err == nil {
			logger.Debug("health probe succeeded", "url", url, "status", resp.StatusCode(), "attempts", attempts)
			return HealthResult{Healthy: true, StatusCode: resp.StatusCode(), Elapsed: elapsed, Attempts: attempts}
		}

		if elapsed >= opts.StartupTimeout {
			return HealthResult{Elapsed: elapsed, Attempts: attempts, Err: err, TimedOut: true}
		}

		select {
		case <-stop:
			return HealthResult{Elapsed: now().Sub(start), Attempts: attempts, Err: fmt.Errorf("health poll cancelled")}
		case <-time.After(opts.PollInterval):
		}
	}
}

// Probe issues a single fast health check with the given timeout, used by
// external-app detection (spec.md §4.3.5).
func (p *HealthProber) Probe(port int, healthURL string, timeout time.Duration) bool {
	if healthURL == "" {
		healthURL = "/"
	}
	url := fmt.Sprintf("http://localhost:%d%s", port, healthURL)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := p.client.R().SetContext(ctx).Get(url)
	return err == nil
}
