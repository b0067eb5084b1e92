package apify

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

// DefaultPollInterval is the wait between run status checks.
const DefaultPollInterval = 5 * time.Second

// PollOption configures PollRun.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	sleep    resilience.SleepFunc
}

// WithPollInterval overrides the status check interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithSleep replaces the timer used between checks.
func WithSleep(fn resilience.SleepFunc) PollOption {
	return func(c *pollConfig) {
		c.sleep = fn
	}
}

// PollRun waits for runID to finish. It returns the run on SUCCEEDED and a
// *resilience.RemoteJobError when the run failed, was aborted or timed out.
// Transport errors are returned as-is so the caller can retry.
func PollRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := pollConfig{interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sleep == nil {
		cfg.sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}

	for {
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}

		switch {
		case run.Status == StatusSucceeded:
			return run, nil
		case IsFailedStatus(run.Status):
			return nil, &resilience.RemoteJobError{JobID: runID, Status: run.Status}
		}

		zap.L().Debug("apify: run still in progress",
			zap.String("run_id", runID),
			zap.String("status", run.Status),
		)

		if err := cfg.sleep(ctx, cfg.interval); err != nil {
			return nil, eris.Wrapf(err, "apify: poll run %s", runID)
		}
	}
}

// IsFailedStatus reports whether status is a terminal failure.
func IsFailedStatus(status string) bool {
	switch strings.ToUpper(status) {
	case StatusFailed, StatusAborted, StatusTimedOut, "TIMED_OUT":
		return true
	}
	return false
}
