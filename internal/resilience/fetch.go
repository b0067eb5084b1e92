package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRetries is the attempt ceiling used when FetchOptions leaves it unset.
const DefaultMaxRetries = 3

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetchOptions configures FetchWithRetry.
type FetchOptions struct {
	// Operation names the call in logs and errors.
	Operation string
	// MaxRetries is the total number of attempts. Default: 3.
	MaxRetries int
	// BaseDelay is the backoff before the second attempt; each further
	// attempt doubles it.
	BaseDelay time.Duration
	// Sleep replaces the real timer, mainly for tests.
	Sleep SleepFunc
}

// BackoffDelay returns base * 2^attempt.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << uint(attempt)
}

// FetchWithRetry runs op until it succeeds, fails terminally, or all
// attempts are used. Any error other than a RemoteJobError is retried.
// Exhaustion returns a *FetchExhaustedError carrying the last error.
func FetchWithRetry[T any](ctx context.Context, opts FetchOptions, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	log := zap.L().With(zap.String("operation", opts.Operation))

	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		log.Info("fetch attempt",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", opts.MaxRetries),
		)

		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err
		log.Error("fetch attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if IsTerminal(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, lastErr
		}
		if attempt == opts.MaxRetries-1 {
			break
		}

		if err := opts.Sleep(ctx, BackoffDelay(opts.BaseDelay, attempt)); err != nil {
			return zero, lastErr
		}
	}

	return zero, &FetchExhaustedError{
		Operation: opts.Operation,
		Attempts:  opts.MaxRetries,
		LastErr:   lastErr,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
