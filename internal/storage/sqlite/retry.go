package sqlite

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls backoff when SQLite reports lock contention.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // e.g. 0.25 for 25% jitter
}

// DefaultRetryConfig: 5 retries, 20ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  20 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// retryOnBusy reruns fn while it fails with a lock/busy error. A cancelled
// context stops the backoff and returns the last error.
func retryOnBusy(ctx context.Context, cfg RetryConfig, fn func() error) error {
	return retryWithSleep(ctx, cfg, fn, func(ctx context.Context, d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	})
}

func retryWithSleep(ctx context.Context, cfg RetryConfig, fn func() error, sleep func(context.Context, time.Duration) bool) error {
	err := fn()
	for attempt := 1; err != nil && isBusy(err) && attempt <= cfg.MaxRetries; attempt++ {
		delay := cfg.BaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * cfg.JitterPct)
		if !sleep(ctx, delay+jitter) {
			return err
		}
		err = fn()
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
