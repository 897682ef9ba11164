// Package retry implements exponential backoff with jitter for the
// object-storage stage uploader. The Loader does not retry: a failed
// load statement rolls back its transaction and the error propagates.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/shredsink/shredsink/internal/dberror"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Clock is the source of backoff delays. Defaults to the real clock;
	// a clockwork.NewFakeClock() can be substituted to advance backoffs
	// without sleeping.
	Clock clockwork.Clock
}

// DefaultConfig returns the retry configuration used by the stage
// uploader: one retry on transient errors, per spec.md §4.7.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 2,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Clock:       clockwork.NewRealClock(),
	}
}

// Do executes fn with exponential backoff retry, stopping as soon as an
// attempt succeeds or returns a non-transient error. Returns the last
// error if every attempt fails.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := calculateBackoff(cfg.BaseBackoff, cfg.MaxBackoff, attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !dberror.IsTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// calculateBackoff computes exponential backoff with jitter, capped at max.
func calculateBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > max {
		backoff = max
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}
