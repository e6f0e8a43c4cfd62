package repository

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"libradoc/internal/docstore"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 5 * time.Millisecond
	defaultJitterFactor = 0.3
)

// retryOnConflict runs fn until it succeeds, fails with something other than
// a concurrency conflict, or maxAttempts is reached.
//
// Schedule with the defaults: 0, 5, 10, 20, 40, 80 ms plus up to 30% jitter.
func retryOnConflict(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * defaultJitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, docstore.ErrConcurrencyConflict) {
			return lastErr
		}
	}

	return lastErr
}
