package errors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"reasoner/internal/logging"
)

// RetryPolicy bounds exponential backoff. Retries counts attempts after the
// first call.
type RetryPolicy struct {
	Retries int
	Initial time.Duration
	Max     time.Duration
	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64
}

// DefaultRetryPolicy is three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Initial: time.Second, Max: 30 * time.Second, Jitter: 0.25}
}

// Delay returns the wait before retry number attempt, counting from zero.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Max
	if attempt < 62 {
		if s := p.Initial << attempt; s > 0 && s>>attempt == p.Initial && (p.Max <= 0 || s < p.Max) {
			d = s
		}
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Do calls fn until it succeeds, returns a non-transient error, the policy runs
// out of retries, or ctx ends.
func Do[T any](ctx context.Context, p RetryPolicy, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)
	var zero T
	var last error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry aborted: %w", err)
		}
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("succeeded on attempt %d", attempt+1)
			}
			return result, nil
		}
		last = err
		if !IsTransient(err) {
			return zero, err
		}
		if attempt >= p.Retries {
			break
		}

		wait := p.Delay(attempt)
		logger.Debug("attempt %d failed (%v), retrying in %s", attempt+1, err, wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
	logger.Warn("giving up after %d attempts: %v", p.Retries+1, last)
	return zero, fmt.Errorf("%d attempts failed: %w", p.Retries+1, last)
}
