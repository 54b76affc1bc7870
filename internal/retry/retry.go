// Package retry runs an operation with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy controls retry behavior. MaxRetries counts attempts after the first,
// so zero means "try once".
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// OnRetry is called before each retry; attempt is 1-based.
type OnRetry func(attempt int, err error, wait time.Duration)

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// policy is exhausted. The last error is wrapped on exhaustion.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, onRetry OnRetry, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if p.Jitter {
				wait += time.Duration(rand.Int64N(int64(backoff)/2 + 1))
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry: cancelled after %d attempts: %w", attempt, lastErr)
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * p.Multiplier)
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("retry: gave up after %d retries: %w", p.MaxRetries, lastErr)
}
