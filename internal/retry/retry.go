package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls how Do reattempts a failing operation.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles each
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth. Zero means no cap.
	MaxDelay time.Duration
	// Jitter adds up to 25% random slack to each delay when set.
	Jitter bool
	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// DefaultPolicy matches the broker reconnect behavior: 3 tries, 1s base,
// capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// The returned error wraps the last attempt's error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt - 1)
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}

// delay computes the backoff for the given zero-based attempt index.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}
