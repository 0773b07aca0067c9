// Package retry provides the shared retry policy used by components that call
// flaky external services. It centralizes attempt bounds, exponential backoff
// with a cap, and the retriable-error predicate so callers do not grow ad hoc
// retry loops.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Policy describes how an operation is retried. The zero value retries
// transient failures with the package defaults.
type Policy struct {
	// MaxAttempts bounds total attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// Retriable reports whether an error is worth another attempt. A nil
	// predicate retries everything except context cancellation.
	Retriable func(error) bool
	// Sleeper overrides how delays are waited out (tests inject a recorder).
	Sleeper func(time.Duration)
}

// Do runs op until it succeeds, the policy is exhausted, a non-retriable error
// occurs, or ctx is done. The returned error is the last attempt's error,
// annotated with the attempt count when retries were exhausted.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := p.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= attempts {
			break
		}
		if !p.shouldRetry(ctx, err) {
			return err
		}
		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	if attempts > 1 {
		return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retriable == nil {
		return true
	}
	return p.Retriable(err)
}

// delay computes the backoff before the attempt following the given 1-based
// attempt: attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
