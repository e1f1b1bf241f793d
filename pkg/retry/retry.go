// Package retry runs an operation under a bounded, classified retry policy.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 2 * time.Second
)

// Operation is one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Policy decides how many attempts run, which errors earn another one and how
// long to wait after each retryable failure.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	// Retryable classifies an attempt error. Nil means nothing is retried.
	Retryable func(error) bool
	// Schedule builds a fresh backoff per call; defaults to exponential from BaseBackoff.
	Schedule func() goretry.Backoff
	// Sleep waits between attempts; tests swap it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry observes every retryable failure before the wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Exponential returns the doubling schedule base, 2*base, 4*base... capped at maxAttempts entries.
func Exponential(base time.Duration, maxAttempts int) goretry.Backoff {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return goretry.WithMaxRetries(uint64(maxAttempts), goretry.NewExponential(base))
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.Retryable == nil {
		p.Retryable = func(error) bool { return false }
	}
	if p.Schedule == nil {
		base, attempts := p.BaseBackoff, p.MaxAttempts
		p.Schedule = func() goretry.Backoff { return Exponential(base, attempts) }
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. Every retryable failure is followed by its scheduled
// wait, including the last one, so a surfaced rate-limit error has already
// cooled down. On exhaustion the last observed error is returned. The int
// result is the number of attempts made.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, int, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	p = p.withDefaults()
	schedule := p.Schedule()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, errors.Join(lastErr, err)
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if !p.Retryable(err) {
			return zero, attempt, err
		}

		delay, stop := schedule.Next()
		if stop {
			return zero, attempt, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return zero, attempt, errors.Join(err, sleepErr)
		}
	}
	return zero, p.MaxAttempts, lastErr
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
