// Package retry runs an operation again with exponential backoff. It backs
// webhook delivery; workflow calls are never retried outside the repair loop.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts before giving up.
	DefaultMaxAttempts = 3

	// baseDelay is the initial backoff delay.
	baseDelay = 1 * time.Second

	// maxDelay caps the backoff delay.
	maxDelay = 10 * time.Second

	// jitterFraction is the maximum fraction of the delay added as jitter.
	jitterFraction = 0.25
)

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do retries fn up to maxAttempts times with exponential backoff and jitter.
// It respects context cancellation and returns the last error if all attempts
// fail. A Permanent error stops the loop immediately and is returned
// unwrapped. The backoff progression is: 1s, 2s, 4s (with up to 25% jitter).
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	return do(ctx, maxAttempts, backoff, fn)
}

func do(ctx context.Context, maxAttempts int, delayFor func(int) time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var p *permanentError
		if errors.As(lastErr, &p) {
			return p.err
		}

		// Don't sleep after the last attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delayFor(attempt)):
			}
		}
	}

	return lastErr
}

// backoff calculates the delay for the given attempt (0-indexed) with jitter.
// Progression: 1s, 2s, 4s, ... capped at maxDelay.
func backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	return delay + jitter
}
