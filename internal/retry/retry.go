// Package retry provides a bounded retry helper for best-effort external calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// DelayFunc returns the sleep duration before the given attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// Linear grows the delay by step on every attempt: step, 2*step, 3*step, ...
func Linear(step time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Fixed sleeps the same duration between every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Result reports the outcome of a retry loop.
type Result struct {
	Attempts int
	Err      error
}

// OK reports whether the final attempt succeeded.
func (r Result) OK() bool { return r.Err == nil }

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times, sleeping delay(attempt) between
// attempts. It stops early when fn succeeds, fn returns a *PermanentError,
// or ctx is cancelled. The returned Result carries the number of attempts
// actually made and the last error.
func Do(ctx context.Context, maxAttempts int, delay DelayFunc, fn func(ctx context.Context) error) Result {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return Result{Attempts: attempt}
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return Result{Attempts: attempt, Err: pe.Err}
		}

		if attempt == maxAttempts {
			return Result{Attempts: attempt, Err: err}
		}

		select {
		case <-ctx.Done():
			return Result{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay(attempt)):
		}
	}

	return Result{Attempts: maxAttempts, Err: err}
}
