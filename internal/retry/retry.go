// Package retry implements a bounded fixed-delay retry policy. Only errors
// that declare themselves transient are retried; everything else stops the
// loop immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

// transient is implemented by errors that are safe to retry
type transient interface {
	Transient() bool
}

// IsTransient reports whether err (or anything it wraps) is retryable
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}

// Policy is a bounded retry policy with a fixed delay between attempts
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op up to MaxAttempts times. It stops early on success, on a
// non-transient error, or when ctx is done. The last error is returned when
// the budget is exhausted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
