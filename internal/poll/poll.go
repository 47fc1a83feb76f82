// Package poll provides the single suspension primitive of the engine:
// repeated predicate evaluation on a fixed tick with a bounded deadline.
// Every wait elsewhere (element appearance, host idleness, scroll settle)
// is expressed as a predicate over this contract.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when a predicate never becomes truthy within
// its deadline. It carries the last error the predicate produced, if any.
type TimeoutError struct {
	After time.Duration
	Last  error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("Timeout after %s (last: %v)", e.After, e.Last)
	}
	return fmt.Sprintf("Timeout after %s", e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Pred is a polled condition. It returns (value, true, nil) when satisfied.
// A non-nil error means "not yet" — predicate failures are swallowed, not
// propagated, because the host DOM routinely throws while mid-render.
type Pred[T any] func(ctx context.Context) (T, bool, error)

// Wait evaluates pred every interval until it reports done, the elapsed
// time exceeds timeout, or ctx is cancelled. The predicate is always
// evaluated at least once. On timeout the result is a *TimeoutError
// carrying the predicate's last error.
func Wait[T any](ctx context.Context, c Clock, timeout, interval time.Duration, pred Pred[T]) (T, error) {
	var zero T
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	start := c.Now()
	var last error

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, ok, err := pred(ctx)
		if ok {
			return v, nil
		}
		if err != nil {
			last = err
		}

		if c.Now().Sub(start) >= timeout {
			return zero, &TimeoutError{After: timeout, Last: last}
		}
		c.Sleep(interval)
	}
}
