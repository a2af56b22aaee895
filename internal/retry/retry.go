// File: internal/retry/retry.go

// Package retry implements the polling primitives the page objects are built
// on. Conditions are re-evaluated on a fixed interval until they hold, the
// budget runs out, or the caller's context ends. Transient errors from a
// condition are swallowed and retried; only errors wrapped with Permanent
// stop the loop early.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default polling parameters, used when an Options field is zero.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Condition reports whether the observed state is acceptable yet. A nil
// return stops the poll. Any other return is treated as "not yet" and the
// condition is re-evaluated after the poll interval, unless the error is
// wrapped with Permanent.
type Condition func(ctx context.Context) error

// Options bound a single poll.
type Options struct {
	// Timeout is the total budget for the poll, including waits.
	Timeout time.Duration
	// Interval is the pause between consecutive condition evaluations.
	Interval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Permanent marks err as terminal: Poll returns it immediately instead of
// retrying until the deadline.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Poll evaluates cond every opts.Interval until it returns nil or the budget
// opts.Timeout is spent. The name appears in error messages and should
// describe the awaited state ("cart badge shows 3", "checkout tab open").
//
// On timeout the returned error includes the attempt count and the last
// condition error, which is expected to describe the last observed state.
func Poll(ctx context.Context, name string, cond Condition, opts Options) error {
	opts = opts.withDefaults()
	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		attempts int
		lastErr  error
	)
	operation := func() error {
		attempts++
		err := cond(pollCtx)
		// Context errors are reported by the outer classification; keeping
		// the previous condition error makes timeout messages describe the
		// actual state instead of "context deadline exceeded".
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
		}
		return err
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(opts.Interval), pollCtx)
	err := backoff.Retry(operation, bo)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		// The caller's context ended; this is not a poll timeout.
		return fmt.Errorf("%s: polling canceled after %d attempts: %w", name, attempts, ctx.Err())
	case errors.Is(pollCtx.Err(), context.DeadlineExceeded):
		if lastErr != nil {
			return fmt.Errorf("%s: condition not met within %s (%d attempts), last state: %w", name, opts.Timeout, attempts, lastErr)
		}
		return fmt.Errorf("%s: condition not met within %s (%d attempts)", name, opts.Timeout, attempts)
	default:
		// A Permanent condition error surfaces as-is.
		return fmt.Errorf("%s: %w", name, err)
	}
}
