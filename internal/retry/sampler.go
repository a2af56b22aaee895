// File: internal/retry/sampler.go
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// DefaultStableReads is the number of consecutive agreeing reads required
// before a sampled value is trusted.
const DefaultStableReads = 2

// Read produces one observation of a changing value. Errors are transient:
// the read is skipped and retried on the next tick.
type Read[T comparable] func(ctx context.Context) (T, error)

// StableOptions bound a sampling run.
type StableOptions struct {
	Options
	// StableReads is how many consecutive reads must agree before the value
	// is accepted. Values below 2 fall back to DefaultStableReads.
	StableReads int
}

func (o StableOptions) withDefaults() StableOptions {
	o.Options = o.Options.withDefaults()
	if o.StableReads < 2 {
		o.StableReads = DefaultStableReads
	}
	return o
}

// Sample is the outcome of a sampling run.
type Sample[T comparable] struct {
	// Value is the accepted value, or the last observed value when the run
	// ended without reaching stability.
	Value T
	// Stable reports whether Value was confirmed by consecutive agreeing
	// reads. A false value means Value is best-effort.
	Stable bool
	// Reads counts the successful reads performed.
	Reads int
}

// SampleStable reads a value on a fixed interval until StableReads
// consecutive reads return the same result. UI counters and badge text
// update asynchronously, so a single read can observe a half-applied state;
// agreement across reads filters that out.
//
// If the budget runs out before stability, the last observed value is
// returned with Stable=false and a nil error. An error is returned only
// when no read ever succeeded or the caller's context ended.
func SampleStable[T comparable](ctx context.Context, name string, read Read[T], opts StableOptions) (Sample[T], error) {
	opts = opts.withDefaults()
	sampleCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		sample   Sample[T]
		lastErr  error
		have     bool
		agreeing int
	)
	operation := func() error {
		value, err := read(sampleCtx)
		if err != nil {
			// A failed read yields no observation. It does not break the
			// agreement streak; only a differing value does.
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				lastErr = err
			}
			return fmt.Errorf("read failed: %w", err)
		}
		sample.Reads++
		if have && value == sample.Value {
			agreeing++
		} else {
			sample.Value = value
			have = true
			agreeing = 1
		}
		if agreeing >= opts.StableReads {
			sample.Stable = true
			return nil
		}
		return fmt.Errorf("value %v seen %d of %d times", value, agreeing, opts.StableReads)
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(opts.Interval), sampleCtx)
	err := backoff.Retry(operation, bo)
	switch {
	case err == nil:
		return sample, nil
	case ctx.Err() != nil:
		return sample, fmt.Errorf("%s: sampling canceled after %d reads: %w", name, sample.Reads, ctx.Err())
	case !have:
		if lastErr != nil {
			return sample, fmt.Errorf("%s: no successful reads within %s: %w", name, opts.Timeout, lastErr)
		}
		return sample, fmt.Errorf("%s: no successful reads within %s", name, opts.Timeout)
	default:
		// Budget spent without agreement; hand back the last observation.
		return sample, nil
	}
}
