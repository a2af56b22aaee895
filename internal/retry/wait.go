// internal/retry/wait.go
package retry

import (
	"context"
	"fmt"
)

// WaitForEqual polls read until it returns want or the budget in opts runs
// out. Read errors are treated as transient; the timeout error reports the
// last observed value.
func WaitForEqual[T comparable](ctx context.Context, name string, read Read[T], want T, opts Options) error {
	cond := func(ctx context.Context) error {
		got, err := read(ctx)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("got %v, want %v", got, want)
		}
		return nil
	}
	return Poll(ctx, name, cond, opts)
}
