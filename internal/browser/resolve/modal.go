// internal/browser/resolve/modal.go
package resolve

import (
	"context"
	"fmt"

	"github.com/trolleyhq/trolley/internal/retry"
)

// ModalActor is the slice of session behavior modal dismissal needs.
type ModalActor interface {
	Prober
	Click(ctx context.Context, selector string) error
	WaitHidden(ctx context.Context, selector string) error
}

// Overlay pairs a modal's container with the control that closes it.
type Overlay struct {
	// Name identifies the overlay in logs and errors.
	Name string
	// Root matches the modal container; the overlay is considered open
	// while any match is visible.
	Root string
	// Dismiss is the control clicked to close the overlay.
	Dismiss string
}

// DismissOverlays closes every listed overlay that is currently visible and
// reports how many were dismissed. Overlays that are not present are
// skipped, so calling this again after everything is closed is a no-op.
//
// Overlays often animate in, so a dismiss click can land before the control
// reacts; each close is retried under opts until the overlay is gone.
func DismissOverlays(ctx context.Context, actor ModalActor, overlays []Overlay, opts retry.Options) (int, error) {
	dismissed := 0
	for _, o := range overlays {
		n, err := actor.CountVisible(ctx, o.Root)
		if err != nil {
			return dismissed, fmt.Errorf("failed to probe overlay %q: %w", o.Name, err)
		}
		if n == 0 {
			continue
		}

		closeOnce := func(ctx context.Context) error {
			visible, err := actor.CountVisible(ctx, o.Root)
			if err != nil {
				return fmt.Errorf("overlay %q probe: %w", o.Name, err)
			}
			if visible == 0 {
				return nil
			}
			if err := actor.Click(ctx, o.Dismiss); err != nil {
				return fmt.Errorf("overlay %q dismiss click: %w", o.Name, err)
			}
			return actor.WaitHidden(ctx, o.Root)
		}

		if err := retry.Poll(ctx, fmt.Sprintf("dismiss overlay %q", o.Name), closeOnce, opts); err != nil {
			return dismissed, err
		}
		dismissed++
	}
	return dismissed, nil
}
