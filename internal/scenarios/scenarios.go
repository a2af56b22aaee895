// internal/scenarios/scenarios.go

// Package scenarios holds the shipped storefront scenarios. Each body drives
// the page objects through Execution.Step so the runner records a step
// timeline, and relies on the resilience helpers rather than sleeps: the
// shop's delayed badge, newsletter modal and flaky routes are part of the
// exercise, not something to work around here.
package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/pages"
	"github.com/trolleyhq/trolley/internal/runner"
)

// Register adds every shipped scenario to the registry.
func Register(reg *runner.Registry) error {
	for _, scenario := range All() {
		if err := reg.Register(scenario); err != nil {
			return err
		}
	}
	return nil
}

// All returns the shipped scenarios in declaration order. The runner sorts
// by name anyway; this order is only for listing.
func All() []runner.Scenario {
	return []runner.Scenario{
		{Name: "browse and add to cart", Tags: []string{"smoke", "cart"}, Fn: browseAndAddToCart},
		{Name: "checkout in a fresh tab", Tags: []string{"checkout", "tabs"}, Fn: checkoutInFreshTab},
		{Name: "newsletter modal interruption", Tags: []string{"modal"}, Fn: modalInterruption},
		{Name: "flaky cart route absorption", Tags: []string{"flaky", "cart"}, Fn: flakyCartRoute},
		{Name: "cart accumulation across products", Tags: []string{"cart"}, Fn: cartAccumulation},
		{Name: "empty cart guard", Tags: []string{"cart"}, Fn: emptyCartGuard},
	}
}

// browseAndAddToCart walks the landing page into the listing, adds one
// product, and waits for the delayed cart badge to settle.
func browseAndAddToCart(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site

	if err := exec.Step(ctx, "open the storefront", func(ctx context.Context) error {
		return site.Home().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "follow the hero link to the listing", func(ctx context.Context) error {
		return site.Home().ShopNow(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "check the product grid rendered", func(ctx context.Context) error {
		n, err := site.Listing().ProductCount(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("no product cards are visible")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add the mug from the grid", func(ctx context.Context) error {
		return site.Listing().AddToCart(ctx, "mug-basalt")
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "wait for the cart badge to settle at 1", func(ctx context.Context) error {
		return site.WaitForBadgeCount(ctx, 1)
	})
}

// checkoutInFreshTab exercises the tab-opening checkout link: the session
// must end up bound to whichever tab hosts the checkout form, and the order
// must confirm there.
func checkoutInFreshTab(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site
	var checkoutTab browser.Tab

	if err := exec.Step(ctx, "open the listing", func(ctx context.Context) error {
		return site.Listing().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add the lamp from the grid", func(ctx context.Context) error {
		return site.Listing().AddToCart(ctx, "lamp-aurora")
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "open the cart", func(ctx context.Context) error {
		return site.Cart().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "open checkout in its own tab", func(ctx context.Context) error {
		tab, err := site.Cart().OpenCheckout(ctx)
		if err != nil {
			return err
		}
		checkoutTab = tab
		return nil
	}); err != nil {
		return err
	}
	exec.Logger.Debug("Checkout tab adopted.",
		zap.String("tab_id", string(checkoutTab.ID)), zap.String("url", checkoutTab.URL))

	if err := exec.Step(ctx, "fill the shipping form", func(ctx context.Context) error {
		return site.Checkout().Fill(ctx, pages.ShippingDetails{
			Name:    "Ada Lovelace",
			Email:   "ada@example.test",
			Address: "12 Analytical Way",
			Card:    "4242424242424242",
		})
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "place the order", func(ctx context.Context) error {
		return site.Checkout().PlaceOrder(ctx)
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "verify the confirmation", func(ctx context.Context) error {
		shown, err := site.Confirmation().IsDisplayed(ctx)
		if err != nil {
			return err
		}
		if !shown {
			return errors.New("confirmation section is not visible")
		}
		orderID, err := site.Confirmation().OrderID(ctx)
		if err != nil {
			return err
		}
		if orderID == "" {
			return errors.New("confirmation shows no order id")
		}
		heading, err := site.Confirmation().Heading(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(heading, "Ada") {
			return fmt.Errorf("confirmation heading %q does not greet the buyer", heading)
		}
		return nil
	})
}

// modalInterruption waits for the newsletter overlay, dismisses it, checks
// the dismissal is a no-op the second time, and then shops on.
func modalInterruption(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site

	if err := exec.Step(ctx, "open the listing", func(ctx context.Context) error {
		return site.Listing().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "wait for the newsletter modal", func(ctx context.Context) error {
		return site.Listing().WaitForNewsletterModal(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "dismiss the modal", func(ctx context.Context) error {
		dismissed, err := site.Listing().DismissNewsletterModal(ctx)
		if err != nil {
			return err
		}
		if dismissed == 0 {
			return errors.New("modal was visible but nothing was dismissed")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "dismissing again is a no-op", func(ctx context.Context) error {
		dismissed, err := site.Listing().DismissNewsletterModal(ctx)
		if err != nil {
			return err
		}
		if dismissed != 0 {
			return fmt.Errorf("second dismissal closed %d overlays, expected none", dismissed)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add the clock with the overlay gone", func(ctx context.Context) error {
		return site.Listing().AddToCart(ctx, "clock-lunar")
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "wait for the cart badge to settle at 1", func(ctx context.Context) error {
		return site.WaitForBadgeCount(ctx, 1)
	})
}

// flakyCartRoute drives the cart page, whose route drops the first requests
// with 503s. The page objects are expected to absorb that entirely.
func flakyCartRoute(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site

	if err := exec.Step(ctx, "open the listing", func(ctx context.Context) error {
		return site.Listing().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add the rug from the grid", func(ctx context.Context) error {
		return site.Listing().AddToCart(ctx, "rug-tidal")
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "open the cart despite dropped requests", func(ctx context.Context) error {
		return site.Cart().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "cart rows settle at one", func(ctx context.Context) error {
		n, err := site.Cart().ItemCount(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("expected 1 cart row, found %d", n)
		}
		return nil
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "the total reflects the rug", func(ctx context.Context) error {
		total, err := site.Cart().Total(ctx)
		if err != nil {
			return err
		}
		if total != "$259.00" {
			return fmt.Errorf("cart total is %q, expected $259.00", total)
		}
		return nil
	})
}

// cartAccumulation mixes the product page and the grid, checks the badge
// tracks the unit count, and removes a line again.
func cartAccumulation(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site

	if err := exec.Step(ctx, "open the lamp's product page", func(ctx context.Context) error {
		return site.Product().Open(ctx, "lamp-aurora")
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add two lamps", func(ctx context.Context) error {
		if err := site.Product().SetQuantity(ctx, 2); err != nil {
			return err
		}
		return site.Product().AddToCart(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "badge settles at 2", func(ctx context.Context) error {
		return site.WaitForBadgeCount(ctx, 2)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "add the vase from the grid", func(ctx context.Context) error {
		if err := site.Listing().Open(ctx); err != nil {
			return err
		}
		return site.Listing().AddToCart(ctx, "vase-ember")
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "badge settles at 3", func(ctx context.Context) error {
		return site.WaitForBadgeCount(ctx, 3)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "cart shows both products", func(ctx context.Context) error {
		if err := site.Cart().Open(ctx); err != nil {
			return err
		}
		names, err := site.Cart().ItemNames(ctx)
		if err != nil {
			return err
		}
		for _, want := range []string{"Aurora Desk Lamp", "Ember Glass Vase"} {
			found := false
			for _, name := range names {
				if name == want {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("cart rows %v are missing %q", names, want)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "remove the lamps", func(ctx context.Context) error {
		return site.Cart().RemoveItem(ctx, "lamp-aurora")
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "one row and one unit remain", func(ctx context.Context) error {
		n, err := site.Cart().ItemCount(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("expected 1 cart row after removal, found %d", n)
		}
		return site.WaitForBadgeCount(ctx, 1)
	})
}

// emptyCartGuard checks the cart page in a fresh session: empty note shown,
// no checkout link offered, badge at zero.
func emptyCartGuard(ctx context.Context, exec *runner.Execution) error {
	site := exec.Site

	if err := exec.Step(ctx, "open the cart with nothing in it", func(ctx context.Context) error {
		return site.Cart().Open(ctx)
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "the empty note is shown", func(ctx context.Context) error {
		empty, err := site.Cart().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return errors.New("empty-cart note is not visible")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := exec.Step(ctx, "no checkout link is offered", func(ctx context.Context) error {
		offered, err := site.Cart().CheckoutOffered(ctx)
		if err != nil {
			return err
		}
		if offered {
			return errors.New("checkout link is offered for an empty cart")
		}
		return nil
	}); err != nil {
		return err
	}

	return exec.Step(ctx, "the badge reads zero", func(ctx context.Context) error {
		return site.WaitForBadgeCount(ctx, 0)
	})
}
