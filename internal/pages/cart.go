// internal/pages/cart.go
package pages

import (
	"context"
	"fmt"
	"regexp"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/browser/recovery"
	"github.com/trolleyhq/trolley/internal/retry"
)

var checkoutURLPattern = regexp.MustCompile(`/checkout`)

// Cart is the cart page.
type Cart struct {
	site *Site
}

// Open navigates to the cart. The route drops the first few requests on
// purpose, so navigation is polled until the page actually renders.
func (c *Cart) Open(ctx context.Context) error {
	return retry.Poll(ctx, "open cart page", func(ctx context.Context) error {
		if err := c.site.session.Navigate(ctx, c.site.url("/cart")); err != nil {
			return err
		}
		n, err := c.site.session.CountVisible(ctx, "#cart-title")
		if err != nil {
			return err
		}
		if n == 0 {
			url, _ := c.site.session.CurrentURL(ctx)
			return fmt.Errorf("cart page did not render at %s", url)
		}
		return nil
	}, c.site.poll)
}

// ItemCount samples the visible cart rows until consecutive reads agree.
func (c *Cart) ItemCount(ctx context.Context) (int, error) {
	sample, err := retry.SampleStable(ctx, "cart row count", func(ctx context.Context) (int, error) {
		return c.site.session.CountVisible(ctx, "tr.cart-row")
	}, c.site.stable)
	if err != nil {
		return 0, err
	}
	return sample.Value, nil
}

// ItemNames lists the product names currently in the cart table.
func (c *Cart) ItemNames(ctx context.Context) ([]string, error) {
	var names []string
	expr := `Array.from(document.querySelectorAll("td.item-name")).map(el => el.innerText.trim())`
	if err := c.site.session.Evaluate(ctx, expr, &names); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return names, nil
}

// Total returns the formatted cart total.
func (c *Cart) Total(ctx context.Context) (string, error) {
	return c.site.session.Text(ctx, "#cart-total")
}

// IsEmpty reports whether the empty-cart note is shown.
func (c *Cart) IsEmpty(ctx context.Context) (bool, error) {
	n, err := c.site.session.CountVisible(ctx, "#cart-empty")
	return n > 0, err
}

// CheckoutOffered reports whether the checkout link is present. The shop
// only renders it when the cart has items.
func (c *Cart) CheckoutOffered(ctx context.Context) (bool, error) {
	n, err := c.site.session.CountVisible(ctx, "#checkout-link")
	return n > 0, err
}

// RemoveItem clicks a row's remove control and waits for the row to vanish.
func (c *Cart) RemoveItem(ctx context.Context, productID string) error {
	row := fmt.Sprintf(`tr.cart-row[data-product-id=%q]`, productID)
	if err := c.site.session.Click(ctx, row+" button.remove-item"); err != nil {
		return err
	}
	return c.site.session.WaitHidden(ctx, row)
}

// OpenCheckout clicks the checkout link, which opens a fresh tab, then
// re-binds the session to whichever tab ends up hosting the checkout form.
func (c *Cart) OpenCheckout(ctx context.Context) (browser.Tab, error) {
	if err := c.site.session.Click(ctx, "#checkout-link"); err != nil {
		return browser.Tab{}, err
	}
	return recovery.Recover(ctx, c.site.session, "recover checkout tab", recovery.Query{
		URLPattern:    checkoutURLPattern,
		ProbeSelector: "#checkout-form",
	}, c.site.poll)
}
