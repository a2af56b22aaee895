// internal/pages/listing.go
package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/internal/browser/resolve"
	"github.com/trolleyhq/trolley/internal/retry"
)

const (
	newsletterRoot    = "#newsletter-modal"
	newsletterDismiss = "#newsletter-modal .modal-close"
)

// Listing is the product grid page.
type Listing struct {
	site *Site
}

// Open navigates to the listing and waits for the grid to render.
func (l *Listing) Open(ctx context.Context) error {
	if err := l.site.session.Navigate(ctx, l.site.url("/products")); err != nil {
		return err
	}
	return l.site.session.WaitVisible(ctx, "#listing-title")
}

// ProductCount returns how many product cards are visible.
func (l *Listing) ProductCount(ctx context.Context) (int, error) {
	return l.site.session.CountVisible(ctx, ".product-card")
}

// WaitForNewsletterModal waits for the delayed newsletter overlay to show.
func (l *Listing) WaitForNewsletterModal(ctx context.Context) error {
	return retry.Poll(ctx, "newsletter modal", func(ctx context.Context) error {
		n, err := l.site.session.CountVisible(ctx, newsletterRoot)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("modal not visible yet")
		}
		return nil
	}, l.site.poll)
}

// DismissNewsletterModal closes the newsletter overlay if it is open.
// Calling it when no modal is shown is a no-op.
func (l *Listing) DismissNewsletterModal(ctx context.Context) (int, error) {
	overlays := []resolve.Overlay{{
		Name:    "newsletter",
		Root:    newsletterRoot,
		Dismiss: newsletterDismiss,
	}}
	return resolve.DismissOverlays(ctx, l.site.session, overlays, l.site.poll)
}

// AddToCart adds one unit of the given product from the grid. Cards render
// either a regular add button or a compact quick-add control depending on
// their position, so both are offered as candidates. Any open overlay is
// dismissed first since it would swallow the click.
func (l *Listing) AddToCart(ctx context.Context, productID string) error {
	if _, err := l.DismissNewsletterModal(ctx); err != nil {
		l.site.logger.Warn("Proceeding with overlay possibly open.", zap.Error(err))
	}

	card := fmt.Sprintf(`.product-card[data-product-id=%q]`, productID)
	candidates := []resolve.Candidate{
		{
			Name:     "add-to-cart button",
			Selector: card + " button.add-to-cart",
			Do: func(ctx context.Context) error {
				return l.site.session.Click(ctx, card+" button.add-to-cart")
			},
		},
		{
			Name:     "quick-add button",
			Selector: card + " button.quick-add",
			Do: func(ctx context.Context) error {
				return l.site.session.Click(ctx, card+" button.quick-add")
			},
		},
	}

	winner, err := resolve.First(ctx, l.site.session,
		fmt.Sprintf("add product %q to cart", productID), candidates, l.site.poll)
	if err != nil {
		return err
	}
	l.site.logger.Debug("Added product to cart.",
		zap.String("product_id", productID), zap.String("via", winner))
	return nil
}

// OpenProduct follows a card's link to the product detail page.
func (l *Listing) OpenProduct(ctx context.Context, productID string) error {
	link := fmt.Sprintf(`.product-card[data-product-id=%q] a.product-link`, productID)
	if err := l.site.session.Click(ctx, link); err != nil {
		return err
	}
	return l.site.session.WaitVisible(ctx, "#product-detail")
}
