// internal/pages/home.go
package pages

import "context"

// Home is the landing page.
type Home struct {
	site *Site
}

// Open navigates to the storefront root.
func (h *Home) Open(ctx context.Context) error {
	if err := h.site.session.Navigate(ctx, h.site.url("/")); err != nil {
		return err
	}
	return h.site.session.WaitVisible(ctx, "#home-title")
}

// ShopNow follows the hero link to the product listing.
func (h *Home) ShopNow(ctx context.Context) error {
	if err := h.site.session.Click(ctx, "#shop-now"); err != nil {
		return err
	}
	return h.site.session.WaitVisible(ctx, "#listing-title")
}
