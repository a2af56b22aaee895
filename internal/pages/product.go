// internal/pages/product.go
package pages

import (
	"context"
	"strconv"
)

// Product is the product detail page.
type Product struct {
	site *Site
}

// Open navigates straight to a product's detail page.
func (p *Product) Open(ctx context.Context, productID string) error {
	if err := p.site.session.Navigate(ctx, p.site.url("/products/"+productID)); err != nil {
		return err
	}
	return p.site.session.WaitVisible(ctx, "#product-detail")
}

// Name returns the displayed product name.
func (p *Product) Name(ctx context.Context) (string, error) {
	return p.site.session.Text(ctx, "#product-name")
}

// Price returns the displayed, formatted price.
func (p *Product) Price(ctx context.Context) (string, error) {
	return p.site.session.Text(ctx, "#product-price")
}

// SetQuantity overwrites the quantity input.
func (p *Product) SetQuantity(ctx context.Context, qty int) error {
	return p.site.session.Type(ctx, "#qty-input", strconv.Itoa(qty))
}

// AddToCart submits the add form.
func (p *Product) AddToCart(ctx context.Context) error {
	return p.site.session.Click(ctx, "#add-to-cart")
}
