// internal/pages/checkout.go
package pages

import (
	"context"
	"fmt"
)

// ShippingDetails is the data entered into the checkout form.
type ShippingDetails struct {
	Name    string
	Email   string
	Address string
	Card    string
}

// Checkout is the checkout form page.
type Checkout struct {
	site *Site
}

// Fill types the shipping details into the form.
func (co *Checkout) Fill(ctx context.Context, d ShippingDetails) error {
	fields := []struct {
		selector string
		value    string
	}{
		{"#ship-name", d.Name},
		{"#ship-email", d.Email},
		{"#ship-address", d.Address},
		{"#card-number", d.Card},
	}
	for _, f := range fields {
		if err := co.site.session.Type(ctx, f.selector, f.value); err != nil {
			return fmt.Errorf("failed to fill checkout field %s: %w", f.selector, err)
		}
	}
	return nil
}

// PlaceOrder submits the form and waits for the confirmation page.
func (co *Checkout) PlaceOrder(ctx context.Context) error {
	if err := co.site.session.Click(ctx, "#place-order"); err != nil {
		return err
	}
	return co.site.session.WaitVisible(ctx, "#order-confirmation")
}

// Confirmation is the order confirmation page.
type Confirmation struct {
	site *Site
}

// IsDisplayed reports whether the confirmation section is visible.
func (cf *Confirmation) IsDisplayed(ctx context.Context) (bool, error) {
	n, err := cf.site.session.CountVisible(ctx, "#order-confirmation")
	return n > 0, err
}

// OrderID returns the displayed order identifier.
func (cf *Confirmation) OrderID(ctx context.Context) (string, error) {
	return cf.site.session.Text(ctx, "#order-id")
}

// Heading returns the confirmation headline, which carries the buyer name.
func (cf *Confirmation) Heading(ctx context.Context) (string, error) {
	return cf.site.session.Text(ctx, "#confirmation-title")
}
