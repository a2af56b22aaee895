// internal/pages/pages.go

// Package pages holds the page objects for the demo storefront. Each page
// wraps the shared Session with the polling, resolution and recovery helpers
// so scenarios read as intent ("add to cart", "open checkout") while the
// flakiness handling stays in one place.
package pages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/config"
	"github.com/trolleyhq/trolley/internal/retry"
)

// Session is the slice of browser behavior the page objects drive.
// *browser.Session satisfies it; tests substitute fakes.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Text(ctx context.Context, selector string) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	CountVisible(ctx context.Context, selector string) (int, error)
	WaitVisible(ctx context.Context, selector string) error
	WaitHidden(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expr string, out interface{}) error
	CurrentURL(ctx context.Context) (string, error)
	Tabs(ctx context.Context) ([]browser.Tab, error)
	ActiveTargetID() target.ID
	AdoptTab(ctx context.Context, id target.ID) error
}

// Site binds a session to a storefront instance and carries the retry
// defaults every page object shares.
type Site struct {
	session Session
	baseURL string
	poll    retry.Options
	stable  retry.StableOptions
	logger  *zap.Logger
}

// NewSite creates the page-object root for one storefront.
func NewSite(session Session, baseURL string, rc config.RetryConfig, logger *zap.Logger) *Site {
	poll := retry.Options{Timeout: rc.Timeout, Interval: rc.Interval}
	return &Site{
		session: session,
		baseURL: strings.TrimRight(baseURL, "/"),
		poll:    poll,
		stable:  retry.StableOptions{Options: poll, StableReads: rc.StableReads},
		logger:  logger.Named("pages"),
	}
}

func (s *Site) url(path string) string {
	return s.baseURL + path
}

// Home returns the landing page object.
func (s *Site) Home() *Home { return &Home{site: s} }

// Listing returns the product listing page object.
func (s *Site) Listing() *Listing { return &Listing{site: s} }

// Product returns the product detail page object.
func (s *Site) Product() *Product { return &Product{site: s} }

// Cart returns the cart page object.
func (s *Site) Cart() *Cart { return &Cart{site: s} }

// Checkout returns the checkout page object.
func (s *Site) Checkout() *Checkout { return &Checkout{site: s} }

// Confirmation returns the order confirmation page object.
func (s *Site) Confirmation() *Confirmation { return &Confirmation{site: s} }

const badgeSelector = "#cart-count"

// readBadge parses the header cart badge. The badge is script-populated and
// empty right after a page load, which reads as a transient error so pollers
// keep waiting.
func (s *Site) readBadge(ctx context.Context) (int, error) {
	text, err := s.session.Text(ctx, badgeSelector)
	if err != nil {
		return 0, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("cart badge is empty")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("cart badge shows %q, not a number", text)
	}
	return n, nil
}

// BadgeCount samples the header cart badge until consecutive reads agree,
// riding out the shop's delayed badge update. On budget exhaustion it
// returns the last value seen.
func (s *Site) BadgeCount(ctx context.Context) (int, bool, error) {
	sample, err := retry.SampleStable(ctx, "cart badge count", s.readBadge, s.stable)
	if err != nil {
		return 0, false, err
	}
	return sample.Value, sample.Stable, nil
}

// WaitForBadgeCount blocks until the badge settles on want.
func (s *Site) WaitForBadgeCount(ctx context.Context, want int) error {
	return retry.WaitForEqual(ctx, "cart badge count", s.readBadge, want, s.poll)
}
