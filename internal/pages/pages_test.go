// internal/pages/pages_test.go
package pages

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/config"
)

// fakeSession scripts browser behavior per selector. Text and visibility
// reads consume a queue and then repeat the final entry, which lets tests
// model values that settle over time.
type fakeSession struct {
	texts     map[string][]string
	visible   map[string][]int
	navErrs   []error
	clicks    []string
	typed     map[string]string
	navigated []string
	itemNames []string
	tabs      []browser.Tab
	active    target.ID
	adopted   []target.ID
	// onClick lets a test mutate the fake when a control is clicked.
	onClick func(f *fakeSession, selector string)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		texts:   map[string][]string{},
		visible: map[string][]int{},
		typed:   map[string]string{},
	}
}

func (f *fakeSession) popText(selector string) (string, bool) {
	q, ok := f.texts[selector]
	if !ok || len(q) == 0 {
		return "", false
	}
	head := q[0]
	if len(q) > 1 {
		f.texts[selector] = q[1:]
	}
	return head, true
}

func (f *fakeSession) popVisible(selector string) int {
	q, ok := f.visible[selector]
	if !ok || len(q) == 0 {
		return 0
	}
	head := q[0]
	if len(q) > 1 {
		f.visible[selector] = q[1:]
	}
	return head
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if len(f.navErrs) > 0 {
		err := f.navErrs[0]
		f.navErrs = f.navErrs[1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if f.onClick != nil {
		f.onClick(f, selector)
	}
	return nil
}

func (f *fakeSession) Type(ctx context.Context, selector, text string) error {
	f.typed[selector] = text
	return nil
}

func (f *fakeSession) Text(ctx context.Context, selector string) (string, error) {
	text, ok := f.popText(selector)
	if !ok {
		return "", fmt.Errorf("no element matches selector %q", selector)
	}
	return text, nil
}

func (f *fakeSession) Count(ctx context.Context, selector string) (int, error) {
	return f.popVisible(selector), nil
}

func (f *fakeSession) CountVisible(ctx context.Context, selector string) (int, error) {
	return f.popVisible(selector), nil
}

func (f *fakeSession) WaitVisible(ctx context.Context, selector string) error {
	if f.popVisible(selector) > 0 {
		return nil
	}
	return fmt.Errorf("element %q not visible", selector)
}

func (f *fakeSession) WaitHidden(ctx context.Context, selector string) error {
	if f.popVisible(selector) == 0 {
		return nil
	}
	return fmt.Errorf("element %q still visible", selector)
}

func (f *fakeSession) Evaluate(ctx context.Context, expr string, out interface{}) error {
	if names, ok := out.(*[]string); ok {
		*names = append([]string{}, f.itemNames...)
		return nil
	}
	return errors.New("unsupported evaluate target")
}

func (f *fakeSession) CurrentURL(ctx context.Context) (string, error) {
	if len(f.navigated) == 0 {
		return "about:blank", nil
	}
	return f.navigated[len(f.navigated)-1], nil
}

func (f *fakeSession) Tabs(ctx context.Context) ([]browser.Tab, error) {
	out := make([]browser.Tab, len(f.tabs))
	copy(out, f.tabs)
	return out, nil
}

func (f *fakeSession) ActiveTargetID() target.ID {
	return f.active
}

func (f *fakeSession) AdoptTab(ctx context.Context, id target.ID) error {
	f.adopted = append(f.adopted, id)
	f.active = id
	return nil
}

func testSite(t *testing.T, session Session) *Site {
	t.Helper()
	rc := config.RetryConfig{
		Timeout:     2 * time.Second,
		Interval:    5 * time.Millisecond,
		StableReads: 2,
	}
	return NewSite(session, "http://shop.local/", rc, zaptest.NewLogger(t))
}

func TestBadgeCountRidesOutDelayedUpdate(t *testing.T) {
	session := newFakeSession()
	// Empty until the shop's badge script runs, then settles on 3.
	session.texts[badgeSelector] = []string{"", "", "3", "3"}

	site := testSite(t, session)
	count, stable, err := site.BadgeCount(context.Background())

	require.NoError(t, err)
	assert.True(t, stable)
	assert.Equal(t, 3, count)
}

func TestBadgeCountRejectsGarbageText(t *testing.T) {
	session := newFakeSession()
	session.texts[badgeSelector] = []string{"many"}

	site := testSite(t, session)
	site.stable.Timeout = 150 * time.Millisecond

	_, _, err := site.BadgeCount(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `cart badge shows "many"`)
}

func TestWaitForBadgeCountPollsUntilMatch(t *testing.T) {
	session := newFakeSession()
	session.texts[badgeSelector] = []string{"1", "2", "3"}

	site := testSite(t, session)
	err := site.WaitForBadgeCount(context.Background(), 3)

	require.NoError(t, err)
}

func TestCartOpenRetriesFlakyRoute(t *testing.T) {
	session := newFakeSession()
	// The first two loads render the 503 text page; the third is the cart.
	session.visible["#cart-title"] = []int{0, 0, 1}

	site := testSite(t, session)
	err := site.Cart().Open(context.Background())

	require.NoError(t, err)
	assert.Len(t, session.navigated, 3)
	assert.Equal(t, "http://shop.local/cart", session.navigated[0])
}

func TestCartOpenReportsLandingURLOnFailure(t *testing.T) {
	session := newFakeSession()
	session.visible["#cart-title"] = []int{0}

	site := testSite(t, session)
	site.poll.Timeout = 150 * time.Millisecond

	err := site.Cart().Open(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "open cart page")
	assert.Contains(t, err.Error(), "cart page did not render at http://shop.local/cart")
}

func TestListingAddToCartFallsBackToQuickAdd(t *testing.T) {
	session := newFakeSession()
	card := `.product-card[data-product-id="mug-basalt"]`
	session.visible[card+" button.quick-add"] = []int{1}

	site := testSite(t, session)
	err := site.Listing().AddToCart(context.Background(), "mug-basalt")

	require.NoError(t, err)
	require.Len(t, session.clicks, 1)
	assert.Equal(t, card+" button.quick-add", session.clicks[0])
}

func TestListingAddToCartDismissesOverlayFirst(t *testing.T) {
	session := newFakeSession()
	card := `.product-card[data-product-id="lamp-aurora"]`
	session.visible[newsletterRoot] = []int{1}
	session.visible[card+" button.add-to-cart"] = []int{1}
	session.onClick = func(f *fakeSession, selector string) {
		if selector == newsletterDismiss {
			f.visible[newsletterRoot] = []int{0}
		}
	}

	site := testSite(t, session)
	err := site.Listing().AddToCart(context.Background(), "lamp-aurora")

	require.NoError(t, err)
	require.Len(t, session.clicks, 2)
	assert.Equal(t, newsletterDismiss, session.clicks[0])
	assert.Equal(t, card+" button.add-to-cart", session.clicks[1])
}

func TestCartOpenCheckoutAdoptsNewTab(t *testing.T) {
	session := newFakeSession()
	session.tabs = []browser.Tab{{ID: "cart-tab", URL: "http://shop.local/cart", Opened: 1}}
	session.active = "cart-tab"
	session.visible["#checkout-form"] = []int{1}
	session.onClick = func(f *fakeSession, selector string) {
		if selector == "#checkout-link" {
			f.tabs = append([]browser.Tab{
				{ID: "checkout-tab", URL: "http://shop.local/checkout", Opened: 2},
			}, f.tabs...)
		}
	}

	site := testSite(t, session)
	tab, err := site.Cart().OpenCheckout(context.Background())

	require.NoError(t, err)
	assert.Equal(t, target.ID("checkout-tab"), tab.ID)
	assert.Equal(t, []target.ID{"checkout-tab"}, session.adopted)
	assert.Equal(t, target.ID("checkout-tab"), session.active)
}

func TestCheckoutFillTypesEveryField(t *testing.T) {
	session := newFakeSession()
	site := testSite(t, session)

	err := site.Checkout().Fill(context.Background(), ShippingDetails{
		Name:    "Maya Laurent",
		Email:   "maya@example.com",
		Address: "12 Harbor Lane",
		Card:    "4242424242424242",
	})

	require.NoError(t, err)
	assert.Equal(t, "Maya Laurent", session.typed["#ship-name"])
	assert.Equal(t, "maya@example.com", session.typed["#ship-email"])
	assert.Equal(t, "12 Harbor Lane", session.typed["#ship-address"])
	assert.Equal(t, "4242424242424242", session.typed["#card-number"])
}

func TestCartItemNames(t *testing.T) {
	session := newFakeSession()
	session.itemNames = []string{"Basalt Stoneware Mug", "Lunar Wall Clock"}

	site := testSite(t, session)
	names, err := site.Cart().ItemNames(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Basalt Stoneware Mug", "Lunar Wall Clock"}, names)
}

func TestSiteNormalizesBaseURL(t *testing.T) {
	session := newFakeSession()
	session.visible["#home-title"] = []int{1}

	// testSite passes a base URL with a trailing slash.
	site := testSite(t, session)
	require.NoError(t, site.Home().Open(context.Background()))

	require.NotEmpty(t, session.navigated)
	assert.Equal(t, "http://shop.local/", session.navigated[0])
}
