//go:build e2e

package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trolleyhq/trolley/internal/pages"
	"github.com/trolleyhq/trolley/internal/runner"
	"github.com/trolleyhq/trolley/internal/scenarios"
)

// TestShippedScenarios executes every scenario the CLI would run, one
// isolated session each, against the live shop and browser.
func TestShippedScenarios(t *testing.T) {
	for _, scenario := range scenarios.All() {
		scenario := scenario
		t.Run(scenario.Name, func(t *testing.T) {
			session := newSession(t)
			exec := &runner.Execution{
				Site:    newSite(t, session),
				Session: session,
				Logger:  zaptest.NewLogger(t),
			}

			ctx, cancel := context.WithTimeout(context.Background(), testCfg.Suite.ScenarioTimeout)
			defer cancel()

			require.NoError(t, scenario.Fn(ctx, exec))

			steps := exec.Steps()
			require.NotEmpty(t, steps)
			for _, step := range steps {
				t.Logf("step %q finished in %s", step.Name, step.Duration)
			}
		})
	}
}

// TestCheckoutOpensInSecondTab pins the tab handoff down at the session
// level: the checkout link targets a new tab, and after OpenCheckout the
// session must be driving that tab, not the cart.
func TestCheckoutOpensInSecondTab(t *testing.T) {
	session := newSession(t)
	site := newSite(t, session)
	ctx, cancel := context.WithTimeout(context.Background(), testCfg.Suite.ScenarioTimeout)
	defer cancel()

	// Given a cart with one item.
	require.NoError(t, site.Listing().Open(ctx))
	require.NoError(t, site.Listing().AddToCart(ctx, "mug-basalt"))
	require.NoError(t, site.Cart().Open(ctx))

	// When checkout is opened.
	tab, err := site.Cart().OpenCheckout(ctx)
	require.NoError(t, err)

	// Then the session has adopted the new tab.
	require.Contains(t, tab.URL, "/checkout")

	tabs, err := session.Tabs(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(tabs), 2)

	require.Equal(t, tab.ID, session.ActiveTargetID())

	current, err := session.CurrentURL(ctx)
	require.NoError(t, err)
	require.Contains(t, current, "/checkout")
}

// TestProductDetailShowsCatalogPrice reads a detail page straight off the
// catalog, covering the Name and Price readers the scenarios skip.
func TestProductDetailShowsCatalogPrice(t *testing.T) {
	session := newSession(t)
	site := newSite(t, session)
	ctx, cancel := context.WithTimeout(context.Background(), testCfg.Suite.ScenarioTimeout)
	defer cancel()

	require.NoError(t, site.Product().Open(ctx, "rug-tidal"))

	name, err := site.Product().Name(ctx)
	require.NoError(t, err)
	require.Equal(t, "Tidal Wool Rug", name)

	price, err := site.Product().Price(ctx)
	require.NoError(t, err)
	require.Equal(t, "$259.00", price)

	title, err := session.Title(ctx)
	require.NoError(t, err)
	require.Equal(t, "Tidal Wool Rug · Trolley Outfitters", title)
}

// TestBadgeSettlesDespiteDelayedRefresh adds an item and reads the badge
// through the stable sampler. The shop deliberately refreshes the badge
// late, so a naive first read would see the stale zero.
func TestBadgeSettlesDespiteDelayedRefresh(t *testing.T) {
	session := newSession(t)
	site := newSite(t, session)
	ctx, cancel := context.WithTimeout(context.Background(), testCfg.Suite.ScenarioTimeout)
	defer cancel()

	require.NoError(t, site.Listing().Open(ctx))
	require.NoError(t, site.Listing().AddToCart(ctx, "chair-drift"))

	require.NoError(t, site.WaitForBadgeCount(ctx, 1))

	count, present, err := site.BadgeCount(ctx)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, 1, count)
}

// TestConfirmationGreetsTheShopper walks the full purchase and checks the
// rendered greeting uses the shipping name.
func TestConfirmationGreetsTheShopper(t *testing.T) {
	session := newSession(t)
	site := newSite(t, session)
	ctx, cancel := context.WithTimeout(context.Background(), testCfg.Suite.ScenarioTimeout)
	defer cancel()

	require.NoError(t, site.Listing().Open(ctx))
	require.NoError(t, site.Listing().AddToCart(ctx, "vase-ember"))
	require.NoError(t, site.Cart().Open(ctx))

	_, err := site.Cart().OpenCheckout(ctx)
	require.NoError(t, err)

	require.NoError(t, site.Checkout().Fill(ctx, pages.ShippingDetails{
		Name:    "Grace Hopper",
		Email:   "grace@example.test",
		Address: "1 Harbor Lane",
		Card:    "4242424242424242",
	}))
	require.NoError(t, site.Checkout().PlaceOrder(ctx))

	displayed, err := site.Confirmation().IsDisplayed(ctx)
	require.NoError(t, err)
	require.True(t, displayed)

	heading, err := site.Confirmation().Heading(ctx)
	require.NoError(t, err)
	require.True(t, strings.Contains(heading, "Grace"), "heading %q should greet the shopper", heading)

	orderID, err := site.Confirmation().OrderID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)
}
