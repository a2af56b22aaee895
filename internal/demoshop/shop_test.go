// internal/demoshop/shop_test.go
package demoshop

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trolleyhq/trolley/internal/config"
)

func testShopConfig() config.ShopConfig {
	cfg := config.NewDefaultConfig().Shop
	cfg.FlakyFailures = 0
	return cfg
}

// newTestServer boots the shop handler under httptest with a cookie jar so
// the cart survives across requests.
func newTestServer(t *testing.T, cfg config.ShopConfig) (*httptest.Server, *http.Client) {
	t.Helper()
	shop, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(shop.routes(io.Discard))
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := ts.Client()
	client.Jar = jar
	return ts, client
}

func getBody(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) (int, string) {
	t.Helper()
	resp, err := client.PostForm(target, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestShopPagesRender(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	t.Run("home", func(t *testing.T) {
		status, body := getBody(t, client, ts.URL+"/")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `id="home-title"`)
		assert.Contains(t, body, `id="shop-now"`)
	})

	t.Run("listing", func(t *testing.T) {
		status, body := getBody(t, client, ts.URL+"/products")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `id="listing-title"`)
		assert.Contains(t, body, "Aurora Desk Lamp")
		// Both add-control variants must be present so the suite's
		// candidate list has something to resolve between.
		assert.Contains(t, body, `class="add-to-cart"`)
		assert.Contains(t, body, `class="quick-add"`)
		assert.Contains(t, body, `id="newsletter-modal"`)
	})

	t.Run("product", func(t *testing.T) {
		status, body := getBody(t, client, ts.URL+"/products/lamp-aurora")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `id="product-name"`)
		assert.Contains(t, body, "Aurora Desk Lamp")
		assert.Contains(t, body, "$49.00")
	})

	t.Run("unknown product", func(t *testing.T) {
		status, _ := getBody(t, client, ts.URL+"/products/submarine")
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestCartFlow(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	// Add twice: 2x mug, then 1x more.
	status, _ := postForm(t, client, ts.URL+"/cart/add", url.Values{
		"product_id": {"mug-basalt"}, "qty": {"2"},
	})
	assert.Equal(t, http.StatusOK, status, "redirect target should render")

	postForm(t, client, ts.URL+"/cart/add", url.Values{
		"product_id": {"mug-basalt"}, "qty": {"1"},
	})

	status, body := getBody(t, client, ts.URL+"/api/cart/count")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"count":3`)

	status, body = getBody(t, client, ts.URL+"/cart")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Basalt Stoneware Mug")
	assert.Contains(t, body, `<td class="item-qty">3</td>`)
	assert.Contains(t, body, "$54.00")
	assert.Contains(t, body, `id="checkout-link"`)
	assert.Contains(t, body, `target="_blank"`)

	// Removing the only item empties the cart.
	postForm(t, client, ts.URL+"/cart/remove", url.Values{"product_id": {"mug-basalt"}})

	status, body = getBody(t, client, ts.URL+"/cart")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `id="cart-empty"`)
}

func TestCartAddRedirectsBackToReferer(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	noFollow := *client
	noFollow.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/cart/add",
		strings.NewReader(url.Values{"product_id": {"vase-ember"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", ts.URL+"/products/vase-ember")

	resp, err := noFollow.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/products/vase-ember", resp.Header.Get("Location"))
}

func TestUnknownProductCannotBeAdded(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	status, body := postForm(t, client, ts.URL+"/cart/add", url.Values{"product_id": {"submarine"}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "unknown product")
}

func TestFlakyRoutesRecoverAfterBudget(t *testing.T) {
	cfg := testShopConfig()
	cfg.FlakyFailures = 2
	ts, client := newTestServer(t, cfg)

	// First two hits fail, the third succeeds.
	for i := 0; i < 2; i++ {
		status, body := getBody(t, client, ts.URL+"/cart")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, body, "service briefly unavailable")
	}
	status, _ := getBody(t, client, ts.URL+"/cart")
	assert.Equal(t, http.StatusOK, status)

	// Each flaky route has its own failure budget.
	status, _ = getBody(t, client, ts.URL+"/api/cart/count")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRateLimitExemptsHealthz(t *testing.T) {
	cfg := testShopConfig()
	cfg.RatePerSecond = 0.5
	cfg.Burst = 1
	ts, client := newTestServer(t, cfg)

	status, _ := getBody(t, client, ts.URL+"/products")
	assert.Equal(t, http.StatusOK, status)

	status, body := getBody(t, client, ts.URL+"/products")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, body, "rate limit exceeded")

	for i := 0; i < 5; i++ {
		status, _ := getBody(t, client, ts.URL+"/healthz")
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestCheckoutConfirmClearsCart(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	postForm(t, client, ts.URL+"/cart/add", url.Values{"product_id": {"clock-lunar"}, "qty": {"2"}})

	status, body := postForm(t, client, ts.URL+"/checkout/confirm", url.Values{
		"name":    {"Maya"},
		"email":   {"maya@example.com"},
		"address": {"12 Harbor Lane"},
		"card":    {"4242424242424242"},
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Thanks, Maya!")
	assert.Contains(t, body, `id="order-id"`)
	assert.Contains(t, body, "$148.00")

	status, body = getBody(t, client, ts.URL+"/api/cart/count")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"count":0`)
}

func TestTamperedCartCookieIsIgnored(t *testing.T) {
	ts, client := newTestServer(t, testShopConfig())

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	client.Jar.SetCookies(u, []*http.Cookie{{Name: cartCookieName, Value: "not-a-token"}})

	status, body := getBody(t, client, ts.URL+"/api/cart/count")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"count":0`)
}

func TestCartCodecRejectsForeignSignature(t *testing.T) {
	ours := cartCodec{secret: []byte("secret-a")}
	theirs := cartCodec{secret: []byte("secret-b")}

	rec := httptest.NewRecorder()
	require.NoError(t, theirs.encode(rec, map[string]int{"lamp-aurora": 1}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	assert.Empty(t, ours.decode(req), "a cart signed with another key must read as empty")
	assert.Equal(t, map[string]int{"lamp-aurora": 1}, theirs.decode(req))
}

func TestShopLifecycleAndAccessLog(t *testing.T) {
	cfg := testShopConfig()
	cfg.AccessLog = t.TempDir() + "/access.log"

	shop, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, shop.Start(ctx))
	require.Error(t, shop.Start(ctx), "double start must be rejected")

	base := shop.BaseURL()
	require.NotEmpty(t, base)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, shop.Shutdown(shutdownCtx))
	require.NoError(t, shop.Shutdown(shutdownCtx), "second shutdown is a no-op")

	raw, err := os.ReadFile(cfg.AccessLog)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.NotEmpty(t, lines)

	// <ts> <method> <uri> <status> <latency> <bytes>
	fields := strings.Fields(lines[0])
	require.Len(t, fields, 6, "unexpected access log line: %q", lines[0])
	_, err = time.Parse(time.RFC3339Nano, fields[0])
	assert.NoError(t, err)
	assert.Equal(t, "GET", fields[1])
	assert.Equal(t, "/healthz", fields[2])
	assert.Equal(t, "200", fields[3])
}

func TestPriceFormattingPadsCents(t *testing.T) {
	tmpl, err := newTemplates()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = tmpl["confirmation"].Execute(&buf, pageData{
		Title: "Order confirmed", Name: "Maya", OrderID: "abc", Total: 25909,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "$259.09")
}
