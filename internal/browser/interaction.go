// internal/browser/interaction.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	fallbackNavigationTimeout = 30 * time.Second
	fallbackActionTimeout     = 15 * time.Second
)

func (s *Session) navigationTimeout() time.Duration {
	if t := s.cfg.Browser.NavigationTimeout; t > 0 {
		return t
	}
	return fallbackNavigationTimeout
}

func (s *Session) actionTimeout() time.Duration {
	if t := s.cfg.Browser.ActionTimeout; t > 0 {
		return t
	}
	return fallbackActionTimeout
}

// Navigate loads the given URL in the active tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	navTimeout := s.navigationTimeout()
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("navigation to %q timed out after %s: %w", url, navTimeout, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("navigation to %q canceled: %w", url, ctx.Err())
		}
		return fmt.Errorf("navigation to %q failed: %w", url, err)
	}
	return nil
}

// Click scrolls the first element matching the selector into view, waits for
// it to become visible and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	err := s.runActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

// Type clears the first element matching the selector and types the given
// text into it.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	err := s.runActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to type into %q: %w", selector, err)
	}
	return nil
}

// Text returns the inner text of the first element matching the selector.
// Unlike the chromedp helper it does not wait for the element; a missing
// element is an immediate error, which keeps polled reads fast.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? el.innerText : null;
	})()`, selector)

	var out *string
	if err := s.Evaluate(ctx, expr, &out); err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	if out == nil {
		return "", fmt.Errorf("no element matches selector %q", selector)
	}
	return *out, nil
}

// Count returns how many elements match the selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)

	var n int
	if err := s.Evaluate(ctx, expr, &n); err != nil {
		return 0, fmt.Errorf("failed to count %q: %w", selector, err)
	}
	return n, nil
}

// CountVisible returns how many elements matching the selector are visible.
// An element counts as visible when it takes up layout space, which also
// covers position:fixed nodes whose offsetParent is null.
func (s *Session) CountVisible(ctx context.Context, selector string) (int, error) {
	expr := fmt.Sprintf(`(() => {
		let n = 0;
		for (const el of document.querySelectorAll(%q)) {
			if (el.offsetWidth || el.offsetHeight || el.getClientRects().length) n++;
		}
		return n;
	})()`, selector)

	var n int
	if err := s.Evaluate(ctx, expr, &n); err != nil {
		return 0, fmt.Errorf("failed to count visible %q: %w", selector, err)
	}
	return n, nil
}

// WaitVisible blocks until the first element matching the selector is
// visible, or the action timeout expires.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	if err := s.runActions(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed waiting for %q to become visible: %w", selector, err)
	}
	return nil
}

// WaitHidden blocks until no element matching the selector is visible.
// Elements removed from the DOM count as hidden, which chromedp's own
// WaitNotVisible does not handle since it requires the node to exist.
func (s *Session) WaitHidden(ctx context.Context, selector string) error {
	timeout := s.actionTimeout()
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expr := fmt.Sprintf(`(() => {
		for (const el of document.querySelectorAll(%q)) {
			if (el.offsetWidth || el.offsetHeight || el.getClientRects().length) return false;
		}
		return true;
	})()`, selector)

	err := s.runActions(opCtx, chromedp.Poll(expr, nil,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(50*time.Millisecond),
	))
	if err != nil {
		return fmt.Errorf("failed waiting for %q to become hidden: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the active tab and unmarshals the
// result into out. Pass nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, expr string, out interface{}) error {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	if out == nil {
		return s.runActions(opCtx, chromedp.Evaluate(expr, nil))
	}
	return s.runActions(opCtx, chromedp.Evaluate(expr, out))
}

// CurrentURL returns the active tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var url string
	if err := s.runActions(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return url, nil
}

// Title returns the active tab's document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var title string
	if err := s.runActions(opCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var buf []byte
	if err := s.runActions(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// DOMSnapshot returns the serialized DOM of the active tab.
func (s *Session) DOMSnapshot(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var html string
	if err := s.runActions(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture DOM snapshot: %w", err)
	}
	return html, nil
}

// Cookies returns the cookies visible to the session's browser context. The
// shop keeps the cart in a JWT cookie, so this is the cart state at the
// moment of capture.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var cookies []*network.Cookie
	err := s.runActions(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookies, nil
}
