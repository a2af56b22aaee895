// internal/browser/recovery/recovery.go

// Package recovery re-acquires a usable page when the active tab closes or
// navigates away mid-flow. The typical trigger is a checkout control that
// opens the payment page in a fresh tab, leaving the session attached to a
// dead or irrelevant one.
package recovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chromedp/cdproto/target"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/retry"
)

// Query describes the tab being looked for. At least one of URLPattern and
// ProbeSelector must be set.
type Query struct {
	// URLPattern filters candidate tabs by their URL.
	URLPattern *regexp.Regexp
	// ProbeSelector must be visible in a candidate tab for it to qualify.
	ProbeSelector string
}

func (q Query) String() string {
	parts := make([]string, 0, 2)
	if q.URLPattern != nil {
		parts = append(parts, fmt.Sprintf("url~%s", q.URLPattern))
	}
	if q.ProbeSelector != "" {
		parts = append(parts, fmt.Sprintf("control=%q", q.ProbeSelector))
	}
	return strings.Join(parts, " ")
}

// TabSession is the slice of session behavior recovery needs.
// *browser.Session satisfies it.
type TabSession interface {
	Tabs(ctx context.Context) ([]browser.Tab, error)
	ActiveTargetID() target.ID
	AdoptTab(ctx context.Context, id target.ID) error
	CountVisible(ctx context.Context, selector string) (int, error)
}

// Recover scans the session's open tabs for one matching the query,
// preferring the most recently opened, and makes it the session's active
// tab. Candidate tabs are adopted before their controls are probed, since
// inspecting a tab requires being attached to it. It keeps rescanning until
// the budget in opts runs out, because the wanted tab may still be opening;
// the terminal error lists every open tab and why it did not qualify.
func Recover(ctx context.Context, session TabSession, goal string, q Query, opts retry.Options) (browser.Tab, error) {
	if q.URLPattern == nil && q.ProbeSelector == "" {
		return browser.Tab{}, fmt.Errorf("%s: recovery query needs a URL pattern or a probe selector", goal)
	}

	var found browser.Tab
	cond := func(ctx context.Context) error {
		tabs, err := session.Tabs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tabs: %w", err)
		}

		states := make([]string, 0, len(tabs))
		for _, tab := range tabs {
			if q.URLPattern != nil && !q.URLPattern.MatchString(tab.URL) {
				states = append(states, fmt.Sprintf("%s: url does not match", describeTab(tab)))
				continue
			}

			if session.ActiveTargetID() != tab.ID {
				if err := session.AdoptTab(ctx, tab.ID); err != nil {
					states = append(states, fmt.Sprintf("%s: adoption failed: %v", describeTab(tab), err))
					continue
				}
			}

			if q.ProbeSelector != "" {
				n, err := session.CountVisible(ctx, q.ProbeSelector)
				if err != nil {
					states = append(states, fmt.Sprintf("%s: probe failed: %v", describeTab(tab), err))
					continue
				}
				if n == 0 {
					states = append(states, fmt.Sprintf("%s: control %q not visible", describeTab(tab), q.ProbeSelector))
					continue
				}
			}

			found = tab
			return nil
		}

		if len(states) == 0 {
			return fmt.Errorf("no tabs open, want %s", q)
		}
		return fmt.Errorf("no tab matches %s (%s)", q, strings.Join(states, "; "))
	}

	if err := retry.Poll(ctx, goal, cond, opts); err != nil {
		return browser.Tab{}, err
	}
	return found, nil
}

func describeTab(tab browser.Tab) string {
	if tab.URL != "" {
		return tab.URL
	}
	return fmt.Sprintf("tab %s", tab.ID)
}
