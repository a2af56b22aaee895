//go:build e2e

// Package e2e drives the real stack: the bundled demo shop, a headless
// Chrome, and the same page objects and scenario bodies the CLI runner
// executes. Run with: go test -tags e2e ./e2e/...
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/config"
	"github.com/trolleyhq/trolley/internal/demoshop"
	"github.com/trolleyhq/trolley/internal/pages"
)

var (
	testCfg *config.Config
	shop    *demoshop.Shop
	manager *browser.Manager
	shopURL string
)

// TestMain boots the demo shop and the shared Chrome once; each test opens
// its own isolated session against them.
func TestMain(m *testing.M) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	testCfg = config.NewDefaultConfig()
	// Tighter delays keep the suite quick while still exercising every
	// resilience path.
	testCfg.Shop.CartDelay = 300 * time.Millisecond
	testCfg.Shop.ModalDelay = 200 * time.Millisecond
	testCfg.Shop.FlakyFailures = 2
	testCfg.Retry.Timeout = 15 * time.Second
	testCfg.Retry.Interval = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	shop, err = demoshop.New(testCfg.Shop, logger)
	if err != nil {
		panic(err)
	}
	if err := shop.Start(ctx); err != nil {
		panic(err)
	}
	shopURL = shop.BaseURL()

	manager = browser.NewManager(testCfg, logger)

	code := m.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Browser shutdown failed.", zap.Error(err))
	}
	if err := shop.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shop shutdown failed.", zap.Error(err))
	}
	shutdownCancel()
	cancel()
	os.Exit(code)
}

// newSession opens a session bound to a fresh browser context, so cart
// cookies never leak between tests.
func newSession(t *testing.T) *browser.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := manager.NewSession(ctx)
	if err != nil {
		t.Fatalf("failed to open browser session: %v", err)
	}
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := session.Close(closeCtx); err != nil {
			t.Logf("session close: %v", err)
		}
	})
	return session
}

// newSite binds a fresh session to the running shop's page objects.
func newSite(t *testing.T, session *browser.Session) *pages.Site {
	t.Helper()
	return pages.NewSite(session, shopURL, testCfg.Retry, zaptest.NewLogger(t))
}
