// internal/browser/manager_test.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trolleyhq/trolley/internal/config"
)

// hasOption checks for the presence of an allocator option by inspecting its
// string representation. Pragmatic, but avoids needing a browser.
func hasOption(t *testing.T, opts []chromedp.ExecAllocatorOption, substring string) bool {
	t.Helper()
	for _, opt := range opts {
		if strings.Contains(fmt.Sprintf("%#v", opt), substring) {
			return true
		}
	}
	return false
}

func TestDefaultAllocatorOptions(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		cfg := config.BrowserConfig{Headless: true}
		opts := DefaultAllocatorOptions(cfg)

		assert.True(t, hasOption(t, opts, "no-sandbox"))
		assert.True(t, hasOption(t, opts, "disable-dev-shm-usage"))
		// The chromedp defaults already run headless; no override expected.
		assert.False(t, hasOption(t, opts, "headlessfalse"))
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		cfg := config.BrowserConfig{Headless: false}
		opts := DefaultAllocatorOptions(cfg)

		assert.NotEmpty(t, opts)
		assert.True(t, hasOption(t, opts, "headlessfalse"))
	})

	t.Run("WithWindowSize", func(t *testing.T) {
		cfg := config.BrowserConfig{WindowWidth: 1920, WindowHeight: 1080}
		opts := DefaultAllocatorOptions(cfg)

		assert.True(t, hasOption(t, opts, "window-size"))
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		cfg := config.BrowserConfig{
			Args: []string{"--no-zygote", "--proxy-server=http://127.0.0.1:9999"},
		}
		opts := DefaultAllocatorOptions(cfg)

		assert.True(t, hasOption(t, opts, "no-zygote"))
		assert.True(t, hasOption(t, opts, "proxy-server"))
		assert.True(t, hasOption(t, opts, "http://127.0.0.1:9999"))
	})
}

func TestStampTargetOrdersByFirstObservation(t *testing.T) {
	m := NewManager(config.NewDefaultConfig(), zaptest.NewLogger(t))

	first := m.stampTarget(target.ID("aaa"))
	second := m.stampTarget(target.ID("bbb"))

	assert.Greater(t, second, first, "later targets get higher sequence numbers")
	assert.Equal(t, first, m.stampTarget(target.ID("aaa")), "stamping is idempotent")
	assert.Equal(t, second, m.stampTarget(target.ID("bbb")))
}

func TestSortTabsNewestFirst(t *testing.T) {
	tabs := []Tab{
		{ID: "old", URL: "http://shop.local/", Opened: 1},
		{ID: "newest", URL: "http://shop.local/confirmation", Opened: 7},
		{ID: "middle", URL: "http://shop.local/cart", Opened: 3},
	}

	sortTabsNewestFirst(tabs)

	require.Len(t, tabs, 3)
	assert.Equal(t, target.ID("newest"), tabs[0].ID)
	assert.Equal(t, target.ID("middle"), tabs[1].ID)
	assert.Equal(t, target.ID("old"), tabs[2].ID)
}

func TestManagerShutdownBeforeLaunch(t *testing.T) {
	m := NewManager(config.NewDefaultConfig(), zaptest.NewLogger(t))

	assert.Equal(t, 0, m.ActiveSessions())

	// Shutdown without a prior session must not try to reach a browser.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}
