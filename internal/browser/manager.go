// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/internal/config"
)

const (
	browserBootTimeout  = 60 * time.Second
	shutdownGracePeriod = 15 * time.Second
	targetOpTimeout     = 10 * time.Second
)

// Manager owns the browser process and hands out isolated sessions. Every
// session gets its own incognito-style browser context, so cookies, storage
// and tabs never leak between concurrently running scenarios.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup // Tracks open sessions through Shutdown.

	// Serializes CDP browser context and target creation, which Chrome does
	// not handle well when issued concurrently.
	targetLock sync.Mutex

	// Tab recency bookkeeping. Target IDs are stamped with a monotonically
	// increasing sequence the first time they are observed, so a tab spawned
	// between two scans always sorts ahead of tabs that existed before it.
	seenMu  sync.Mutex
	seen    map[target.ID]uint64
	seenSeq uint64

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. Launching the browser process is
// deferred until the first session is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
		seen:     make(map[target.ID]uint64),
	}
	m.logger.Info("Browser manager created (launch deferred).")
	return m
}

// DefaultAllocatorOptions translates the browser configuration into chromedp
// allocator options.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems and inside most CI containers.
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// The chromedp defaults run headless; only override when the suite asks
	// for a visible browser.
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	// Add additional flags from the config file's 'args' slice.
	for _, arg := range cfg.Args {
		// Handle boolean flags (e.g., --no-zygote)
		if !strings.Contains(arg, "=") {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}

		// Handle key=value flags
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(parts[0], "--"), parts[1]))
		}
	}
	return opts
}

// initialize launches the browser process exactly once.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			m.initErr = fmt.Errorf("context canceled before browser launch: %w", err)
			return
		}
		m.logger.Info("Launching browser...")

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg.Browser)...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// The first Run boots the browser and blocks until CDP is connected.
		// Guard it, as a broken Chrome install can hang indefinitely.
		bootErr := make(chan error, 1)
		go func() { bootErr <- chromedp.Run(browserCtx) }()

		select {
		case err := <-bootErr:
			if err != nil {
				browserCancel()
				allocCancel()
				m.initErr = fmt.Errorf("failed to launch browser: %w", err)
				return
			}
		case <-time.After(browserBootTimeout):
			browserCancel()
			allocCancel()
			m.initErr = fmt.Errorf("timeout waiting for browser launch after %s", browserBootTimeout)
			return
		case <-ctx.Done():
			browserCancel()
			allocCancel()
			m.initErr = fmt.Errorf("context canceled during browser launch: %w", ctx.Err())
			return
		}

		m.allocCtx, m.allocCancel = allocCtx, allocCancel
		m.browserCtx, m.browserCancel = browserCtx, browserCancel
		m.logger.Info("Browser launched.")
	})
	return m.initErr
}

// controller returns an executor context for browser-level CDP commands that
// still honors the caller's cancellation and deadline.
func (m *Manager) controller(ctx context.Context) context.Context {
	c := chromedp.FromContext(m.browserCtx)
	return cdp.WithExecutor(ctx, c.Browser)
}

// NewSession creates an isolated browser context with a single blank tab and
// returns a session driving it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	m.targetLock.Lock()
	browserContextID, err := target.CreateBrowserContext().Do(m.controller(ctx))
	if err != nil {
		m.targetLock.Unlock()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(m.controller(ctx))
	if err != nil {
		m.targetLock.Unlock()
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}
	m.targetLock.Unlock()

	m.stampTarget(targetID)

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to attach to new target: %w", err)
	}

	session := newSession(m, tabCtx, tabCancel, browserContextID, m.cfg, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.disposeBrowserContext(browserContextID)
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// disposeBrowserContext is best-effort cleanup of a session's isolated
// browser context, which also closes any tabs still open inside it.
func (m *Manager) disposeBrowserContext(id cdp.BrowserContextID) {
	if m.browserCtx == nil || m.browserCtx.Err() != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(m.controller(cleanupCtx)); err != nil {
		m.logger.Debug("Failed to dispose browser context.",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// Tab is a snapshot of one open page target.
type Tab struct {
	ID    target.ID
	URL   string
	Title string
	// Opened orders tabs by when they were first observed; higher is newer.
	Opened uint64
}

// stampTarget assigns a first-seen sequence number to a target, or returns
// the existing one.
func (m *Manager) stampTarget(id target.ID) uint64 {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if seq, ok := m.seen[id]; ok {
		return seq
	}
	m.seenSeq++
	m.seen[id] = m.seenSeq
	return m.seenSeq
}

// Tabs returns the open page targets belonging to the given browser context,
// most recently opened first.
func (m *Manager) Tabs(ctx context.Context, browserContextID cdp.BrowserContextID) ([]Tab, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, targetOpTimeout)
	defer cancel()

	infos, err := target.GetTargets().Do(m.controller(opCtx))
	if err != nil {
		return nil, fmt.Errorf("failed to list browser targets: %w", err)
	}

	tabs := make([]Tab, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" || info.BrowserContextID != browserContextID {
			continue
		}
		tabs = append(tabs, Tab{
			ID:     info.TargetID,
			URL:    info.URL,
			Title:  info.Title,
			Opened: m.stampTarget(info.TargetID),
		})
	}
	sortTabsNewestFirst(tabs)
	return tabs, nil
}

func sortTabsNewestFirst(tabs []Tab) {
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].Opened > tabs[j].Opened })
}

// ActiveSessions reports how many sessions are currently registered.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown gracefully closes all sessions and the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	if m.browserCtx == nil {
		m.logger.Info("Browser never launched, nothing to shut down.")
		return nil
	}

	// 1. Close all active sessions concurrently.
	m.mu.RLock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.RUnlock()

	for _, s := range sessionsToClose {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	// 2. Wait for all sessions to finish closing.
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	// 3. Tear down the browser and wait for the process to be reaped.
	m.browserCancel()
	m.allocCancel()

	if c := chromedp.FromContext(m.allocCtx); c != nil && c.Allocator != nil {
		reaped := make(chan struct{})
		go func() {
			c.Allocator.Wait()
			close(reaped)
		}()
		select {
		case <-reaped:
		case <-time.After(shutdownGracePeriod):
			m.logger.Warn("Timeout waiting for browser process to exit.")
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
