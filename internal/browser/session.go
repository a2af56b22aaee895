// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
	"github.com/trolleyhq/trolley/internal/config"
)

// maxConsoleLines bounds the per-session console buffer; lines past the cap
// are dropped.
const maxConsoleLines = 2000

// Session drives one isolated browser context. It always has exactly one
// active tab; tabs abandoned through AdoptTab stay open until Close.
//
// A session must only be used by one goroutine at a time.
type Session struct {
	id      string
	manager *Manager
	cfg     *config.Config
	logger  *zap.Logger

	browserContextID cdp.BrowserContextID

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
	// Cancel funcs of abandoned tabs. Canceling a tab context closes its
	// target, so these are only released in Close, once the whole browser
	// context is being torn down anyway.
	retired  []context.CancelFunc
	isClosed bool

	onClose func()

	consoleMu sync.Mutex
	console   []schemas.ConsoleLine
}

func newSession(m *Manager, tabCtx context.Context, tabCancel context.CancelFunc, browserContextID cdp.BrowserContextID, cfg *config.Config, logger *zap.Logger) *Session {
	s := &Session{
		id:               uuid.NewString(),
		manager:          m,
		cfg:              cfg,
		browserContextID: browserContextID,
		tabCtx:           tabCtx,
		tabCancel:        tabCancel,
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id[:8]))
	s.attachConsoleListener(tabCtx)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// BrowserContextID returns the CDP identifier of the session's isolated
// browser context.
func (s *Session) BrowserContextID() cdp.BrowserContextID {
	return s.browserContextID
}

// attachConsoleListener records console output and uncaught exceptions from
// the given tab into the session's console buffer.
func (s *Session) attachConsoleListener(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			parts := make([]string, 0, len(e.Args))
			for _, arg := range e.Args {
				parts = append(parts, formatConsoleArg(arg))
			}
			s.appendConsoleLine(string(e.Type), joinParts(parts))
		case *runtime.EventExceptionThrown:
			text := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				text = e.ExceptionDetails.Exception.Description
			}
			s.appendConsoleLine("exception", text)
		}
	})
}

func (s *Session) appendConsoleLine(level, text string) {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	if len(s.console) >= maxConsoleLines {
		return
	}
	s.console = append(s.console, schemas.ConsoleLine{
		Timestamp: time.Now(),
		Level:     level,
		Text:      text,
	})
}

// formatConsoleArg renders a console argument the way devtools would: plain
// values via their JSON form, objects via their description.
func formatConsoleArg(arg *runtime.RemoteObject) string {
	if len(arg.Value) > 0 {
		var v interface{}
		if err := json.Unmarshal(arg.Value, &v); err == nil {
			return fmt.Sprintf("%v", v)
		}
	}
	if arg.Description != "" {
		return arg.Description
	}
	return fmt.Sprintf("[%s]", arg.Type)
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// ConsoleLines returns a copy of the console output captured so far.
func (s *Session) ConsoleLines() []schemas.ConsoleLine {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	out := make([]schemas.ConsoleLine, len(s.console))
	copy(out, s.console)
	return out
}

// currentTab returns the active tab context, or an error when the session is
// closed.
func (s *Session) currentTab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil, fmt.Errorf("session %s is closed", s.id[:8])
	}
	return s.tabCtx, nil
}

// runActions executes chromedp actions against the active tab, honoring both
// the caller's context and the tab's lifetime.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := s.currentTab()
	if err != nil {
		return err
	}
	combined, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

// Tabs lists the open tabs of this session's browser context, most recently
// opened first.
func (s *Session) Tabs(ctx context.Context) ([]Tab, error) {
	return s.manager.Tabs(ctx, s.browserContextID)
}

// ActiveTargetID returns the CDP target the session currently drives, or an
// empty ID before the first attach.
func (s *Session) ActiveTargetID() target.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return ""
	}
	if c := chromedp.FromContext(s.tabCtx); c != nil && c.Target != nil {
		return c.Target.TargetID
	}
	return ""
}

// AdoptTab switches the session's active tab to the given target. The
// previous tab is left open and its context retained, because releasing an
// attached tab context closes the target with it.
func (s *Session) AdoptTab(ctx context.Context, id target.ID) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.id[:8])
	}
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(s.manager.browserCtx, chromedp.WithTargetID(id))

	attachCtx, cancel := context.WithTimeout(ctx, targetOpTimeout)
	defer cancel()
	combined, combinedCancel := CombineContext(tabCtx, attachCtx)
	err := chromedp.Run(combined)
	combinedCancel()
	if err != nil {
		tabCancel()
		return fmt.Errorf("failed to adopt tab %s: %w", id, err)
	}

	s.mu.Lock()
	s.retired = append(s.retired, s.tabCancel)
	s.tabCtx, s.tabCancel = tabCtx, tabCancel
	s.mu.Unlock()

	s.attachConsoleListener(tabCtx)
	s.logger.Info("Adopted tab as active page.", zap.String("target_id", string(id)))
	return nil
}

// Close releases the session's tabs and disposes its browser context.
// It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	tabCancel := s.tabCancel
	retired := s.retired
	s.retired = nil
	s.mu.Unlock()

	s.logger.Debug("Closing session.")
	tabCancel()
	for _, cancel := range retired {
		cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Info("Session closed.")
	return nil
}
