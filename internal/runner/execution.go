// internal/runner/execution.go
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/pages"
)

// Session is the browser surface a scenario run needs: everything the page
// objects drive plus the capture operations used for failure artifacts.
// *browser.Session satisfies it; tests substitute fakes.
type Session interface {
	pages.Session
	ID() string
	Screenshot(ctx context.Context) ([]byte, error)
	DOMSnapshot(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	ConsoleLines() []schemas.ConsoleLine
	Close(ctx context.Context) error
}

// SessionFactory opens isolated browser sessions, one per scenario.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// managerFactory adapts *browser.Manager to the SessionFactory interface.
type managerFactory struct {
	manager *browser.Manager
}

func (f managerFactory) NewSession(ctx context.Context) (Session, error) {
	return f.manager.NewSession(ctx)
}

// NewManagerFactory wraps a browser manager for use by the runner.
func NewManagerFactory(manager *browser.Manager) SessionFactory {
	return managerFactory{manager: manager}
}

// Execution is the harness handed to a scenario body: the page objects bound
// to this scenario's session, plus step recording.
type Execution struct {
	Site    *pages.Site
	Session Session
	Logger  *zap.Logger

	mu    sync.Mutex
	steps []schemas.StepResult
}

// Step runs fn as a named step, recording its outcome and duration. The
// returned error is fn's error wrapped with the step name, so scenario
// bodies can simply return it.
func (e *Execution) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	started := time.Now()
	e.Logger.Debug("Step started", zap.String("step", name))
	err := fn(ctx)

	step := schemas.StepResult{
		Name:     name,
		Outcome:  schemas.OutcomePassed,
		Duration: time.Since(started),
	}
	if err != nil {
		step.Outcome = schemas.OutcomeFailed
		step.Detail = err.Error()
	}

	e.mu.Lock()
	e.steps = append(e.steps, step)
	e.mu.Unlock()

	if err != nil {
		e.Logger.Debug("Step failed", zap.String("step", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	e.Logger.Debug("Step finished", zap.String("step", name), zap.Duration("duration", step.Duration))
	return nil
}

// Steps returns the steps recorded so far.
func (e *Execution) Steps() []schemas.StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]schemas.StepResult, len(e.steps))
	copy(out, e.steps)
	return out
}

// ensure the concrete session keeps satisfying the runner's interface.
var _ Session = (*browser.Session)(nil)
