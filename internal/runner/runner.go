// internal/runner/runner.go

// Package runner executes registered scenarios against a storefront, each in
// its own browser session, and assembles the run summary the report writers
// and the results store consume.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trolleyhq/trolley/api/schemas"
	"github.com/trolleyhq/trolley/internal/config"
	"github.com/trolleyhq/trolley/internal/pages"
	"github.com/trolleyhq/trolley/internal/report"
)

const (
	// artifactTimeout bounds failure evidence capture so a dead tab cannot
	// stall the rest of the run.
	artifactTimeout = 15 * time.Second
	// sessionCloseTimeout bounds per-scenario session teardown.
	sessionCloseTimeout = 10 * time.Second
)

// Runner drives a full suite run.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	sessions SessionFactory
	registry *Registry
	baseURL  string

	artifacts    *report.ArtifactStore
	serverErrors ServerErrorSource
	vcs          schemas.VCSInfo
}

// Option configures a Runner.
type Option func(*Runner)

// WithArtifactStore enables failure evidence collection into the store.
func WithArtifactStore(store *report.ArtifactStore) Option {
	return func(r *Runner) { r.artifacts = store }
}

// WithServerErrorSource correlates failed scenarios with server-side 5xx
// lines from the given source.
func WithServerErrorSource(src ServerErrorSource) Option {
	return func(r *Runner) { r.serverErrors = src }
}

// WithVCSInfo stamps run summaries with the suite revision.
func WithVCSInfo(info schemas.VCSInfo) Option {
	return func(r *Runner) { r.vcs = info }
}

// New creates a runner targeting baseURL with sessions from the factory.
func New(cfg *config.Config, logger *zap.Logger, sessions SessionFactory, registry *Registry, baseURL string, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logger.Named("runner"),
		sessions: sessions,
		registry: registry,
		baseURL:  baseURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every scenario matching the configured filter with bounded
// parallelism and returns the assembled summary. Scenario failures are
// recorded in the summary, not returned as errors; the error return is
// reserved for the run being interrupted.
func (r *Runner) Run(ctx context.Context) (*schemas.RunSummary, error) {
	scenarios := r.registry.Filter(r.cfg.Suite.Filter)

	summary := &schemas.RunSummary{
		RunID:     uuid.NewString(),
		SuiteName: r.cfg.Suite.Name,
		BaseURL:   r.baseURL,
		StartedAt: time.Now(),
		VCS:       r.vcs,
	}
	if r.artifacts != nil {
		summary.ArtifactsDir = r.artifacts.Dir()
	}

	if len(scenarios) == 0 {
		r.logger.Warn("No scenarios matched the filter", zap.String("filter", r.cfg.Suite.Filter))
		summary.Duration = time.Since(summary.StartedAt)
		return summary, nil
	}

	r.logger.Info("Starting run",
		zap.String("run_id", summary.RunID),
		zap.String("base_url", r.baseURL),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallelism", r.cfg.Suite.Parallelism),
	)

	results := make([]schemas.ScenarioResult, len(scenarios))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Suite.Parallelism)
	for i, scenario := range scenarios {
		g.Go(func() error {
			results[i] = r.runScenario(groupCtx, scenario)
			return nil
		})
	}
	// Group functions record failures in results instead of returning them.
	_ = g.Wait()

	summary.Scenarios = results
	summary.Duration = time.Since(summary.StartedAt)
	summary.Tally()

	r.logger.Info("Run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

func (r *Runner) runScenario(ctx context.Context, scenario Scenario) schemas.ScenarioResult {
	logger := r.logger.With(zap.String("scenario", scenario.Name))
	result := schemas.ScenarioResult{
		Name:      scenario.Name,
		Tags:      scenario.Tags,
		Outcome:   schemas.OutcomePassed,
		StartedAt: time.Now(),
	}

	if err := ctx.Err(); err != nil {
		result.Outcome = schemas.OutcomeSkipped
		result.Error = fmt.Sprintf("run canceled before scenario started: %v", err)
		return result
	}

	scenarioCtx, cancel := context.WithTimeout(ctx, r.cfg.Suite.ScenarioTimeout)
	defer cancel()

	session, err := r.sessions.NewSession(scenarioCtx)
	if err != nil {
		result.Outcome = schemas.OutcomeFailed
		result.Error = fmt.Sprintf("failed to open browser session: %v", err)
		result.Duration = time.Since(result.StartedAt)
		return result
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		defer closeCancel()
		if closeErr := session.Close(closeCtx); closeErr != nil {
			logger.Warn("Failed to close session", zap.Error(closeErr))
		}
	}()

	exec := &Execution{
		Site:    pages.NewSite(session, r.baseURL, r.cfg.Retry, logger),
		Session: session,
		Logger:  logger,
	}

	logger.Info("Scenario started")
	err = runScenarioFn(scenarioCtx, scenario, exec)
	result.Steps = exec.Steps()
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		result.Outcome = schemas.OutcomeFailed
		result.Error = err.Error()
		r.collectFailureEvidence(ctx, session, scenario.Name, &result, logger)
		logger.Error("Scenario failed", zap.Duration("duration", result.Duration), zap.Error(err))
		return result
	}

	logger.Info("Scenario passed", zap.Duration("duration", result.Duration))
	return result
}

// runScenarioFn isolates the scenario body so a panic becomes a recorded
// failure instead of taking down the whole run.
func runScenarioFn(ctx context.Context, scenario Scenario, exec *Execution) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scenario panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return scenario.Fn(ctx, exec)
}

// collectFailureEvidence gathers whatever the failed scenario left behind:
// screenshot, DOM snapshot, cookies, browser console, and correlated server
// errors. Every capture is best-effort; a dead tab must not mask the
// original error.
func (r *Runner) collectFailureEvidence(ctx context.Context, session Session, name string, result *schemas.ScenarioResult, logger *zap.Logger) {
	finished := time.Now()
	if r.serverErrors != nil {
		result.ServerErrors = r.serverErrors.ServerErrorsBetween(result.StartedAt, finished)
	}
	if r.artifacts == nil {
		return
	}

	captureCtx, cancel := context.WithTimeout(ctx, artifactTimeout)
	defer cancel()

	if png, err := session.Screenshot(captureCtx); err != nil {
		logger.Warn("Failed to capture screenshot", zap.Error(err))
	} else if artifact, err := r.artifacts.SaveScreenshot(name, png); err != nil {
		logger.Warn("Failed to save screenshot", zap.Error(err))
	} else {
		result.Artifacts = append(result.Artifacts, artifact)
	}

	if html, err := session.DOMSnapshot(captureCtx); err != nil {
		logger.Warn("Failed to capture DOM snapshot", zap.Error(err))
	} else if artifact, err := r.artifacts.SaveDOMSnapshot(name, html); err != nil {
		logger.Warn("Failed to save DOM snapshot", zap.Error(err))
	} else {
		result.Artifacts = append(result.Artifacts, artifact)
	}

	if cookies, err := session.Cookies(captureCtx); err != nil {
		logger.Warn("Failed to capture cookies", zap.Error(err))
	} else if len(cookies) > 0 {
		if artifact, err := r.artifacts.SaveCookies(name, cookies); err != nil {
			logger.Warn("Failed to save cookies", zap.Error(err))
		} else {
			result.Artifacts = append(result.Artifacts, artifact)
		}
	}

	if lines := session.ConsoleLines(); len(lines) > 0 {
		if artifact, err := r.artifacts.SaveConsoleLog(name, lines); err != nil {
			logger.Warn("Failed to save console log", zap.Error(err))
		} else {
			result.Artifacts = append(result.Artifacts, artifact)
		}
	}

	if len(result.ServerErrors) > 0 {
		if artifact, err := r.artifacts.SaveServerLog(name, result.ServerErrors); err != nil {
			logger.Warn("Failed to save server log", zap.Error(err))
		} else {
			result.Artifacts = append(result.Artifacts, artifact)
		}
	}
}
