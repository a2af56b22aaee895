package schemas

import "time"

// Outcome is the terminal state of a scenario or step.
type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// ArtifactKind identifies what an artifact file contains.
type ArtifactKind string

const (
	ArtifactScreenshot  ArtifactKind = "screenshot"
	ArtifactDOMSnapshot ArtifactKind = "dom_snapshot"
	ArtifactConsoleLog  ArtifactKind = "console_log"
	ArtifactServerLog   ArtifactKind = "server_log"
	ArtifactCookies     ArtifactKind = "cookies"
)

// Artifact references a file collected for a scenario, usually on failure.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	// Path is relative to the run's artifact directory.
	Path string `json:"path"`
	// Compressed is true when the file was written with brotli compression.
	Compressed bool `json:"compressed"`
}

// ConsoleLine is one entry captured from the browser console.
type ConsoleLine struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
}

// StepResult records a single named step inside a scenario.
type StepResult struct {
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	// Detail carries the observed state for failed steps (counts, URLs,
	// candidate lists) so a report reader can diagnose without re-running.
	Detail string `json:"detail,omitempty"`
}

// ScenarioResult is the outcome of one scenario execution.
type ScenarioResult struct {
	Name      string        `json:"name"`
	Tags      []string      `json:"tags,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Steps     []StepResult  `json:"steps,omitempty"`
	Artifacts []Artifact    `json:"artifacts,omitempty"`
	// ServerErrors holds access-log lines with 5xx statuses observed while
	// this scenario was running.
	ServerErrors []string `json:"server_errors,omitempty"`
}

// VCSInfo identifies the suite revision that produced a run.
type VCSInfo struct {
	Revision string `json:"revision,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// RunSummary aggregates a full suite run for reporting and persistence.
type RunSummary struct {
	RunID        string           `json:"run_id"`
	SuiteName    string           `json:"suite_name"`
	BaseURL      string           `json:"base_url"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
	VCS          VCSInfo          `json:"vcs"`
	Scenarios    []ScenarioResult `json:"scenarios"`
	Passed       int              `json:"passed"`
	Failed       int              `json:"failed"`
	Skipped      int              `json:"skipped"`
	ArtifactsDir string           `json:"artifacts_dir,omitempty"`
}

// HasFailures reports whether any scenario in the run failed.
func (r *RunSummary) HasFailures() bool {
	return r.Failed > 0
}

// Tally recomputes the pass/fail/skip counters from the scenario list.
func (r *RunSummary) Tally() {
	r.Passed, r.Failed, r.Skipped = 0, 0, 0
	for _, s := range r.Scenarios {
		switch s.Outcome {
		case OutcomePassed:
			r.Passed++
		case OutcomeFailed:
			r.Failed++
		case OutcomeSkipped:
			r.Skipped++
		}
	}
}
