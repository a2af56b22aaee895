// internal/report/junit.go

// Package report renders a finished run into the formats CI systems consume:
// JUnit XML for test dashboards, a JSON summary for tooling, and an artifact
// directory with the evidence collected from failed scenarios.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/etree"

	"github.com/trolleyhq/trolley/api/schemas"
)

// WriteJUnit renders the run as JUnit XML. One testsuite per run, one
// testcase per scenario; failed scenarios carry a failure element with the
// terminal error and any correlated server-side errors.
func WriteJUnit(summary *schemas.RunSummary, w io.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", summary.SuiteName)
	suites.CreateAttr("tests", fmt.Sprintf("%d", len(summary.Scenarios)))
	suites.CreateAttr("failures", fmt.Sprintf("%d", summary.Failed))
	suites.CreateAttr("skipped", fmt.Sprintf("%d", summary.Skipped))
	suites.CreateAttr("time", junitSeconds(summary.Duration))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", summary.SuiteName)
	suite.CreateAttr("tests", fmt.Sprintf("%d", len(summary.Scenarios)))
	suite.CreateAttr("failures", fmt.Sprintf("%d", summary.Failed))
	suite.CreateAttr("skipped", fmt.Sprintf("%d", summary.Skipped))
	suite.CreateAttr("time", junitSeconds(summary.Duration))
	suite.CreateAttr("timestamp", summary.StartedAt.UTC().Format("2006-01-02T15:04:05"))

	props := suite.CreateElement("properties")
	addProperty(props, "run_id", summary.RunID)
	addProperty(props, "base_url", summary.BaseURL)
	addProperty(props, "vcs_revision", summary.VCS.Revision)
	addProperty(props, "vcs_branch", summary.VCS.Branch)

	for _, scenario := range summary.Scenarios {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", scenario.Name)
		tc.CreateAttr("classname", summary.SuiteName)
		tc.CreateAttr("time", junitSeconds(scenario.Duration))

		switch scenario.Outcome {
		case schemas.OutcomeFailed:
			failure := tc.CreateElement("failure")
			failure.CreateAttr("message", scenario.Error)
			failure.SetText(failureBody(scenario))
		case schemas.OutcomeSkipped:
			tc.CreateElement("skipped")
		}

		if out := systemOut(scenario); out != "" {
			tc.CreateElement("system-out").SetText(out)
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write JUnit report: %w", err)
	}
	return nil
}

// WriteJUnitFile writes the JUnit report to path, creating parent
// directories as needed.
func WriteJUnitFile(summary *schemas.RunSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JUnit report file %s: %w", path, err)
	}
	writeErr := WriteJUnit(summary, f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close JUnit report file %s: %w", path, closeErr)
	}
	return nil
}

func addProperty(props *etree.Element, name, value string) {
	if value == "" {
		return
	}
	p := props.CreateElement("property")
	p.CreateAttr("name", name)
	p.CreateAttr("value", value)
}

// failureBody assembles the failure element text: the terminal error, the
// failed steps with their observed state, and server errors seen in the
// shop's access log while the scenario ran.
func failureBody(scenario schemas.ScenarioResult) string {
	body := scenario.Error
	for _, step := range scenario.Steps {
		if step.Outcome != schemas.OutcomeFailed {
			continue
		}
		body += fmt.Sprintf("\nstep %q: %s", step.Name, step.Detail)
	}
	if len(scenario.ServerErrors) > 0 {
		body += "\nserver errors during scenario:"
		for _, line := range scenario.ServerErrors {
			body += "\n  " + line
		}
	}
	return body
}

// systemOut lists the executed steps and collected artifact paths so a CI
// viewer can find the evidence without opening the JSON report.
func systemOut(scenario schemas.ScenarioResult) string {
	var out string
	for _, step := range scenario.Steps {
		out += fmt.Sprintf("[%s] %s (%s)\n", step.Outcome, step.Name, step.Duration.Round(time.Millisecond))
	}
	for _, artifact := range scenario.Artifacts {
		out += fmt.Sprintf("artifact %s: %s\n", artifact.Kind, artifact.Path)
	}
	return out
}

func junitSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
