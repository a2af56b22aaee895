// internal/report/artifacts.go
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
)

// slugSanitizer collapses anything that is not filesystem-friendly. Scenario
// names are prose ("checkout in a fresh tab"), the slug keys artifact files.
var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// ArtifactStore writes the evidence collected from failed scenarios into the
// run's artifact directory. Text artifacts (DOM snapshots, logs) can be
// brotli-compressed; screenshots are PNG and stored as-is.
type ArtifactStore struct {
	dir      string
	compress bool
	logger   *zap.Logger
}

// NewArtifactStore creates the artifact directory and returns a store
// rooted there.
func NewArtifactStore(dir string, compress bool, logger *zap.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &ArtifactStore{
		dir:      dir,
		compress: compress,
		logger:   logger.Named("artifact_store"),
	}, nil
}

// Dir returns the directory artifacts are written into.
func (s *ArtifactStore) Dir() string { return s.dir }

// SaveScreenshot stores a PNG screenshot for the scenario.
func (s *ArtifactStore) SaveScreenshot(scenario string, png []byte) (schemas.Artifact, error) {
	name := slugify(scenario) + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), png, 0o644); err != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to write screenshot: %w", err)
	}
	s.logger.Debug("Saved screenshot", zap.String("scenario", scenario), zap.String("path", name))
	return schemas.Artifact{Kind: schemas.ArtifactScreenshot, Path: name}, nil
}

// SaveDOMSnapshot stores the page HTML captured at the moment of failure.
func (s *ArtifactStore) SaveDOMSnapshot(scenario, html string) (schemas.Artifact, error) {
	return s.saveText(schemas.ArtifactDOMSnapshot, scenario, slugify(scenario)+".dom.html", html)
}

// SaveConsoleLog stores the browser console lines captured during the
// scenario, one line per entry.
func (s *ArtifactStore) SaveConsoleLog(scenario string, lines []schemas.ConsoleLine) (schemas.Artifact, error) {
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%s %s: %s\n", line.Timestamp.Format(time.RFC3339Nano), line.Level, line.Text)
	}
	return s.saveText(schemas.ArtifactConsoleLog, scenario, slugify(scenario)+".console.log", b.String())
}

// SaveServerLog stores shop access-log lines correlated with the scenario.
func (s *ArtifactStore) SaveServerLog(scenario string, lines []string) (schemas.Artifact, error) {
	return s.saveText(schemas.ArtifactServerLog, scenario, slugify(scenario)+".server.log", strings.Join(lines, "\n")+"\n")
}

// SaveCookies stores the session's cookies as indented JSON. The shop keeps
// its cart in a JWT cookie, so this captures the server-side cart state the
// failing page was rendered from.
func (s *ArtifactStore) SaveCookies(scenario string, cookies []*network.Cookie) (schemas.Artifact, error) {
	payload, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to encode cookies: %w", err)
	}
	return s.saveText(schemas.ArtifactCookies, scenario, slugify(scenario)+".cookies.json", string(payload)+"\n")
}

func (s *ArtifactStore) saveText(kind schemas.ArtifactKind, scenario, name, content string) (schemas.Artifact, error) {
	if !s.compress {
		if err := os.WriteFile(filepath.Join(s.dir, name), []byte(content), 0o644); err != nil {
			return schemas.Artifact{}, fmt.Errorf("failed to write %s artifact: %w", kind, err)
		}
		s.logger.Debug("Saved artifact", zap.String("scenario", scenario), zap.String("path", name))
		return schemas.Artifact{Kind: kind, Path: name}, nil
	}

	name += ".br"
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to create %s artifact: %w", kind, err)
	}
	bw := brotli.NewWriterLevel(f, brotli.BestCompression)
	_, writeErr := bw.Write([]byte(content))
	flushErr := bw.Close()
	closeErr := f.Close()
	if writeErr != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to compress %s artifact: %w", kind, writeErr)
	}
	if flushErr != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to flush %s artifact: %w", kind, flushErr)
	}
	if closeErr != nil {
		return schemas.Artifact{}, fmt.Errorf("failed to close %s artifact: %w", kind, closeErr)
	}
	s.logger.Debug("Saved compressed artifact", zap.String("scenario", scenario), zap.String("path", name))
	return schemas.Artifact{Kind: kind, Path: name, Compressed: true}, nil
}

func slugify(name string) string {
	slug := slugSanitizer.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
