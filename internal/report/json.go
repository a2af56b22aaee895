// internal/report/json.go
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/trolleyhq/trolley/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSON renders the full run summary as indented JSON. The JSON report
// is the machine-readable counterpart of the JUnit file and carries
// everything the runner recorded, including step details and artifact
// references.
func WriteJSON(summary *schemas.RunSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	return nil
}

// WriteJSONFile writes the JSON report to path, creating parent directories
// as needed.
func WriteJSONFile(summary *schemas.RunSummary, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON report file %s: %w", path, err)
	}
	writeErr := WriteJSON(summary, f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close JSON report file %s: %w", path, closeErr)
	}
	return nil
}
