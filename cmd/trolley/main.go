// File: cmd/trolley/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/trolleyhq/trolley/cmd"
	"github.com/trolleyhq/trolley/internal/observability"
)

func main() {
	// Interrupts cancel the run context; the runner drains, reports what did
	// execute, and the command returns an error.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, cmd.ErrScenariosFailed) {
			// Scenario failures are the tool working as intended; keep the
			// conventional test-runner exit code.
			os.Exit(1)
		}
		os.Exit(2)
	}
}
