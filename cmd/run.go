package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
	"github.com/trolleyhq/trolley/internal/browser"
	"github.com/trolleyhq/trolley/internal/config"
	"github.com/trolleyhq/trolley/internal/demoshop"
	"github.com/trolleyhq/trolley/internal/observability"
	"github.com/trolleyhq/trolley/internal/report"
	"github.com/trolleyhq/trolley/internal/results"
	"github.com/trolleyhq/trolley/internal/runner"
	"github.com/trolleyhq/trolley/internal/scenarios"
)

// ErrScenariosFailed marks a run that completed with failing scenarios, so
// main exits nonzero without treating the run as an infrastructure error.
var ErrScenariosFailed = errors.New("one or more scenarios failed")

const shutdownTimeout = 15 * time.Second

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Executes the scenario suite and writes reports",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			bindings := map[string]string{
				"suite.filter":       "filter",
				"suite.parallelism":  "parallelism",
				"suite.base_url":     "base-url",
				"suite.artifact_dir": "artifact-dir",
				"report.junit_path":  "junit",
				"report.json_path":   "json",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context from main.go is signal-aware.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal now that PreRunE bound the flag overrides.
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize suite components: %w", err)
			}
			defer components.Shutdown()

			summary, runErr := components.Runner.Run(ctx)

			// The summary is written out even for an interrupted run; the
			// scenarios that did execute are worth keeping.
			if err := writeReports(cfg, components.ArtifactDir, summary, logger); err != nil {
				return err
			}
			if components.Results != nil {
				if err := components.Results.SaveRun(ctx, summary); err != nil {
					logger.Error("Failed to persist run", zap.Error(err))
				}
			}

			printSummary(cmd, summary)

			if runErr != nil {
				return runErr
			}
			if summary.HasFailures() {
				return fmt.Errorf("%d of %d scenarios failed: %w",
					summary.Failed, len(summary.Scenarios), ErrScenariosFailed)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("filter", "f", "", "Run only scenarios whose name or tags contain this substring. (Overrides config/env)")
	runCmd.Flags().IntP("parallelism", "j", 0, "Number of scenarios running concurrently. (Overrides config/env)")
	runCmd.Flags().String("base-url", "", "Target an already-running storefront instead of booting the bundled shop.")
	runCmd.Flags().String("artifact-dir", "", "Directory for failure artifacts and reports.")
	runCmd.Flags().String("junit", "", "JUnit XML report path (default <artifact dir>/junit.xml).")
	runCmd.Flags().String("json", "", "JSON report path (default <artifact dir>/run.json).")

	return runCmd
}

// runComponents holds the initialized services for one suite run.
type runComponents struct {
	Shop        *demoshop.Shop
	Manager     *browser.Manager
	Watcher     *runner.AccessWatcher
	Runner      *runner.Runner
	Results     *results.Store
	DBPool      *pgxpool.Pool
	ArtifactDir string

	logger *zap.Logger
}

// Shutdown closes the components in reverse dependency order. Safe to call
// with partially initialized components.
func (rc *runComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rc.Watcher != nil {
		if err := rc.Watcher.Stop(); err != nil {
			rc.logger.Warn("Access log watcher stopped with error", zap.Error(err))
		}
	}
	if rc.Manager != nil {
		if err := rc.Manager.Shutdown(shutdownCtx); err != nil {
			rc.logger.Warn("Browser manager shutdown failed", zap.Error(err))
		}
	}
	if rc.Shop != nil {
		if err := rc.Shop.Shutdown(shutdownCtx); err != nil {
			rc.logger.Warn("Demo shop shutdown failed", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection for the run command.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{logger: logger}

	// 1. Artifact store. Reports and failure evidence share one per-run
	// directory under the configured artifact root.
	components.ArtifactDir = filepath.Join(cfg.Suite.ArtifactDir, time.Now().Format("20060102-150405"))
	artifacts, err := report.NewArtifactStore(components.ArtifactDir, cfg.Report.CompressArtifacts, logger)
	if err != nil {
		return components, err
	}

	// 2. Target storefront: the bundled shop unless base_url points at an
	// external instance.
	baseURL := cfg.Suite.BaseURL
	if baseURL == "" {
		shopCfg := cfg.Shop
		if shopCfg.AccessLog == "" {
			shopCfg.AccessLog = filepath.Join(components.ArtifactDir, "access.log")
		}
		shop, err := demoshop.New(shopCfg, logger)
		if err != nil {
			return components, err
		}
		if err := shop.Start(ctx); err != nil {
			return components, err
		}
		components.Shop = shop
		baseURL = shop.BaseURL()

		watcher, err := runner.WatchAccessLog(shop.AccessLogPath(), logger)
		if err != nil {
			return components, err
		}
		components.Watcher = watcher
	} else {
		logger.Info("Targeting external storefront; server error correlation disabled",
			zap.String("base_url", baseURL))
	}

	// 3. Browser manager. Chrome itself starts lazily with the first session.
	components.Manager = browser.NewManager(cfg, logger)

	// 4. Scenario registry.
	registry := runner.NewRegistry()
	if err := scenarios.Register(registry); err != nil {
		return components, err
	}

	// 5. Runner.
	opts := []runner.Option{
		runner.WithArtifactStore(artifacts),
		runner.WithVCSInfo(report.ResolveVCS(".", logger)),
	}
	if components.Watcher != nil {
		opts = append(opts, runner.WithServerErrorSource(components.Watcher))
	}
	components.Runner = runner.New(cfg, logger, runner.NewManagerFactory(components.Manager), registry, baseURL, opts...)

	// 6. Optional run-history store.
	if cfg.Results.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Results.DatabaseURL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to results database: %w", err)
		}
		components.DBPool = pool

		store, err := results.New(ctx, pool, logger)
		if err != nil {
			return components, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return components, err
		}
		components.Results = store
	}

	return components, nil
}

// writeReports renders the summary into JUnit XML and JSON. Unset paths
// default into the run's artifact directory so every run leaves a bundle.
func writeReports(cfg *config.Config, artifactDir string, summary *schemas.RunSummary, logger *zap.Logger) error {
	junitPath := cfg.Report.JUnitPath
	if junitPath == "" {
		junitPath = filepath.Join(artifactDir, "junit.xml")
	}
	jsonPath := cfg.Report.JSONPath
	if jsonPath == "" {
		jsonPath = filepath.Join(artifactDir, "run.json")
	}

	if err := report.WriteJUnitFile(summary, junitPath); err != nil {
		return err
	}
	if err := report.WriteJSONFile(summary, jsonPath); err != nil {
		return err
	}
	logger.Info("Reports written",
		zap.String("junit", junitPath), zap.String("json", jsonPath))
	return nil
}

// printSummary writes the human-readable run tail to the command's stdout.
func printSummary(cmd *cobra.Command, summary *schemas.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  passed: %d  failed: %d  skipped: %d\n", summary.Passed, summary.Failed, summary.Skipped)
	for _, scenario := range summary.Scenarios {
		if scenario.Outcome != schemas.OutcomeFailed {
			continue
		}
		fmt.Fprintf(out, "  FAILED %s: %s\n", scenario.Name, scenario.Error)
	}
	if summary.ArtifactsDir != "" {
		fmt.Fprintf(out, "  artifacts: %s\n", summary.ArtifactsDir)
	}
}
