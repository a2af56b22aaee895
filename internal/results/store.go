// internal/results/store.go

// Package results persists finished runs to PostgreSQL so pass rates and
// flaky scenarios can be tracked across builds. The store is optional; it is
// only wired up when a database URL is configured.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/trolleyhq/trolley/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides the PostgreSQL run-history backend.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("results_store"),
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    suite_name TEXT NOT NULL,
    base_url TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    duration_ns BIGINT NOT NULL,
    vcs_revision TEXT NOT NULL DEFAULT '',
    vcs_branch TEXT NOT NULL DEFAULT '',
    passed INT NOT NULL,
    failed INT NOT NULL,
    skipped INT NOT NULL,
    artifacts_dir TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS scenario_results (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    tags TEXT[],
    outcome TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    duration_ns BIGINT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    steps JSONB NOT NULL DEFAULT '[]',
    artifacts JSONB NOT NULL DEFAULT '[]',
    server_errors JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, name)
);
`

// EnsureSchema creates the runs and scenario_results tables when they do not
// exist yet. Idempotent, suitable for first-run setup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create results schema: %w", err)
	}
	return nil
}

const insertRunSQL = `
INSERT INTO runs (run_id, suite_name, base_url, started_at, duration_ns, vcs_revision, vcs_branch, passed, failed, skipped, artifacts_dir)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`

var scenarioColumns = []string{
	"run_id", "name", "tags", "outcome", "started_at", "duration_ns",
	"error", "steps", "artifacts", "server_errors",
}

// SaveRun persists the run row and all scenario rows in one transaction.
// Step, artifact and server-error details are stored as JSONB so the history
// keeps enough context to diagnose a failure without the artifact files.
func (s *Store) SaveRun(ctx context.Context, summary *schemas.RunSummary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed, which is
		// the expected outcome and not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, insertRunSQL,
		summary.RunID, summary.SuiteName, summary.BaseURL,
		summary.StartedAt.UTC(), summary.Duration.Nanoseconds(),
		summary.VCS.Revision, summary.VCS.Branch,
		summary.Passed, summary.Failed, summary.Skipped,
		summary.ArtifactsDir,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", summary.RunID, err)
	}

	if len(summary.Scenarios) > 0 {
		if err := s.copyScenarios(ctx, tx, summary); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) copyScenarios(ctx context.Context, tx pgx.Tx, summary *schemas.RunSummary) error {
	rows := make([][]interface{}, len(summary.Scenarios))
	for i, scenario := range summary.Scenarios {
		steps, err := marshalJSONB(scenario.Steps)
		if err != nil {
			return fmt.Errorf("failed to marshal steps for %q: %w", scenario.Name, err)
		}
		artifacts, err := marshalJSONB(scenario.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to marshal artifacts for %q: %w", scenario.Name, err)
		}
		serverErrors, err := marshalJSONB(scenario.ServerErrors)
		if err != nil {
			return fmt.Errorf("failed to marshal server errors for %q: %w", scenario.Name, err)
		}

		rows[i] = []interface{}{
			summary.RunID, scenario.Name, scenario.Tags, string(scenario.Outcome),
			scenario.StartedAt.UTC(), scenario.Duration.Nanoseconds(),
			scenario.Error, steps, artifacts, serverErrors,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"scenario_results"}, scenarioColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy scenario results: %w", err)
	}
	if int(copyCount) != len(summary.Scenarios) {
		return fmt.Errorf("mismatch in copied scenario count: expected %d, got %d", len(summary.Scenarios), copyCount)
	}
	return nil
}

// marshalJSONB renders v for a JSONB column. Nil and empty slices become an
// empty JSON array so consumers never see SQL NULL.
func marshalJSONB(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("[]"), nil
	}
	return raw, nil
}

const recentRunsSQL = `
SELECT run_id, suite_name, base_url, started_at, duration_ns, vcs_revision, vcs_branch, passed, failed, skipped, artifacts_dir
FROM runs
ORDER BY started_at DESC
LIMIT $1;
`

// RecentRuns returns the newest runs, most recent first, without their
// scenario details.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error) {
	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunSummary
	for rows.Next() {
		var (
			run        schemas.RunSummary
			durationNS int64
		)
		err := rows.Scan(
			&run.RunID, &run.SuiteName, &run.BaseURL,
			&run.StartedAt, &durationNS,
			&run.VCS.Revision, &run.VCS.Branch,
			&run.Passed, &run.Failed, &run.Skipped,
			&run.ArtifactsDir,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Duration = time.Duration(durationNS)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}
