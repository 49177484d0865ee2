package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// FromConn wraps an existing connection pool
func FromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// ==================== Schema ====================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS walkthrough_runs (
		id VARCHAR(36) PRIMARY KEY,
		temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
		temporal_run_id VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		screenshot_path VARCHAR(512) NOT NULL DEFAULT '',
		error_message TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		started_at TIMESTAMP NULL,
		completed_at TIMESTAMP NULL,
		INDEX idx_runs_started (started_at)
	)`,
	`CREATE TABLE IF NOT EXISTS walkthrough_steps (
		run_id VARCHAR(36) NOT NULL,
		sequence INT NOT NULL,
		name VARCHAR(64) NOT NULL,
		checkpoint VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL,
		error_kind VARCHAR(32) NOT NULL DEFAULT '',
		error_message TEXT,
		artifact_path VARCHAR(512) NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		started_at TIMESTAMP NULL,
		PRIMARY KEY (run_id, sequence),
		FOREIGN KEY (run_id) REFERENCES walkthrough_runs(id) ON DELETE CASCADE
	)`,
}

// Migrate creates the run history tables when missing
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// ==================== Walkthrough Runs ====================

// CreateRun inserts a pending run
func (db *DB) CreateRun(ctx context.Context, run *models.RunRecord) error {
	query := `
		INSERT INTO walkthrough_runs (id, temporal_workflow_id, temporal_run_id, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if run.StartedAt == nil {
		now := time.Now()
		run.StartedAt = &now
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AttachWorkflow records the Temporal execution hosting a run
func (db *DB) AttachWorkflow(ctx context.Context, id, workflowID, runID string) error {
	query := `
		UPDATE walkthrough_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?, status = ?
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, models.StatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to attach workflow: %w", err)
	}
	return nil
}

const runColumns = `id, temporal_workflow_id, temporal_run_id, status, screenshot_path,
		       COALESCE(error_message, ''), duration_ms, started_at, completed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.RunRecord, error) {
	var run models.RunRecord
	err := row.Scan(
		&run.ID,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&run.ScreenshotPath,
		&run.ErrorMessage,
		&run.Duration,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run and its step results; a missing run yields nil, nil
func (db *DB) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM walkthrough_runs WHERE id = ?`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	steps, err := db.GetStepResults(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Steps = steps
	return run, nil
}

// ListRuns returns the most recent runs first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM walkthrough_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// UpdateRunStatus updates the status of a run, stamping completion for terminal statuses
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE walkthrough_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// ==================== Step Results ====================

// SaveResult stores the final outcome of a run and replaces its step results
func (db *DB) SaveResult(ctx context.Context, result models.RunResult) error {
	runQuery := `
		INSERT INTO walkthrough_runs (id, status, screenshot_path, error_message, duration_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		    status = VALUES(status),
		    screenshot_path = VALUES(screenshot_path),
		    error_message = VALUES(error_message),
		    duration_ms = VALUES(duration_ms),
		    completed_at = VALUES(completed_at)
	`
	stepQuery := `
		INSERT INTO walkthrough_steps (run_id, sequence, name, checkpoint, status, error_kind, error_message, artifact_path, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	completed := time.Now()
	started := completed.Add(-time.Duration(result.TotalDuration) * time.Millisecond)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, runQuery,
		result.RunID,
		result.Status,
		result.ScreenshotPath,
		result.ErrorMessage,
		result.TotalDuration,
		started,
		completed,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM walkthrough_steps WHERE run_id = ?`, result.RunID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, stepQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, step := range result.Steps {
		_, err := stmt.ExecContext(ctx,
			result.RunID,
			step.Sequence,
			step.Name,
			step.Checkpoint,
			step.Status,
			step.ErrorKind,
			step.ErrorMessage,
			step.ArtifactPath,
			step.Duration,
			step.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

// GetStepResults retrieves the step results of a run in execution order
func (db *DB) GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	query := `
		SELECT sequence, name, checkpoint, status, error_kind, COALESCE(error_message, ''),
		       artifact_path, duration_ms, started_at
		FROM walkthrough_steps
		WHERE run_id = ?
		ORDER BY sequence
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var steps []models.StepResult
	for rows.Next() {
		var step models.StepResult
		err := rows.Scan(
			&step.Sequence,
			&step.Name,
			&step.Checkpoint,
			&step.Status,
			&step.ErrorKind,
			&step.ErrorMessage,
			&step.ArtifactPath,
			&step.Duration,
			&step.StartedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}

	return steps, nil
}
