// Package runs stores scenario runs and their per-node execution results.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hookflow/hookflow/internal/database"
)

var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, scenario_id, trigger_key, connection_id, correlation_id, payload,
	status, start_time, end_time, duration_ms, current_node_id, progress,
	estimated_remaining_ms, error`

// Store handles database operations for scenario runs.
type Store struct {
	db *database.DB
}

// NewStore creates a new run store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateTx inserts a pending run inside an open transaction. Intake creates
// runs in the same transaction that claims the idempotency key, so a lost
// claim race rolls the runs back with it.
func (s *Store) CreateTx(ctx context.Context, tx *database.Tx, run *Run) error {
	if run.ID == "" {
		run.ID = database.GenerateShortID()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}

	var connectionID sql.NullString
	if run.ConnectionID != "" {
		connectionID = sql.NullString{String: run.ConnectionID, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO scenario_runs (id, scenario_id, trigger_key, connection_id, correlation_id,
			payload, status, start_time, progress, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '')
	`, run.ID, run.ScenarioID, run.TriggerKey, connectionID, run.CorrelationID,
		run.Payload, string(run.Status), run.StartTime.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting scenario run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM scenario_runs WHERE id = ?
	`, id)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}

	return run, nil
}

// ClaimPending atomically claims the oldest pending run for execution,
// transitioning it to running. Returns nil when no run is pending.
func (s *Store) ClaimPending(ctx context.Context) (*Run, error) {
	var claimed *Run

	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+runColumns+` FROM scenario_runs
			WHERE status = ?
			ORDER BY start_time
			LIMIT 1
		`, string(StatusPending))

		run, err := scanRun(row.Scan)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("querying pending run: %w", err)
		}

		// Guarded update keeps the claim atomic under concurrent workers.
		result, err := tx.ExecContext(ctx, `
			UPDATE scenario_runs SET status = ? WHERE id = ? AND status = ?
		`, string(StatusRunning), run.ID, string(StatusPending))
		if err != nil {
			return fmt.Errorf("claiming run: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		run.Status = StatusRunning
		claimed = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// RequeueRunning resets every running run back to pending. The engine
// calls it once at startup: a crash mid-run leaves the claim behind, and
// no worker will ever transition that run again on its own.
func (s *Store) RequeueRunning(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scenario_runs
		SET status = ?, progress = 0, current_node_id = NULL, estimated_remaining_ms = NULL
		WHERE status = ?
	`, string(StatusPending), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("requeuing running runs: %w", err)
	}

	return result.RowsAffected()
}

// UpdateProgress records live execution state for a running run. Updates
// on runs that already reached a terminal status are ignored, preserving
// status monotonicity.
func (s *Store) UpdateProgress(ctx context.Context, runID string, progress int, currentNodeID string, estimatedRemaining *time.Duration) error {
	var remaining sql.NullInt64
	if estimatedRemaining != nil {
		remaining = sql.NullInt64{Int64: estimatedRemaining.Milliseconds(), Valid: true}
	}

	var nodeID sql.NullString
	if currentNodeID != "" {
		nodeID = sql.NullString{String: currentNodeID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE scenario_runs
		SET progress = ?, current_node_id = ?, estimated_remaining_ms = ?
		WHERE id = ? AND status = ?
	`, progress, nodeID, remaining, runID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("updating run progress: %w", err)
	}

	return nil
}

// Finish drives a run to a terminal status. The guard on the current
// status enforces monotonicity: a finished run never transitions again.
func (s *Store) Finish(ctx context.Context, runID string, status Status, runErr string, endTime time.Time, duration time.Duration) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %s", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE scenario_runs
		SET status = ?, error = ?, end_time = ?, duration_ms = ?, progress = 100,
		    current_node_id = NULL, estimated_remaining_ms = NULL
		WHERE id = ? AND status = ?
	`, string(status), runErr, endTime.UTC().Format(time.RFC3339), duration.Milliseconds(),
		runID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w or not running: %s", ErrRunNotFound, runID)
	}

	return nil
}

// ListByStatus returns runs in a given status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM scenario_runs WHERE status = ? ORDER BY start_time DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// TerminalSince returns terminal runs whose start time falls within the
// window. The aggregate view reads only terminal runs so in-flight runs
// are never double-counted against the live view.
func (s *Store) TerminalSince(ctx context.Context, since time.Time) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM scenario_runs
		WHERE status IN (?, ?) AND start_time >= ?
		ORDER BY start_time
	`, string(StatusSucceeded), string(StatusFailed), since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying terminal runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// TerminalSinceForScenario is TerminalSince restricted to one scenario.
func (s *Store) TerminalSinceForScenario(ctx context.Context, scenarioID string, since time.Time) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM scenario_runs
		WHERE scenario_id = ? AND status IN (?, ?) AND start_time >= ?
		ORDER BY start_time
	`, scenarioID, string(StatusSucceeded), string(StatusFailed), since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying terminal runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// DeleteTerminalOlderThan prunes terminal runs (and their node results,
// via cascade) outside the retention window.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scenario_runs
		WHERE start_time < ? AND status IN (?, ?)
	`, cutoff, string(StatusSucceeded), string(StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("deleting old runs: %w", err)
	}

	return result.RowsAffected()
}

func collectRuns(rows *sql.Rows) ([]*Run, error) {
	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return result, nil
}

func scanRun(scan func(...any) error) (*Run, error) {
	var run Run
	var connectionID, endTime, currentNodeID sql.NullString
	var startTime, status string
	var remaining sql.NullInt64

	err := scan(&run.ID, &run.ScenarioID, &run.TriggerKey, &connectionID, &run.CorrelationID,
		&run.Payload, &status, &startTime, &endTime, &run.DurationMs, &currentNodeID,
		&run.Progress, &remaining, &run.Error)
	if err != nil {
		return nil, err
	}

	run.Status = Status(status)
	run.ConnectionID = connectionID.String
	run.CurrentNodeID = currentNodeID.String
	run.StartTime, _ = time.Parse(time.RFC3339, startTime)

	if endTime.Valid {
		if t, parseErr := time.Parse(time.RFC3339, endTime.String); parseErr == nil {
			run.EndTime = &t
		}
	}
	if remaining.Valid {
		v := remaining.Int64
		run.EstimatedRemainingMs = &v
	}

	return &run, nil
}
