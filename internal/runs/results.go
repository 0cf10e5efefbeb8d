package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/hookflow/hookflow/internal/database"
)

// ResultStore handles database operations for node execution results.
type ResultStore struct {
	db *database.DB
}

// NewResultStore creates a new node result store.
func NewResultStore(db *database.DB) *ResultStore {
	return &ResultStore{db: db}
}

// Append records one node execution. Results are never updated or deleted
// within the retention window.
func (s *ResultStore) Append(ctx context.Context, res *NodeResult) error {
	if res.ID == "" {
		res.ID = database.GenerateShortID()
	}
	if res.Attempts < 1 {
		res.Attempts = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_results (id, run_id, node_id, node_type, status, started_at,
			finished_at, duration_ms, attempts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.RunID, res.NodeID, res.NodeType, string(res.Status),
		res.StartedAt.UTC().Format(time.RFC3339), res.FinishedAt.UTC().Format(time.RFC3339),
		res.DurationMs, res.Attempts, res.Error)
	if err != nil {
		return fmt.Errorf("inserting node result: %w", err)
	}

	return nil
}

// ListByRun returns all node results for a run in execution order.
func (s *ResultStore) ListByRun(ctx context.Context, runID string) ([]*NodeResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, node_id, node_type, status, started_at, finished_at,
		       duration_ms, attempts, error
		FROM node_results
		WHERE run_id = ?
		ORDER BY started_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying node results: %w", err)
	}
	defer rows.Close()

	var results []*NodeResult
	for rows.Next() {
		var res NodeResult
		var status, startedAt, finishedAt string
		if err := rows.Scan(&res.ID, &res.RunID, &res.NodeID, &res.NodeType, &status,
			&startedAt, &finishedAt, &res.DurationMs, &res.Attempts, &res.Error); err != nil {
			return nil, fmt.Errorf("scanning node result: %w", err)
		}
		res.Status = NodeResultStatus(status)
		res.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		res.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		results = append(results, &res)
	}

	return results, rows.Err()
}

// AvgDurationByType returns the historical average execution duration per
// node type. Used for remaining-time estimates.
func (s *ResultStore) AvgDurationByType(ctx context.Context) (map[string]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_type, AVG(duration_ms) FROM node_results GROUP BY node_type
	`)
	if err != nil {
		return nil, fmt.Errorf("querying node durations: %w", err)
	}
	defer rows.Close()

	averages := make(map[string]time.Duration)
	for rows.Next() {
		var nodeType string
		var avgMs float64
		if err := rows.Scan(&nodeType, &avgMs); err != nil {
			return nil, fmt.Errorf("scanning node duration: %w", err)
		}
		averages[nodeType] = time.Duration(avgMs) * time.Millisecond
	}

	return averages, rows.Err()
}

// NodeTypeStats aggregates per-node-type performance.
type NodeTypeStats struct {
	AvgDurationMs float64 `json:"avgDuration"`
	Count         int     `json:"count"`
	FailureRate   float64 `json:"failureRate"`
}

// StatsByTypeSince aggregates node results recorded within the window.
func (s *ResultStore) StatsByTypeSince(ctx context.Context, since time.Time) (map[string]NodeTypeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_type,
		       AVG(duration_ms),
		       COUNT(*),
		       AVG(CASE WHEN status = ? THEN 1.0 ELSE 0.0 END)
		FROM node_results
		WHERE started_at >= ?
		GROUP BY node_type
	`, string(NodeResultFailure), since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying node stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]NodeTypeStats)
	for rows.Next() {
		var nodeType string
		var st NodeTypeStats
		if err := rows.Scan(&nodeType, &st.AvgDurationMs, &st.Count, &st.FailureRate); err != nil {
			return nil, fmt.Errorf("scanning node stats: %w", err)
		}
		stats[nodeType] = st
	}

	return stats, rows.Err()
}
