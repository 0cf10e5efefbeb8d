// Package scenarios stores scenario definitions and resolves trigger matches.
package scenarios

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hookflow/hookflow/internal/database"
)

var (
	ErrScenarioNotFound  = errors.New("scenario not found")
	ErrDuplicatePosition = errors.New("duplicate node position")
	ErrInvalidStatus     = errors.New("invalid scenario status")
)

// Store handles database operations for scenarios and their nodes.
type Store struct {
	db *database.DB
}

// NewStore creates a new scenario store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a scenario with its nodes and returns its ID.
func (s *Store) Create(ctx context.Context, sc *Scenario) (string, error) {
	if sc.ID == "" {
		sc.ID = database.GenerateShortID()
	}
	if sc.Status == "" {
		sc.Status = StatusDraft
	}
	if !sc.Status.Valid() {
		return "", ErrInvalidStatus
	}
	if err := checkPositions(sc.Nodes); err != nil {
		return "", err
	}

	now := database.Now()
	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scenarios (id, organization_id, name, trigger_key, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sc.ID, sc.OrganizationID, sc.Name, sc.TriggerKey, string(sc.Status), now, now)
		if err != nil {
			return fmt.Errorf("inserting scenario: %w", err)
		}

		return insertNodes(ctx, tx, sc.ID, sc.Nodes)
	})
	if err != nil {
		return "", err
	}

	return sc.ID, nil
}

// SaveNodes replaces the node list for a scenario. This is the registration
// path consumed by the builder.
func (s *Store) SaveNodes(ctx context.Context, scenarioID string, nodes []NodeSpec) error {
	if err := checkPositions(nodes); err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT 1 FROM scenarios WHERE id = ?`, scenarioID)
		var one int
		if err := row.Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrScenarioNotFound
			}
			return fmt.Errorf("checking scenario: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM scenario_nodes WHERE scenario_id = ?`, scenarioID); err != nil {
			return fmt.Errorf("clearing scenario nodes: %w", err)
		}

		if err := insertNodes(ctx, tx, scenarioID, nodes); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE scenarios SET updated_at = ? WHERE id = ?`, database.Now(), scenarioID); err != nil {
			return fmt.Errorf("touching scenario: %w", err)
		}

		return nil
	})
}

// Update changes a scenario's name and status.
func (s *Store) Update(ctx context.Context, scenarioID, name string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE scenarios SET name = ?, status = ?, updated_at = ? WHERE id = ?
	`, name, string(status), database.Now(), scenarioID)
	if err != nil {
		return fmt.Errorf("updating scenario: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrScenarioNotFound
	}

	return nil
}

// Get retrieves a scenario with its nodes in execution order.
func (s *Store) Get(ctx context.Context, id string) (*Scenario, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, trigger_key, status, created_at, updated_at
		FROM scenarios
		WHERE id = ?
	`, id)

	sc, err := scanScenario(row)
	if err != nil {
		return nil, err
	}

	sc.Nodes, err = s.loadNodes(ctx, sc.ID)
	if err != nil {
		return nil, err
	}

	return sc, nil
}

// FindActiveByTriggerKey returns all active scenarios subscribed to a
// trigger key, with nodes loaded, ordered by scenario ID so the match set
// is deterministic for a given stored state.
func (s *Store) FindActiveByTriggerKey(ctx context.Context, triggerKey string) ([]*Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, trigger_key, status, created_at, updated_at
		FROM scenarios
		WHERE trigger_key = ? AND status = ?
		ORDER BY id
	`, triggerKey, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying scenarios: %w", err)
	}
	defer rows.Close()

	var matches []*Scenario
	for rows.Next() {
		sc, err := scanScenarioRows(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenarios: %w", err)
	}

	for _, sc := range matches {
		sc.Nodes, err = s.loadNodes(ctx, sc.ID)
		if err != nil {
			return nil, err
		}
	}

	return matches, nil
}

// List returns all scenarios for an organization, without nodes.
func (s *Store) List(ctx context.Context, organizationID string) ([]*Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, trigger_key, status, created_at, updated_at
		FROM scenarios
		WHERE organization_id = ?
		ORDER BY created_at
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying scenarios: %w", err)
	}
	defer rows.Close()

	var result []*Scenario
	for rows.Next() {
		sc, err := scanScenarioRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}

	return result, rows.Err()
}

// Name returns the display name of a scenario, or the ID when unknown.
func (s *Store) Name(ctx context.Context, id string) string {
	row := s.db.QueryRowContext(ctx, `SELECT name FROM scenarios WHERE id = ?`, id)
	var name string
	if err := row.Scan(&name); err != nil {
		return id
	}
	return name
}

func (s *Store) loadNodes(ctx context.Context, scenarioID string) ([]NodeSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, position, config
		FROM scenario_nodes
		WHERE scenario_id = ?
		ORDER BY position
	`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("querying scenario nodes: %w", err)
	}
	defer rows.Close()

	var nodes []NodeSpec
	for rows.Next() {
		var node NodeSpec
		var config string
		if err := rows.Scan(&node.ID, &node.Type, &node.Position, &config); err != nil {
			return nil, fmt.Errorf("scanning scenario node: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &node.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling node config: %w", err)
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

func insertNodes(ctx context.Context, tx *database.Tx, scenarioID string, nodes []NodeSpec) error {
	for _, node := range nodes {
		if node.ID == "" {
			node.ID = database.GenerateShortID()
		}
		config := node.Config
		if config == nil {
			config = map[string]any{}
		}
		encoded, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("marshaling node config: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scenario_nodes (id, scenario_id, type, position, config)
			VALUES (?, ?, ?, ?, ?)
		`, node.ID, scenarioID, node.Type, node.Position, string(encoded)); err != nil {
			return fmt.Errorf("inserting scenario node: %w", err)
		}
	}

	return nil
}

func checkPositions(nodes []NodeSpec) error {
	seen := make(map[int]bool, len(nodes))
	for _, node := range nodes {
		if seen[node.Position] {
			return fmt.Errorf("%w: %d", ErrDuplicatePosition, node.Position)
		}
		seen[node.Position] = true
	}
	return nil
}

// SortNodes orders nodes by ascending position in place.
func SortNodes(nodes []NodeSpec) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Position < nodes[j].Position
	})
}

func scanScenario(row *sql.Row) (*Scenario, error) {
	var sc Scenario
	var status, createdAt, updatedAt string

	err := row.Scan(&sc.ID, &sc.OrganizationID, &sc.Name, &sc.TriggerKey, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScenarioNotFound
		}
		return nil, fmt.Errorf("scanning scenario: %w", err)
	}

	sc.Status = Status(status)
	sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &sc, nil
}

func scanScenarioRows(rows *sql.Rows) (*Scenario, error) {
	var sc Scenario
	var status, createdAt, updatedAt string

	err := rows.Scan(&sc.ID, &sc.OrganizationID, &sc.Name, &sc.TriggerKey, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning scenario: %w", err)
	}

	sc.Status = Status(status)
	sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &sc, nil
}
