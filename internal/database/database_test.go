package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"connections", "scenarios", "scenario_nodes", "scenario_runs", "idempotency_records", "node_results"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Second open re-runs the migration check against the same file.
	db, err = Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.Transaction(ctx, func(tx *Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO scenarios (id, organization_id, name, trigger_key, status, created_at, updated_at)
			VALUES ('s1', 'org', 'test', 'order.created', 'draft', ?, ?)
		`, Now(), Now())
		require.NoError(t, execErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scenarios`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestTransaction_Commits(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *Tx) error {
		_, execErr := tx.ExecContext(ctx, `
			INSERT INTO scenarios (id, organization_id, name, trigger_key, status, created_at, updated_at)
			VALUES ('s1', 'org', 'test', 'order.created', 'draft', ?, ?)
		`, Now(), Now())
		return execErr
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scenarios`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestGenerateShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateShortID()
		require.Len(t, id, 15)
		require.False(t, seen[id], "IDs should not repeat")
		seen[id] = true
	}
}
