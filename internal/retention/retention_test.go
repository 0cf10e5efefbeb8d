package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/runs"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Path: t.TempDir() + "/test.db"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func seedRecord(t *testing.T, db *database.DB, ledger *idempotency.Ledger, key string, age time.Duration) {
	t.Helper()
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *database.Tx) error {
		claimed, err := ledger.ClaimTx(ctx, tx, key, "run-1", 1)
		require.True(t, claimed)
		return err
	})
	require.NoError(t, err)

	seenAt := time.Now().UTC().Add(-age).Format(time.RFC3339)
	_, err = db.ExecContext(ctx,
		`UPDATE idempotency_records SET seen_at = ? WHERE idempotency_key = ?`, seenAt, key)
	require.NoError(t, err)
}

func seedTerminalRun(t *testing.T, db *database.DB, store *runs.Store, id string, age time.Duration) {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO scenarios (id, organization_id, name, trigger_key, status, created_at, updated_at)
		VALUES ('sc-1', 'org-1', 'retention test', 'order.created', 'active', ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, database.Now(), database.Now())
	require.NoError(t, err)

	start := time.Now().UTC().Add(-age)
	run := &runs.Run{
		ID:            id,
		ScenarioID:    "sc-1",
		TriggerKey:    "order.created",
		CorrelationID: "corr_1_abcd1234",
		Payload:       "{}",
		StartTime:     start,
	}
	err = db.Transaction(ctx, func(tx *database.Tx) error {
		return store.CreateTx(ctx, tx, run)
	})
	require.NoError(t, err)

	claimed, err := store.ClaimPending(ctx)
	require.NoError(t, err)
	require.Equal(t, id, claimed.ID)
	require.NoError(t, store.Finish(ctx, id, runs.StatusSucceeded, "", start.Add(time.Second), time.Second))
}

func TestSweeper_Sweep(t *testing.T) {
	db := testDB(t)
	ledger := idempotency.NewLedger(db)
	runStore := runs.NewStore(db)
	ctx := context.Background()

	cfg := config.RetentionConfig{
		Enabled:           true,
		Schedule:          "@hourly",
		IdempotencyWindow: 24 * time.Hour,
		RunWindow:         7 * 24 * time.Hour,
	}
	sweeper := NewSweeper(cfg, ledger, runStore)

	seedRecord(t, db, ledger, "stale-key", 48*time.Hour)
	seedRecord(t, db, ledger, "fresh-key", time.Hour)
	seedTerminalRun(t, db, runStore, "old-run", 30*24*time.Hour)
	seedTerminalRun(t, db, runStore, "recent-run", time.Hour)

	sweeper.Sweep()

	stale, err := ledger.Lookup(ctx, "stale-key")
	require.NoError(t, err)
	require.Nil(t, stale)

	fresh, err := ledger.Lookup(ctx, "fresh-key")
	require.NoError(t, err)
	require.NotNil(t, fresh)

	_, err = runStore.Get(ctx, "old-run")
	require.ErrorIs(t, err, runs.ErrRunNotFound)

	recent, err := runStore.Get(ctx, "recent-run")
	require.NoError(t, err)
	require.Equal(t, runs.StatusSucceeded, recent.Status)
}

func TestSweeper_SparesPendingRuns(t *testing.T) {
	db := testDB(t)
	ledger := idempotency.NewLedger(db)
	runStore := runs.NewStore(db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO scenarios (id, organization_id, name, trigger_key, status, created_at, updated_at)
		VALUES ('sc-1', 'org-1', 'retention test', 'order.created', 'active', ?, ?)
	`, database.Now(), database.Now())
	require.NoError(t, err)

	// An old run that never reached a terminal status stays visible.
	run := &runs.Run{
		ID:            "stuck-run",
		ScenarioID:    "sc-1",
		TriggerKey:    "order.created",
		CorrelationID: "corr_1_abcd1234",
		Payload:       "{}",
		StartTime:     time.Now().UTC().Add(-30 * 24 * time.Hour),
	}
	err = db.Transaction(ctx, func(tx *database.Tx) error {
		return runStore.CreateTx(ctx, tx, run)
	})
	require.NoError(t, err)

	sweeper := NewSweeper(config.RetentionConfig{
		Enabled:           true,
		Schedule:          "@hourly",
		IdempotencyWindow: time.Hour,
		RunWindow:         time.Hour,
	}, ledger, runStore)
	sweeper.Sweep()

	kept, err := runStore.Get(ctx, "stuck-run")
	require.NoError(t, err)
	require.Equal(t, runs.StatusPending, kept.Status)
}

func TestSweeper_StartDisabled(t *testing.T) {
	sweeper := NewSweeper(config.RetentionConfig{Enabled: false}, nil, nil)
	require.NoError(t, sweeper.Start())
}

func TestSweeper_StartInvalidSchedule(t *testing.T) {
	db := testDB(t)
	sweeper := NewSweeper(config.RetentionConfig{
		Enabled:  true,
		Schedule: "not a cron spec",
	}, idempotency.NewLedger(db), runs.NewStore(db))

	require.Error(t, sweeper.Start())
}
