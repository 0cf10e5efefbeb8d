package scenarios

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testScenario(triggerKey string, status Status) *Scenario {
	return &Scenario{
		OrganizationID: "org-1",
		Name:           "Test scenario",
		TriggerKey:     triggerKey,
		Status:         status,
		Nodes: []NodeSpec{
			{ID: "n2", Type: "log", Position: 1, Config: map[string]any{"message": "second"}},
			{ID: "n1", Type: "transform", Position: 0, Config: map[string]any{}},
		},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.Create(ctx, testScenario("order.created", StatusActive))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sc, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Test scenario", sc.Name)
	require.Equal(t, "order.created", sc.TriggerKey)
	require.Equal(t, StatusActive, sc.Status)

	// Nodes come back in position order regardless of insert order.
	require.Len(t, sc.Nodes, 2)
	require.Equal(t, "n1", sc.Nodes[0].ID)
	require.Equal(t, "n2", sc.Nodes[1].ID)
	require.Equal(t, "second", sc.Nodes[1].Config["message"])
}

func TestStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestStore_Create_DuplicatePosition(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)

	sc := testScenario("order.created", StatusDraft)
	sc.Nodes[0].Position = 0

	_, err := store.Create(context.Background(), sc)
	require.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestStore_Create_InvalidStatus(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)

	sc := testScenario("order.created", Status("archived"))
	_, err := store.Create(context.Background(), sc)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStore_SaveNodes_ReplacesAtomically(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.Create(ctx, testScenario("order.created", StatusActive))
	require.NoError(t, err)

	err = store.SaveNodes(ctx, id, []NodeSpec{
		{ID: "new-1", Type: "filter", Position: 0, Config: map[string]any{"expression": "true"}},
	})
	require.NoError(t, err)

	sc, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, sc.Nodes, 1)
	require.Equal(t, "new-1", sc.Nodes[0].ID)
}

func TestStore_SaveNodes_MissingScenario(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)

	err := store.SaveNodes(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestStore_Update(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.Create(ctx, testScenario("order.created", StatusDraft))
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, id, "Renamed", StatusActive))

	sc, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Renamed", sc.Name)
	require.Equal(t, StatusActive, sc.Status)

	require.ErrorIs(t, store.Update(ctx, id, "x", Status("bogus")), ErrInvalidStatus)
	require.ErrorIs(t, store.Update(ctx, "missing", "x", StatusActive), ErrScenarioNotFound)
}

func TestMatcher_OnlyActiveScenariosMatch(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	matcher := NewMatcher(store)
	ctx := context.Background()

	activeA, err := store.Create(ctx, testScenario("order.created", StatusActive))
	require.NoError(t, err)
	activeB, err := store.Create(ctx, testScenario("order.created", StatusActive))
	require.NoError(t, err)
	_, err = store.Create(ctx, testScenario("order.created", StatusDisabled))
	require.NoError(t, err)
	_, err = store.Create(ctx, testScenario("order.created", StatusDraft))
	require.NoError(t, err)
	_, err = store.Create(ctx, testScenario("invoice.paid", StatusActive))
	require.NoError(t, err)

	matches, err := matcher.Match(ctx, "order.created")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	ids := []string{matches[0].ID, matches[1].ID}
	require.ElementsMatch(t, []string{activeA, activeB}, ids)

	// Matched scenarios carry their nodes for execution.
	require.NotEmpty(t, matches[0].Nodes)
}

func TestMatcher_NoMatches(t *testing.T) {
	db := testDB(t)
	matcher := NewMatcher(NewStore(db))

	matches, err := matcher.Match(context.Background(), "unknown.event")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestMatcher_DisabledStopsFutureMatches(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	matcher := NewMatcher(store)
	ctx := context.Background()

	id, err := store.Create(ctx, testScenario("order.created", StatusActive))
	require.NoError(t, err)

	matches, err := matcher.Match(ctx, "order.created")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, store.Update(ctx, id, "Test scenario", StatusDisabled))

	matches, err = matcher.Match(ctx, "order.created")
	require.NoError(t, err)
	require.Empty(t, matches)
}
