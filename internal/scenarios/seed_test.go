package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/internal/secrets"
)

const seedYAML = `
connections:
  - id: conn-github
    organization_id: org-1
    name: GitHub
    webhook_secret: whsec_github

scenarios:
  - id: scen-orders
    organization_id: org-1
    name: Order intake
    trigger_key: order.created
    status: active
    nodes:
      - id: n1
        type: transform
        position: 0
        config:
          mappings:
            order_id: id
      - id: n2
        type: log
        position: 1
        config:
          message: order received
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConnStore(t *testing.T, store *Store) *secrets.Store {
	t.Helper()

	key, err := secrets.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := secrets.NewCipher(key)
	require.NoError(t, err)

	return secrets.NewStore(store.db, cipher, 0)
}

func TestSeed_CreatesRecords(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	connStore := testConnStore(t, store)
	ctx := context.Background()

	path := writeSeedFile(t, seedYAML)
	require.NoError(t, Seed(ctx, path, store, connStore))

	sc, err := store.Get(ctx, "scen-orders")
	require.NoError(t, err)
	require.Equal(t, StatusActive, sc.Status)
	require.Len(t, sc.Nodes, 2)
	require.Equal(t, "transform", sc.Nodes[0].Type)

	conn, err := connStore.Get(ctx, "conn-github")
	require.NoError(t, err)
	require.Equal(t, "GitHub", conn.Name)

	creds, err := connStore.GetCredentials(ctx, "conn-github")
	require.NoError(t, err)
	require.Equal(t, "whsec_github", creds.WebhookSecret)
}

func TestSeed_SkipsExistingRecords(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	connStore := testConnStore(t, store)
	ctx := context.Background()

	path := writeSeedFile(t, seedYAML)
	require.NoError(t, Seed(ctx, path, store, connStore))

	// Operator renames the scenario; reseeding must not undo it.
	require.NoError(t, store.Update(ctx, "scen-orders", "Edited name", StatusDisabled))
	require.NoError(t, Seed(ctx, path, store, connStore))

	sc, err := store.Get(ctx, "scen-orders")
	require.NoError(t, err)
	require.Equal(t, "Edited name", sc.Name)
	require.Equal(t, StatusDisabled, sc.Status)
}

func TestSeed_MissingFile(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	connStore := testConnStore(t, store)

	err := Seed(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), store, connStore)
	require.Error(t, err)
}

func TestSeed_InvalidYAML(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	connStore := testConnStore(t, store)

	path := writeSeedFile(t, "scenarios: [not: {valid")
	err := Seed(context.Background(), path, store, connStore)
	require.Error(t, err)
}
