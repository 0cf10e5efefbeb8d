package secrets

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

func testCipher(t *testing.T) *Cipher {
	t.Helper()

	key, err := GenerateMasterKey()
	require.NoError(t, err)

	cipher, err := NewCipher(key)
	require.NoError(t, err)
	return cipher
}

func TestCipher_RoundTrip(t *testing.T) {
	cipher := testCipher(t)

	sealed, err := cipher.Seal([]byte("whsec_secret"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "whsec_secret")

	plaintext, err := cipher.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "whsec_secret", string(plaintext))
}

func TestCipher_WrongKeyFails(t *testing.T) {
	sealed, err := testCipher(t).Seal([]byte("whsec_secret"))
	require.NoError(t, err)

	_, err = testCipher(t).Open(sealed)
	require.ErrorIs(t, err, ErrDecryptFailure)
}

func TestCipher_UniqueNonces(t *testing.T) {
	cipher := testCipher(t)

	a, err := cipher.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := cipher.Seal([]byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCipher_InvalidKey(t *testing.T) {
	_, err := NewCipher("")
	require.ErrorIs(t, err, ErrNoMasterKey)

	_, err = NewCipher("not-hex")
	require.Error(t, err)

	_, err = NewCipher("abcd") // too short
	require.Error(t, err)
}

func TestCipher_TruncatedSealed(t *testing.T) {
	cipher := testCipher(t)

	_, err := cipher.Open([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidSealed)
}

func TestStore_CreateAndGetCredentials(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, testCipher(t), 0)
	ctx := context.Background()

	id, err := store.Create(ctx, &Connection{
		OrganizationID: "org-1",
		Name:           "Stripe",
	}, &Credentials{
		WebhookSecret: "whsec_stripe",
		Extra:         map[string]string{"api_key": "sk_test"},
	})
	require.NoError(t, err)

	conn, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Stripe", conn.Name)

	creds, err := store.GetCredentials(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "whsec_stripe", creds.WebhookSecret)
	require.Equal(t, "sk_test", creds.Extra["api_key"])

	// Credentials at rest are sealed, not plaintext.
	var stored []byte
	require.NoError(t, db.QueryRow(`SELECT credentials FROM connections WHERE id = ?`, id).Scan(&stored))
	require.NotContains(t, string(stored), "whsec_stripe")
}

func TestStore_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, testCipher(t), 0)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrConnectionNotFound)

	_, err = store.GetCredentials(ctx, "missing")
	require.ErrorIs(t, err, ErrConnectionNotFound)

	err = store.RotateWebhookSecret(ctx, "missing", "new")
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestStore_RotateWebhookSecret(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, testCipher(t), 0)
	ctx := context.Background()

	id, err := store.Create(ctx, &Connection{Name: "Stripe"}, &Credentials{
		WebhookSecret: "whsec_old",
		Extra:         map[string]string{"api_key": "sk_test"},
	})
	require.NoError(t, err)

	require.NoError(t, store.RotateWebhookSecret(ctx, id, "whsec_new"))

	creds, err := store.GetCredentials(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "whsec_new", creds.WebhookSecret)
	// Other credential material survives rotation.
	require.Equal(t, "sk_test", creds.Extra["api_key"])
}

func TestStore_List(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, testCipher(t), 0)
	ctx := context.Background()

	_, err := store.Create(ctx, &Connection{OrganizationID: "org-1", Name: "A"}, &Credentials{})
	require.NoError(t, err)
	_, err = store.Create(ctx, &Connection{OrganizationID: "org-1", Name: "B"}, &Credentials{})
	require.NoError(t, err)
	_, err = store.Create(ctx, &Connection{OrganizationID: "org-2", Name: "C"}, &Credentials{})
	require.NoError(t, err)

	conns, err := store.List(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, conns, 2)
}
