// Package secrets stores external connections and their sealed credentials.
package secrets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookflow/hookflow/internal/database"
)

var ErrConnectionNotFound = errors.New("connection not found")

// Store handles database operations for connections and decrypts their
// credentials on demand.
type Store struct {
	db             *database.DB
	cipher         *Cipher
	decryptTimeout time.Duration
}

// NewStore creates a new connection store.
func NewStore(db *database.DB, cipher *Cipher, decryptTimeout time.Duration) *Store {
	if decryptTimeout <= 0 {
		decryptTimeout = 2 * time.Second
	}
	return &Store{db: db, cipher: cipher, decryptTimeout: decryptTimeout}
}

// Create inserts a connection with sealed credentials and returns its ID.
func (s *Store) Create(ctx context.Context, conn *Connection, creds *Credentials) (string, error) {
	if conn.ID == "" {
		conn.ID = database.GenerateShortID()
	}

	sealed, err := s.seal(creds)
	if err != nil {
		return "", err
	}

	now := database.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (id, organization_id, name, credentials, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conn.ID, conn.OrganizationID, conn.Name, sealed, now, now)
	if err != nil {
		return "", fmt.Errorf("inserting connection: %w", err)
	}

	return conn.ID, nil
}

// Get retrieves a connection by ID without decrypting credentials.
func (s *Store) Get(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM connections
		WHERE id = ?
	`, id)

	var conn Connection
	var createdAt, updatedAt string
	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	conn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &conn, nil
}

// GetCredentials decrypts and returns the credentials for a connection.
// The unseal is bounded by the configured decrypt timeout.
func (s *Store) GetCredentials(ctx context.Context, id string) (*Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, s.decryptTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT credentials FROM connections WHERE id = ?`, id)

	var sealed []byte
	if err := row.Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	return s.open(sealed)
}

// RotateWebhookSecret replaces the webhook secret for a connection,
// leaving other credential material intact.
func (s *Store) RotateWebhookSecret(ctx context.Context, id, newSecret string) error {
	creds, err := s.GetCredentials(ctx, id)
	if err != nil {
		return err
	}

	creds.WebhookSecret = newSecret

	sealed, err := s.seal(creds)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE connections SET credentials = ?, updated_at = ? WHERE id = ?
	`, sealed, database.Now(), id)
	if err != nil {
		return fmt.Errorf("updating credentials: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// List returns all connections for an organization.
func (s *Store) List(ctx context.Context, organizationID string) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM connections
		WHERE organization_id = ?
		ORDER BY created_at
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		var conn Connection
		var createdAt, updatedAt string
		if err := rows.Scan(&conn.ID, &conn.OrganizationID, &conn.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		conn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		conns = append(conns, &conn)
	}

	return conns, rows.Err()
}

func (s *Store) seal(creds *Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshaling credentials: %w", err)
	}

	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealing credentials: %w", err)
	}

	return sealed, nil
}

func (s *Store) open(sealed []byte) (*Credentials, error) {
	plaintext, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshaling credentials: %w", err)
	}

	return &creds, nil
}
