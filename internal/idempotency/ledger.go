// Package idempotency enforces at-most-once processing of webhook deliveries.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/envelope"
)

// ErrMissingKey is returned when no idempotency key can be derived from a
// delivery. Processing without one cannot guarantee at-most-once semantics,
// so intake fails closed.
var ErrMissingKey = errors.New("missing idempotency key")

// Record maps an idempotency key to the outcome of its first processing.
// Records are immutable once written.
type Record struct {
	Key               string    // Derived idempotency key
	FirstRunID        string    // Run created by the first accepted delivery
	ScenariosExecuted int       // Number of runs created by the first delivery
	SeenAt            time.Time // When the key was first claimed
}

// DeriveKey derives the idempotency key for a delivery: an explicit
// Idempotency-Key / X-Idempotency-Key header wins, otherwise a key is
// synthesized from the trigger key and the payload's stable identifier.
func DeriveKey(headers map[string]string, triggerKey string, env *envelope.Envelope) (string, error) {
	if key := headerValue(headers, "X-Idempotency-Key"); key != "" {
		return key, nil
	}
	if key := headerValue(headers, "Idempotency-Key"); key != "" {
		return key, nil
	}

	if id, ok := env.StableID(); ok {
		return triggerKey + ":" + id, nil
	}

	return "", ErrMissingKey
}

// headerValue performs a case-insensitive header lookup. Intake headers are
// normalized to a plain map before reaching this package.
func headerValue(headers map[string]string, name string) string {
	if v := headers[name]; v != "" {
		return v
	}

	lower := strings.ToLower(name)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return v
		}
	}

	return ""
}

// Ledger is the durable record of processed delivery keys.
type Ledger struct {
	db *database.DB
}

// NewLedger creates a new idempotency ledger.
func NewLedger(db *database.DB) *Ledger {
	return &Ledger{db: db}
}

// Lookup returns the record for a key, or nil when the key is unseen.
func (l *Ledger) Lookup(ctx context.Context, key string) (*Record, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT idempotency_key, first_run_id, scenarios_executed, seen_at
		FROM idempotency_records
		WHERE idempotency_key = ?
	`, key)

	return scanRecord(row)
}

// ClaimTx records the key inside an open transaction. The primary-key
// insert is the serialization point for concurrent deliveries carrying the
// same key: exactly one transaction claims it, the rest observe zero rows
// affected and must roll back their run creation.
func (l *Ledger) ClaimTx(ctx context.Context, tx *database.Tx, key, firstRunID string, scenariosExecuted int) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO idempotency_records (idempotency_key, first_run_id, scenarios_executed, seen_at)
		VALUES (?, ?, ?, ?)
	`, key, firstRunID, scenariosExecuted, database.Now())
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows > 0, nil
}

// DeleteOlderThan garbage-collects records older than the retention window.
// The window must exceed any realistic sender retry schedule.
func (l *Ledger) DeleteOlderThan(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	result, err := l.db.ExecContext(ctx, `
		DELETE FROM idempotency_records WHERE seen_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting idempotency records: %w", err)
	}

	return result.RowsAffected()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var seenAt string

	err := row.Scan(&rec.Key, &rec.FirstRunID, &rec.ScenariosExecuted, &seenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning idempotency record: %w", err)
	}

	if t, parseErr := time.Parse(time.RFC3339, seenAt); parseErr == nil {
		rec.SeenAt = t
	}

	return &rec, nil
}
