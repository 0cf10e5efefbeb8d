package runs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/envelope"
	"github.com/hookflow/hookflow/internal/scenarios"
)

// correlationSalt keys the correlation-ID digest. Correlation IDs are
// traceable back to their idempotency key but are not usable as a second
// dedup check.
const correlationSalt = "hookflow-correlation"

// Creator allocates scenario runs for matched deliveries.
type Creator struct {
	store *Store
}

// NewCreator creates a run creator.
func NewCreator(store *Store) *Creator {
	return &Creator{store: store}
}

// CorrelationID derives the shared correlation identifier for a delivery:
// a timestamp component for ordering plus a keyed digest of the
// idempotency key for traceability.
func CorrelationID(idempotencyKey string, now time.Time) string {
	mac := hmac.New(sha256.New, []byte(correlationSalt))
	mac.Write([]byte(idempotencyKey))
	digest := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("corr_%d_%s", now.UnixMilli(), digest[:8])
}

// CreateBatchTx creates one pending run per matched scenario inside an
// open transaction and returns the created run IDs in match order.
func (c *Creator) CreateBatchTx(ctx context.Context, tx *database.Tx, matches []*scenarios.Scenario, env *envelope.Envelope, connectionID, correlationID string) ([]string, error) {
	payload, err := env.EncodeData()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(matches))

	for _, sc := range matches {
		run := &Run{
			ScenarioID:    sc.ID,
			TriggerKey:    env.TriggerKey,
			ConnectionID:  connectionID,
			CorrelationID: correlationID,
			Payload:       payload,
			Status:        StatusPending,
			StartTime:     now,
		}

		if err := c.store.CreateTx(ctx, tx, run); err != nil {
			return nil, fmt.Errorf("creating run for scenario %s: %w", sc.ID, err)
		}

		ids = append(ids, run.ID)
	}

	return ids, nil
}
