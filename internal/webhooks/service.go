// Package webhooks implements inbound webhook verification and intake.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/envelope"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/metrics"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
	"github.com/hookflow/hookflow/internal/secrets"
)

var (
	// ErrUnauthorized rejects a delivery with a missing or invalid signature.
	ErrUnauthorized = errors.New("invalid webhook signature")
	// ErrReplayDetected rejects a delivery whose timestamp fell outside the
	// replay window. Reported distinctly from ErrUnauthorized so operators
	// can tell clock skew from tampering.
	ErrReplayDetected = errors.New("webhook replay detected")

	errLostClaimRace = errors.New("idempotency key claimed concurrently")
)

// Result is the intake outcome returned to the webhook sender.
type Result struct {
	Success           bool   `json:"success"`
	Idempotent        bool   `json:"idempotent"`
	RunID             string `json:"runId,omitempty"`
	Status            string `json:"status,omitempty"`
	ScenariosExecuted int    `json:"scenariosExecuted"`
	CorrelationID     string `json:"correlationId,omitempty"`
	Warning           string `json:"warning,omitempty"`
}

// Service sequences the intake pipeline: signature verification,
// idempotency, payload normalization, scenario matching and run creation.
// It returns as soon as idempotency is settled and runs exist; node
// execution happens asynchronously in the engine.
type Service struct {
	cfg     config.WebhookConfig
	db      *database.DB
	secrets *secrets.Store
	ledger  *idempotency.Ledger
	matcher *scenarios.Matcher
	creator *runs.Creator
	runs    *runs.Store
}

// NewService creates a webhook intake service.
func NewService(cfg config.WebhookConfig, db *database.DB, secretStore *secrets.Store, ledger *idempotency.Ledger, matcher *scenarios.Matcher, creator *runs.Creator, runStore *runs.Store) *Service {
	return &Service{
		cfg:     cfg,
		db:      db,
		secrets: secretStore,
		ledger:  ledger,
		matcher: matcher,
		creator: creator,
		runs:    runStore,
	}
}

// Process handles one inbound delivery. connectionID is empty for triggers
// not bound to a specific connection; signature verification only applies
// when a connection is present.
func (s *Service) Process(ctx context.Context, triggerKey, connectionID string, body []byte, headers map[string]string) (*Result, error) {
	if connectionID != "" {
		if err := s.verify(ctx, connectionID, body, headers); err != nil {
			return nil, err
		}
	}

	env, err := envelope.Normalize(triggerKey, body)
	if err != nil {
		metrics.RecordWebhookDelivery(triggerKey, "rejected")
		return nil, err
	}

	key, err := idempotency.DeriveKey(headers, triggerKey, env)
	if err != nil {
		metrics.RecordWebhookDelivery(triggerKey, "rejected")
		return nil, err
	}

	// Fast path: already processed. Return the original outcome instead
	// of re-executing.
	record, err := s.ledger.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return s.replayResult(ctx, triggerKey, record)
	}

	matches, err := s.matcher.Match(ctx, triggerKey)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		// Reportable but not fatal: acknowledge so the sender does not
		// retry, but signal that no work was done.
		log.Info().Str("trigger_key", triggerKey).Msg("No matching scenario for delivery")
		metrics.RecordWebhookDelivery(triggerKey, "unmatched")
		return &Result{
			Success: true,
			Warning: "no matching scenario",
		}, nil
	}

	correlationID := runs.CorrelationID(key, time.Now())

	var runIDs []string
	err = s.withRetry(ctx, func() error {
		return s.db.Transaction(ctx, func(tx *database.Tx) error {
			ids, err := s.creator.CreateBatchTx(ctx, tx, matches, env, connectionID, correlationID)
			if err != nil {
				return err
			}

			// The ledger write is the serialization point: losing the
			// claim rolls the whole run batch back.
			claimed, err := s.ledger.ClaimTx(ctx, tx, key, ids[0], len(ids))
			if err != nil {
				return err
			}
			if !claimed {
				return errLostClaimRace
			}

			runIDs = ids
			return nil
		})
	})
	if errors.Is(err, errLostClaimRace) {
		record, lookupErr := s.ledger.Lookup(ctx, key)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if record == nil {
			return nil, fmt.Errorf("idempotency record vanished after lost claim race for key %s", key)
		}
		return s.replayResult(ctx, triggerKey, record)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("trigger_key", triggerKey).
		Str("correlation_id", correlationID).
		Int("scenarios", len(matches)).
		Msg("Webhook accepted")
	metrics.RecordWebhookDelivery(triggerKey, "accepted")

	return &Result{
		Success:           true,
		Idempotent:        false,
		RunID:             runIDs[0],
		ScenariosExecuted: len(runIDs),
		CorrelationID:     correlationID,
	}, nil
}

func (s *Service) verify(ctx context.Context, connectionID string, body []byte, headers map[string]string) error {
	var creds *secrets.Credentials
	err := s.withRetry(ctx, func() error {
		var err error
		creds, err = s.secrets.GetCredentials(ctx, connectionID)
		if errors.Is(err, secrets.ErrConnectionNotFound) {
			// Not an infrastructure failure; do not retry.
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("loading webhook secret: %w", err)
	}
	if creds == nil || creds.WebhookSecret == "" {
		log.Warn().Str("connection_id", connectionID).Msg("Webhook secret not configured")
		return fmt.Errorf("%w: webhook secret not configured", ErrUnauthorized)
	}

	result := VerifySignature(&VerificationConfig{
		Secret:          creds.WebhookSecret,
		SignatureHeader: s.cfg.SignatureHeader,
		TimestampHeader: s.cfg.TimestampHeader,
		MaxReplayWindow: s.cfg.MaxReplayWindow,
	}, body, headers, time.Now())

	if result.Valid {
		return nil
	}

	// Logged for security review.
	log.Warn().
		Str("connection_id", connectionID).
		Str("method", result.Method).
		Str("error", result.Error).
		Bool("replay", result.Replay).
		Msg("Webhook signature verification failed")

	if result.Replay {
		return fmt.Errorf("%w: %s", ErrReplayDetected, result.Error)
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, result.Error)
}

func (s *Service) replayResult(ctx context.Context, triggerKey string, record *idempotency.Record) (*Result, error) {
	metrics.RecordWebhookDelivery(triggerKey, "idempotent")

	status := ""
	if run, err := s.runs.Get(ctx, record.FirstRunID); err == nil {
		status = string(run.Status)
	}

	return &Result{
		Success:           true,
		Idempotent:        true,
		RunID:             record.FirstRunID,
		Status:            status,
		ScenariosExecuted: record.ScenariosExecuted,
	}, nil
}

// withRetry retries infrastructure failures with bounded backoff. Business
// outcomes (lost claim race included) pass through untouched.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	delay := 100 * time.Millisecond

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, errLostClaimRace) {
			return err
		}

		if attempt == maxAttempts {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("Intake write failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
