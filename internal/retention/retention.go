// Package retention periodically expires old idempotency records and
// terminal runs so the database stays bounded.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/runs"
)

const sweepTimeout = 2 * time.Minute

// Sweeper deletes expired records on a cron schedule.
type Sweeper struct {
	cfg    config.RetentionConfig
	ledger *idempotency.Ledger
	runs   *runs.Store
	cron   *cron.Cron
}

// NewSweeper creates a retention sweeper.
func NewSweeper(cfg config.RetentionConfig, ledger *idempotency.Ledger, runStore *runs.Store) *Sweeper {
	return &Sweeper{
		cfg:    cfg,
		ledger: ledger,
		runs:   runStore,
		cron:   cron.New(),
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Sweeper) Start() error {
	if !s.cfg.Enabled {
		log.Info().Msg("Retention sweeps disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.Sweep); err != nil {
		return fmt.Errorf("registering retention schedule: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.Schedule).
		Dur("idempotency_window", s.cfg.IdempotencyWindow).
		Dur("run_window", s.cfg.RunWindow).
		Msg("Retention sweeper started")

	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Retention sweeper stopped")
}

// Sweep deletes idempotency records and terminal runs older than their
// configured windows. Idempotency dedup only holds for keys inside the
// retention window; the window must exceed sender retry horizons.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	keys, err := s.ledger.DeleteOlderThan(ctx, s.cfg.IdempotencyWindow)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire idempotency records")
	}

	expired, err := s.runs.DeleteTerminalOlderThan(ctx, s.cfg.RunWindow)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire terminal runs")
	}

	if keys > 0 || expired > 0 {
		log.Info().
			Int64("idempotency_records", keys).
			Int64("runs", expired).
			Msg("Retention sweep completed")
	}
}
