// Package server wires the HTTP surface: webhook intake, scenario
// administration and the execution monitor.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/database"
	"github.com/hookflow/hookflow/internal/monitor"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
	"github.com/hookflow/hookflow/internal/secrets"
	"github.com/hookflow/hookflow/internal/webhooks"
)

// Deps are the service dependencies the HTTP layer exposes.
type Deps struct {
	Intake      *webhooks.Service
	Scenarios   *scenarios.Store
	Connections *secrets.Store
	Runs        *runs.Store
	Results     *runs.ResultStore
	Monitor     *monitor.Monitor
	Hub         *monitor.Hub
}

type Server struct {
	cfg        *config.Config
	db         *database.DB
	deps       Deps
	router     *Router
	httpServer *http.Server
	limiter    *RateLimiter
}

func New(cfg *config.Config, db *database.DB, deps Deps) *Server {
	srv := &Server{
		cfg:  cfg,
		db:   db,
		deps: deps,
	}

	if cfg.Webhook.RateLimit.Enabled {
		srv.limiter = NewRateLimiter(cfg.Webhook.RateLimit)
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// shutdownTimeout bounds the connection drain after ctx cancellation.
const shutdownTimeout = 15 * time.Second

// Start serves until the listener fails or ctx is canceled. Cancellation
// triggers a graceful shutdown bounded by shutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Msg("Starting server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	if s.deps.Hub != nil {
		s.deps.Hub.Shutdown()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) DB() *database.DB {
	return s.db
}
