// Package handlers implements the HTTP endpoints.
package handlers

import (
	"net/http"

	"github.com/hookflow/hookflow/internal/monitor"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
	"github.com/hookflow/hookflow/internal/secrets"
	"github.com/hookflow/hookflow/internal/webhooks"
)

// Handler carries the services the endpoints dispatch to.
type Handler struct {
	intake      *webhooks.Service
	scenarios   *scenarios.Store
	connections *secrets.Store
	runs        *runs.Store
	results     *runs.ResultStore
	monitor     *monitor.Monitor
}

// New creates a handler set over the given services.
func New(intake *webhooks.Service, scenarioStore *scenarios.Store, connectionStore *secrets.Store, runStore *runs.Store, resultStore *runs.ResultStore, mon *monitor.Monitor) *Handler {
	return &Handler{
		intake:      intake,
		scenarios:   scenarioStore,
		connections: connectionStore,
		runs:        runStore,
		results:     resultStore,
		monitor:     mon,
	}
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
