package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
)

// ActiveExecutions returns currently running executions with live progress.
func (h *Handler) ActiveExecutions(w http.ResponseWriter, r *http.Request) {
	active, err := h.monitor.ActiveExecutions(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load active executions")
		InternalError(w, "failed to load active executions")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"executions": active,
		"total":      len(active),
	})
}

// GetRun returns one run with its per-node results.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			NotFound(w, "run not found")
			return
		}
		log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		InternalError(w, "failed to load run")
		return
	}

	results, err := h.results.ListByRun(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to load node results")
		InternalError(w, "failed to load node results")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"run":         run,
		"nodeResults": results,
	})
}

// PerformanceMetrics returns the aggregate execution report.
func (h *Handler) PerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.PerformanceMetrics(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute performance metrics")
		InternalError(w, "failed to compute performance metrics")
		return
	}

	JSON(w, http.StatusOK, report)
}

// ScenarioMetrics returns the execution report scoped to one scenario.
func (h *Handler) ScenarioMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := h.monitor.ScenarioMetrics(r.Context(), id)
	if err != nil {
		if errors.Is(err, scenarios.ErrScenarioNotFound) {
			NotFound(w, "scenario not found")
			return
		}
		log.Error().Err(err).Str("scenario_id", id).Msg("Failed to compute scenario metrics")
		InternalError(w, "failed to compute scenario metrics")
		return
	}

	JSON(w, http.StatusOK, report)
}
