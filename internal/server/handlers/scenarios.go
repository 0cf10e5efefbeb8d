package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/scenarios"
)

type createScenarioRequest struct {
	OrganizationID string               `json:"organization_id"`
	Name           string               `json:"name"`
	TriggerKey     string               `json:"trigger_key"`
	Status         string               `json:"status"`
	Nodes          []scenarios.NodeSpec `json:"nodes"`
}

// CreateScenario registers a new scenario with its node list.
func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var req createScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	if req.Name == "" || req.TriggerKey == "" {
		BadRequest(w, "name and trigger_key are required")
		return
	}

	status := scenarios.Status(req.Status)
	if req.Status == "" {
		status = scenarios.StatusDraft
	}

	sc := &scenarios.Scenario{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		TriggerKey:     req.TriggerKey,
		Status:         status,
		Nodes:          req.Nodes,
	}

	id, err := h.scenarios.Create(r.Context(), sc)
	if err != nil {
		h.writeScenarioError(w, err)
		return
	}

	sc.ID = id
	JSON(w, http.StatusCreated, sc)
}

// ListScenarios returns scenarios, optionally filtered by organization.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := h.scenarios.List(r.Context(), r.URL.Query().Get("organization_id"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list scenarios")
		InternalError(w, "failed to list scenarios")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"scenarios": list,
		"total":     len(list),
	})
}

// GetScenario returns one scenario with its nodes.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scenarios.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeScenarioError(w, err)
		return
	}

	JSON(w, http.StatusOK, sc)
}

type updateScenarioRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// UpdateScenario renames a scenario or changes its lifecycle status.
// Disabling only stops future matching; running executions finish.
func (h *Handler) UpdateScenario(w http.ResponseWriter, r *http.Request) {
	var req updateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	if err := h.scenarios.Update(r.Context(), id, req.Name, scenarios.Status(req.Status)); err != nil {
		h.writeScenarioError(w, err)
		return
	}

	sc, err := h.scenarios.Get(r.Context(), id)
	if err != nil {
		h.writeScenarioError(w, err)
		return
	}

	JSON(w, http.StatusOK, sc)
}

type saveNodesRequest struct {
	Nodes []scenarios.NodeSpec `json:"nodes"`
}

// SaveScenarioNodes replaces a scenario's node list atomically. In-flight
// runs keep executing the node list they started with.
func (h *Handler) SaveScenarioNodes(w http.ResponseWriter, r *http.Request) {
	var req saveNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	if err := h.scenarios.SaveNodes(r.Context(), id, req.Nodes); err != nil {
		h.writeScenarioError(w, err)
		return
	}

	sc, err := h.scenarios.Get(r.Context(), id)
	if err != nil {
		h.writeScenarioError(w, err)
		return
	}

	JSON(w, http.StatusOK, sc)
}

func (h *Handler) writeScenarioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scenarios.ErrScenarioNotFound):
		NotFound(w, "scenario not found")
	case errors.Is(err, scenarios.ErrDuplicatePosition):
		Error(w, http.StatusBadRequest, "DUPLICATE_POSITION", err.Error())
	case errors.Is(err, scenarios.ErrInvalidStatus):
		Error(w, http.StatusBadRequest, "INVALID_STATUS", err.Error())
	default:
		log.Error().Err(err).Msg("Scenario operation failed")
		InternalError(w, "scenario operation failed")
	}
}
