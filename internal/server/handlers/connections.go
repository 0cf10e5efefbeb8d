package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/secrets"
)

type createConnectionRequest struct {
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	WebhookSecret  string            `json:"webhook_secret"`
	Extra          map[string]string `json:"extra"`
}

// CreateConnection stores a connection with its sealed credentials.
// Secrets are never returned, only accepted.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	conn := &secrets.Connection{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
	}
	creds := &secrets.Credentials{
		WebhookSecret: req.WebhookSecret,
		Extra:         req.Extra,
	}

	id, err := h.connections.Create(r.Context(), conn, creds)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create connection")
		InternalError(w, "failed to create connection")
		return
	}

	conn.ID = id
	JSON(w, http.StatusCreated, conn)
}

// ListConnections returns connection metadata, never credentials.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	list, err := h.connections.List(r.Context(), r.URL.Query().Get("organization_id"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list connections")
		InternalError(w, "failed to list connections")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"connections": list,
		"total":       len(list),
	})
}

type rotateSecretRequest struct {
	WebhookSecret string `json:"webhook_secret"`
}

// RotateConnectionSecret replaces a connection's webhook secret. Takes
// effect for the next delivery; in-flight verifications are unaffected.
func (h *Handler) RotateConnectionSecret(w http.ResponseWriter, r *http.Request) {
	var req rotateSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	if req.WebhookSecret == "" {
		BadRequest(w, "webhook_secret is required")
		return
	}

	id := r.PathValue("id")
	if err := h.connections.RotateWebhookSecret(r.Context(), id, req.WebhookSecret); err != nil {
		if errors.Is(err, secrets.ErrConnectionNotFound) {
			NotFound(w, "connection not found")
			return
		}
		log.Error().Err(err).Str("connection_id", id).Msg("Failed to rotate webhook secret")
		InternalError(w, "failed to rotate webhook secret")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "rotated",
	})
}
