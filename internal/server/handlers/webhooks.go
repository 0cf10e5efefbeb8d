package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/envelope"
	"github.com/hookflow/hookflow/internal/idempotency"
	"github.com/hookflow/hookflow/internal/webhooks"
)

// ReceiveWebhook handles an inbound delivery, optionally bound to a
// connection whose secret signs the payload.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	triggerKey := r.PathValue("triggerKey")
	connectionID := r.PathValue("connectionID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook payload too large")
			return
		}
		BadRequest(w, "failed to read request body")
		return
	}

	result, err := h.intake.Process(r.Context(), triggerKey, connectionID, body, flattenHeaders(r.Header))
	if err != nil {
		h.writeIntakeError(w, triggerKey, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

func (h *Handler) writeIntakeError(w http.ResponseWriter, triggerKey string, err error) {
	var validationErr *envelope.ValidationError

	switch {
	case errors.Is(err, idempotency.ErrMissingKey):
		Error(w, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", err.Error())
	case errors.As(err, &validationErr):
		Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
	case errors.Is(err, webhooks.ErrReplayDetected):
		Error(w, http.StatusUnauthorized, "REPLAY_DETECTED", "webhook timestamp outside replay window")
	case errors.Is(err, webhooks.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "webhook signature verification failed")
	default:
		log.Error().Err(err).Str("trigger_key", triggerKey).Msg("Webhook intake failed")
		InternalError(w, "failed to process webhook")
	}
}

// flattenHeaders keeps the first value per header; webhook signature and
// idempotency headers are single-valued.
func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}
