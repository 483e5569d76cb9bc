package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tagwatch/console-sync/internal/backend"
	"github.com/tagwatch/console-sync/internal/broker"
	"github.com/tagwatch/console-sync/internal/services/timeline"
	"github.com/tagwatch/console-sync/internal/session"
)

func writePayloadError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validationErrs.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
}

// writeActionError surfaces a failed user-initiated operation.
func writeActionError(w http.ResponseWriter, code string, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", "Login required")
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "backend_unauthorized", err.Error())
	case errors.Is(err, timeline.ErrNoIncidentSelected):
		writeError(w, http.StatusConflict, "no_incident_selected", "Select an incident first")
	case errors.Is(err, broker.ErrConnectTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, code, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(w, apiErr.StatusCode, code, apiErr.Detail)
	default:
		writeError(w, http.StatusBadGateway, code, err.Error())
	}
}
