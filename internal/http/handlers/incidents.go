package handlers

import (
	"net/http"

	"github.com/tagwatch/console-sync/internal/model"
)

type selectionInput struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

// RecentIncidents returns the visible recent incidents.
func (a *API) RecentIncidents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Incidents.Snapshot())
}

// SetIncidentSelection replaces the multi-select.
func (a *API) SetIncidentSelection(w http.ResponseWriter, r *http.Request) {
	var payload selectionInput
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Incidents.SetSelection(payload.IDs))
}

// MarkIncidentsRead dismisses the selection or every visible incident.
func (a *API) MarkIncidentsRead(w http.ResponseWriter, r *http.Request) {
	ids, err := a.deps.Incidents.MarkRead(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hidden": ids, "view": a.deps.Incidents.Snapshot()})
}

// CreateIncident opens a new incident on the backend.
func (a *API) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var payload model.NewIncident
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	created, err := a.deps.Incidents.Create(r.Context(), payload)
	if err != nil {
		writeActionError(w, "create_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
