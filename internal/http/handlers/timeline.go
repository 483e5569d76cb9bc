package handlers

import (
	"net/http"

	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/services/timeline"
)

type selectIncidentInput struct {
	IncidentID int64 `json:"incident_id" validate:"required,gt=0"`
}

// SelectIncident resets the timeline and loads the incident's messages.
func (a *API) SelectIncident(w http.ResponseWriter, r *http.Request) {
	var payload selectIncidentInput
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	if err := a.deps.Timeline.Select(r.Context(), payload.IncidentID); err != nil {
		writeActionError(w, "load_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Timeline.Snapshot())
}

// DeselectIncident returns the timeline to idle.
func (a *API) DeselectIncident(w http.ResponseWriter, _ *http.Request) {
	a.deps.Timeline.Deselect()
	writeJSON(w, http.StatusOK, a.deps.Timeline.Snapshot())
}

// GetTimeline returns the current timeline state.
func (a *API) GetTimeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Timeline.Snapshot())
}

// SendMessage posts a comment or attachment to the selected incident.
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var payload model.NewMessage
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	msg, err := a.deps.Timeline.Send(r.Context(), payload)
	if err != nil {
		writeActionError(w, "send_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ReportViewport records the viewer's scroll geometry.
func (a *API) ReportViewport(w http.ResponseWriter, r *http.Request) {
	var payload timeline.Viewport
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	a.deps.Timeline.ReportViewport(payload)
	writeJSON(w, http.StatusOK, map[string]any{"has_unread": a.deps.Timeline.Snapshot().HasUnread})
}

// JumpToLatest clears unread and scrolls viewers to the newest message.
func (a *API) JumpToLatest(w http.ResponseWriter, _ *http.Request) {
	if err := a.deps.Timeline.JumpToLatest(); err != nil {
		writeActionError(w, "jump_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
