package handlers

import (
	"net/http"
	"strings"
)

// ListCameras returns live state per camera and the analytic catalog.
func (a *API) ListCameras(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Cameras.Snapshot())
}

// AckCamera clears the new-event badge of one camera.
func (a *API) AckCamera(w http.ResponseWriter, _ *http.Request, deviceID string) {
	if !a.deps.Cameras.Ack(deviceID) {
		writeError(w, http.StatusNotFound, "not_found", "Camera has no tracked events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ListHiddenAnalytics returns every observed analytic type with its hidden flag.
func (a *API) ListHiddenAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.deps.Cameras.Snapshot().Catalog})
}

// SetHiddenAnalytic hides or shows one analytic type.
func (a *API) SetHiddenAnalytic(w http.ResponseWriter, r *http.Request, key string, hidden bool) {
	if strings.TrimSpace(key) == "" {
		writeError(w, http.StatusBadRequest, "invalid_key", "Analytic type is required")
		return
	}
	changed, err := a.deps.Cameras.SetHidden(r.Context(), key, hidden)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"items":   a.deps.Cameras.Snapshot().Catalog,
	})
}
