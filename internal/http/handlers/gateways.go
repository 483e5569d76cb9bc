package handlers

import "net/http"

// ListGateways returns debounced gateway presence.
func (a *API) ListGateways(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.deps.Gateways.Snapshot()})
}
