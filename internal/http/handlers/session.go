package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

type loginInput struct {
	Token string `json:"token" validate:"required"`
}

type publishInput struct {
	Topic   string          `json:"topic" validate:"required,max=512"`
	Payload json.RawMessage `json:"payload"`
	Base64  bool            `json:"base64,omitempty"`
	QoS     byte            `json:"qos" validate:"lte=2"`
}

// Login stores the bearer token, which activates the broker connection.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginInput
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}
	if err := a.deps.Session.Login(r.Context(), payload.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "login_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
}

// Logout ends the session and disconnects the broker.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Session.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "logout_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

// Connection returns the current broker status.
func (a *API) Connection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Broker.Status())
}

// Publish sends one message through the shared broker connection.
func (a *API) Publish(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Session.Require(); err != nil {
		writeActionError(w, "publish_failed", err)
		return
	}
	var payload publishInput
	if err := a.decodeAndValidate(r, &payload); err != nil {
		writePayloadError(w, err)
		return
	}

	body := []byte(payload.Payload)
	if payload.Base64 {
		var encoded string
		if err := json.Unmarshal(payload.Payload, &encoded); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "base64 payload must be a JSON string")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payload", "payload is not valid base64")
			return
		}
		body = decoded
	}

	if err := a.deps.Broker.Publish(r.Context(), payload.Topic, body, payload.QoS); err != nil {
		writeActionError(w, "publish_failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
