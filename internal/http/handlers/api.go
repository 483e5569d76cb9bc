package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tagwatch/console-sync/internal/broker"
	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/services/cameras"
	"github.com/tagwatch/console-sync/internal/services/incidents"
	"github.com/tagwatch/console-sync/internal/services/timeline"
)

// Session manages the bearer token.
type Session interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	Authenticated() bool
	Require() error
}

// Broker exposes connection status and publishing.
type Broker interface {
	Status() broker.Snapshot
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
}

// Cameras is the event correlation engine.
type Cameras interface {
	Snapshot() cameras.View
	Ack(deviceID string) bool
	SetHidden(ctx context.Context, key string, hidden bool) (bool, error)
}

// Incidents is the recent-incidents notifier.
type Incidents interface {
	Snapshot() incidents.View
	SetSelection(ids []int64) incidents.View
	MarkRead(ctx context.Context) ([]int64, error)
	Create(ctx context.Context, in model.NewIncident) (model.Incident, error)
}

// Timeline is the incident timeline reconciler.
type Timeline interface {
	Select(ctx context.Context, incidentID int64) error
	Deselect()
	Snapshot() timeline.State
	Send(ctx context.Context, in model.NewMessage) (model.IncidentMessage, error)
	ReportViewport(v timeline.Viewport)
	JumpToLatest() error
}

// Gateways reports debounced gateway presence.
type Gateways interface {
	Snapshot() []model.GatewayState
}

// Refresher triggers an immediate run of every poll stream.
type Refresher interface {
	TriggerRefresh()
}

// Viewers tracks dashboard foreground state.
type Viewers interface {
	Attach() string
	Detach(id string)
	SetVisible(id string, visible bool)
	Visible() bool
}

// Subscriber is the read side of the message bus.
type Subscriber interface {
	Subscribe(topics ...string) bus.Subscription
	Unsubscribe(ch bus.Subscription, topics ...string)
}

// Deps bundles handler dependencies.
type Deps struct {
	Session   Session
	Broker    Broker
	Cameras   Cameras
	Incidents Incidents
	Timeline  Timeline
	Gateways  Gateways
	Refresher Refresher
	Viewers   Viewers
	Bus       Subscriber
}

// API groups HTTP handlers and dependencies.
type API struct {
	deps     Deps
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(deps Deps, logger *slog.Logger) *API {
	return &API{
		deps:     deps,
		validate: validator.New(),
		logger:   logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness, session and broker status.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": a.deps.Session.Authenticated(),
		"broker":        a.deps.Broker.Status(),
		"visible":       a.deps.Viewers.Visible(),
	})
}

// Refresh runs every poll stream once, now.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.deps.Refresher.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return a.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
