package cameras

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/metrics"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
	"github.com/tagwatch/console-sync/internal/poller"
	"github.com/tagwatch/console-sync/internal/prefs"
)

// Source is the subset of the backend the engine reads from.
type Source interface {
	ListCameras(ctx context.Context) ([]model.Camera, error)
	DeviceEvents(ctx context.Context, deviceID string, limit int) ([]model.DeviceEvent, error)
}

// AnalyticType is one entry of the hidden-analytics picker.
type AnalyticType struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Hidden bool   `json:"hidden"`
}

// View is the engine snapshot served to dashboards.
type View struct {
	Cameras []model.CameraLiveState `json:"cameras"`
	Catalog []AnalyticType          `json:"catalog"`
}

type tracking struct {
	lastSeen *int64
	hasNew   bool
	count    int
}

type fetchResult struct {
	camera model.Camera
	events []model.DeviceEvent
	err    error
}

// Engine correlates per-camera event streams into live state.
type Engine struct {
	source    Source
	hidden    *prefs.KeySet
	publisher bus.Publisher
	notifier  notify.Sender
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time

	mu       sync.Mutex
	cameras  map[string]model.Camera
	raw      map[string][]model.DeviceEvent
	states   map[string]model.CameraLiveState
	tracking map[string]*tracking
	catalog  map[string]string
}

func NewEngine(source Source, hidden *prefs.KeySet, publisher bus.Publisher, notifier notify.Sender, pageSize int, logger *slog.Logger) *Engine {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	return &Engine{
		source:    source,
		hidden:    hidden,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		pageSize:  pageSize,
		now:       time.Now,
		cameras:   map[string]model.Camera{},
		raw:       map[string][]model.DeviceEvent{},
		states:    map[string]model.CameraLiveState{},
		tracking:  map[string]*tracking{},
		catalog:   map[string]string{},
	}
}

// Poll runs one correlation cycle. A failing device degrades only itself.
func (e *Engine) Poll(ctx context.Context) error {
	cameras, err := e.source.ListCameras(ctx)
	if err != nil {
		return err
	}

	results := make([]fetchResult, 0, len(cameras))
	for _, camera := range cameras {
		if poller.Stopped(ctx) {
			return ctx.Err()
		}
		events, err := e.source.DeviceEvents(ctx, camera.ID, e.pageSize)
		results = append(results, fetchResult{camera: camera, events: events, err: err})
	}
	if poller.Stopped(ctx) {
		return ctx.Err()
	}

	polledAt := e.now().UTC()
	var raised []model.CameraLiveState

	e.mu.Lock()
	e.cameras = make(map[string]model.Camera, len(cameras))
	for _, result := range results {
		id := result.camera.ID
		e.cameras[id] = result.camera

		if result.err != nil || len(result.events) == 0 {
			metrics.ObserveDeviceFetchFailure()
			reason := "no events"
			if result.err != nil {
				reason = result.err.Error()
				e.logger.Warn("device events fetch failed", "device_id", id, "err", result.err)
			}
			delete(e.raw, id)
			state := e.states[id]
			e.states[id] = model.CameraLiveState{
				DeviceID:        id,
				Name:            result.camera.Name,
				Presence:        model.PresenceUnknown,
				LastSeenEventID: state.LastSeenEventID,
				HasNewEvent:     state.HasNewEvent,
				NewEventCount:   state.NewEventCount,
				LastPolledAt:    polledAt,
				LastError:       reason,
			}
			continue
		}

		e.raw[id] = result.events
		e.recordCatalog(result.events)
		before := e.tracking[id]
		hadNew := before != nil && before.hasNew
		state := e.derive(result.camera, result.events, true, polledAt)
		e.states[id] = state
		if state.HasNewEvent && !hadNew {
			raised = append(raised, state)
		}
	}
	for id := range e.states {
		if _, ok := e.cameras[id]; !ok {
			delete(e.states, id)
			delete(e.raw, id)
			delete(e.tracking, id)
		}
	}
	view := e.viewLocked()
	e.mu.Unlock()

	for _, state := range raised {
		e.notifier.Send(notify.Payload{
			Kind:    notify.KindCameraEvent,
			Title:   "New camera event",
			Content: fmt.Sprintf("%s has %d new event(s)", displayName(state), state.NewEventCount),
		})
	}
	e.publisher.Publish(bus.TopicCameras, view)
	return nil
}

// Ack clears the new-event flag for one device.
func (e *Engine) Ack(deviceID string) bool {
	e.mu.Lock()
	track, ok := e.tracking[deviceID]
	if ok {
		track.hasNew = false
		track.count = 0
		if state, exists := e.states[deviceID]; exists {
			state.HasNewEvent = false
			state.NewEventCount = 0
			e.states[deviceID] = state
		}
	}
	view := e.viewLocked()
	e.mu.Unlock()

	if ok {
		e.publisher.Publish(bus.TopicCameras, view)
	}
	return ok
}

// SetHidden changes the HiddenAnalyticsSet. Any change resets new-event
// tracking for every device and recomputes state from the cached events.
func (e *Engine) SetHidden(ctx context.Context, key string, hidden bool) (bool, error) {
	changed, err := e.hidden.Set(ctx, key, hidden)
	if err != nil {
		e.logger.Warn("persist hidden analytics failed", "err", err)
	}
	if !changed {
		return false, err
	}

	e.mu.Lock()
	e.tracking = map[string]*tracking{}
	polledAt := e.now().UTC()
	for id, events := range e.raw {
		camera := e.cameras[id]
		state := e.derive(camera, events, false, e.states[id].LastPolledAt)
		if state.LastPolledAt.IsZero() {
			state.LastPolledAt = polledAt
		}
		e.states[id] = state
	}
	for id, state := range e.states {
		if _, cached := e.raw[id]; !cached {
			state.LastSeenEventID = nil
			state.HasNewEvent = false
			state.NewEventCount = 0
			e.states[id] = state
		}
	}
	view := e.viewLocked()
	e.mu.Unlock()

	e.logger.Info("hidden analytics changed", "key", model.NormalizeAnalyticKey(key), "hidden", hidden)
	e.publisher.Publish(bus.TopicCameras, view)
	return true, err
}

func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// derive computes live state; detect enables new-event detection against
// the recorded tracking, otherwise tracking is seeded without flagging.
// Caller holds mu.
func (e *Engine) derive(camera model.Camera, events []model.DeviceEvent, detect bool, polledAt time.Time) model.CameraLiveState {
	state := model.CameraLiveState{
		DeviceID:     camera.ID,
		Name:         camera.Name,
		Presence:     model.PresenceUnknown,
		LastPolledAt: polledAt,
	}

	statusSeen := false
	feed := make([]model.DeviceEvent, 0, len(events))
	for _, event := range events {
		switch Classify(event) {
		case model.EventKindStatus:
			if statusSeen {
				continue
			}
			value, ok := statusValue(event.Payload)
			if !ok {
				continue
			}
			statusSeen = true
			at := event.Timestamp()
			state.RawStatus = &value
			state.LastStatusAt = &at
			state.IsOnline = strings.EqualFold(value, "online")
			if state.IsOnline {
				state.Presence = model.PresenceOnline
			} else {
				state.Presence = model.PresenceOffline
			}
		case model.EventKindAnalytic:
			if e.hidden.Contains(event.AnalyticType) {
				continue
			}
			feed = append(feed, event)
		}
	}
	state.VisibleEvents = feed

	if len(feed) == 0 {
		if track := e.tracking[camera.ID]; track != nil {
			state.LastSeenEventID = track.lastSeen
			state.HasNewEvent = track.hasNew
			state.NewEventCount = track.count
		}
		return state
	}

	newest := feed[0].ID
	for _, event := range feed[1:] {
		if event.ID > newest {
			newest = event.ID
		}
	}
	track := e.tracking[camera.ID]
	switch {
	case track == nil || track.lastSeen == nil:
		track = &tracking{lastSeen: &newest}
		e.tracking[camera.ID] = track
	case detect && *track.lastSeen != newest:
		track.lastSeen = &newest
		track.hasNew = true
		track.count++
	}

	seen := *track.lastSeen
	state.LastSeenEventID = &seen
	state.HasNewEvent = track.hasNew
	state.NewEventCount = track.count
	return state
}

// recordCatalog keeps every analytic type ever observed, hidden or not.
func (e *Engine) recordCatalog(events []model.DeviceEvent) {
	for _, event := range events {
		if Classify(event) != model.EventKindAnalytic {
			continue
		}
		key := model.NormalizeAnalyticKey(event.AnalyticType)
		if key == "" {
			continue
		}
		if _, ok := e.catalog[key]; !ok {
			e.catalog[key] = strings.TrimSpace(event.AnalyticType)
		}
	}
}

func (e *Engine) viewLocked() View {
	view := View{
		Cameras: make([]model.CameraLiveState, 0, len(e.states)),
		Catalog: make([]AnalyticType, 0, len(e.catalog)),
	}
	for _, state := range e.states {
		view.Cameras = append(view.Cameras, state)
	}
	sort.Slice(view.Cameras, func(i, j int) bool {
		if view.Cameras[i].Name != view.Cameras[j].Name {
			return view.Cameras[i].Name < view.Cameras[j].Name
		}
		return view.Cameras[i].DeviceID < view.Cameras[j].DeviceID
	})

	for key, label := range e.catalog {
		view.Catalog = append(view.Catalog, AnalyticType{Key: key, Label: label, Hidden: e.hidden.Contains(key)})
	}
	for _, key := range e.hidden.Members() {
		if _, ok := e.catalog[key]; !ok {
			view.Catalog = append(view.Catalog, AnalyticType{Key: key, Label: key, Hidden: true})
		}
	}
	sort.Slice(view.Catalog, func(i, j int) bool { return view.Catalog[i].Key < view.Catalog[j].Key })
	return view
}

func displayName(state model.CameraLiveState) string {
	if state.Name != "" {
		return state.Name
	}
	return state.DeviceID
}
