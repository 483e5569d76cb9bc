package cameras

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tagwatch/console-sync/internal/logging"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
	"github.com/tagwatch/console-sync/internal/prefs"
)

type fakeSource struct {
	cameras []model.Camera
	events  map[string][]model.DeviceEvent
	errs    map[string]error
}

func (s *fakeSource) ListCameras(ctx context.Context) ([]model.Camera, error) {
	_ = ctx
	return s.cameras, nil
}

func (s *fakeSource) DeviceEvents(ctx context.Context, deviceID string, limit int) ([]model.DeviceEvent, error) {
	_ = ctx
	if err := s.errs[deviceID]; err != nil {
		return nil, err
	}
	events := s.events[deviceID]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

type recordingSender struct {
	kinds []string
}

func (r *recordingSender) Send(p notify.Payload) {
	r.kinds = append(r.kinds, p.Kind)
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func statusEvent(id int64, deviceID, status string) model.DeviceEvent {
	return model.DeviceEvent{
		ID:        id,
		DeviceID:  deviceID,
		Topic:     "site/1/" + deviceID + "/status",
		CreatedAt: baseTime.Add(time.Duration(id) * time.Second),
		Payload:   map[string]any{"status": status},
	}
}

func analyticEvent(id int64, deviceID, analyticType string) model.DeviceEvent {
	return model.DeviceEvent{
		ID:           id,
		DeviceID:     deviceID,
		Topic:        "site/1/" + deviceID + "/events",
		AnalyticType: analyticType,
		CreatedAt:    baseTime.Add(time.Duration(id) * time.Second),
	}
}

func newTestEngine(t *testing.T, source Source) (*Engine, *recordingSender) {
	t.Helper()
	hidden := prefs.LoadKeySet(context.Background(), prefs.NewMemoryStore(), prefs.KeyHiddenAnalytics, logging.Discard())
	sender := &recordingSender{}
	engine := NewEngine(source, hidden, nil, sender, 30, logging.Discard())
	engine.now = func() time.Time { return baseTime }
	return engine, sender
}

func stateOf(t *testing.T, engine *Engine, deviceID string) model.CameraLiveState {
	t.Helper()
	for _, state := range engine.Snapshot().Cameras {
		if state.DeviceID == deviceID {
			return state
		}
	}
	t.Fatalf("device %s missing from snapshot", deviceID)
	return model.CameraLiveState{}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		event model.DeviceEvent
		want  model.EventKind
	}{
		{name: "status suffix", event: model.DeviceEvent{Topic: "a/b/status"}, want: model.EventKindStatus},
		{name: "status segment", event: model.DeviceEvent{Topic: "a/status/b"}, want: model.EventKindStatus},
		{name: "status marker type", event: model.DeviceEvent{Topic: "a/b/events", AnalyticType: "Device_Status"}, want: model.EventKindStatus},
		{name: "analytic", event: model.DeviceEvent{Topic: "a/b/events", AnalyticType: "faceRecognized"}, want: model.EventKindAnalytic},
		{name: "other topic", event: model.DeviceEvent{Topic: "a/b/telemetry", AnalyticType: "temperature"}, want: model.EventKindIgnored},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.event); got != tc.want {
				t.Fatalf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestColdStartScenario(t *testing.T) {
	statusDuplicate := analyticEvent(1, "cam-d", "status")
	source := &fakeSource{
		cameras: []model.Camera{{ID: "cam-d", Name: "Lobby"}},
		events: map[string][]model.DeviceEvent{
			"cam-d": {
				statusEvent(3, "cam-d", "Online"),
				analyticEvent(2, "cam-d", "faceRecognized"),
				statusDuplicate,
			},
		},
	}
	engine, sender := newTestEngine(t, source)

	if err := engine.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	state := stateOf(t, engine, "cam-d")
	if !state.IsOnline || state.Presence != model.PresenceOnline {
		t.Fatalf("state = %+v, want online", state)
	}
	if len(state.VisibleEvents) != 1 || state.VisibleEvents[0].ID != 2 {
		t.Fatalf("visible events = %+v, want only faceRecognized", state.VisibleEvents)
	}
	if state.HasNewEvent || state.NewEventCount != 0 {
		t.Fatalf("cold start flagged new events: %+v", state)
	}
	if state.LastSeenEventID == nil || *state.LastSeenEventID != 2 {
		t.Fatalf("LastSeenEventID = %v, want 2", state.LastSeenEventID)
	}
	if len(sender.kinds) != 0 {
		t.Fatalf("notifications = %v, want none", sender.kinds)
	}
}

func TestNewEventDetectionAndAck(t *testing.T) {
	source := &fakeSource{
		cameras: []model.Camera{{ID: "cam-1"}},
		events: map[string][]model.DeviceEvent{
			"cam-1": {analyticEvent(10, "cam-1", "motion")},
		},
	}
	engine, sender := newTestEngine(t, source)
	ctx := context.Background()

	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	source.events["cam-1"] = []model.DeviceEvent{analyticEvent(11, "cam-1", "motion"), analyticEvent(10, "cam-1", "motion")}
	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	source.events["cam-1"] = []model.DeviceEvent{analyticEvent(12, "cam-1", "intrusion"), analyticEvent(11, "cam-1", "motion")}
	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	state := stateOf(t, engine, "cam-1")
	if !state.HasNewEvent || state.NewEventCount != 2 {
		t.Fatalf("state = %+v, want 2 new events", state)
	}
	if len(sender.kinds) != 1 {
		t.Fatalf("notifications = %v, want one rising edge", sender.kinds)
	}
	if state.Presence != model.PresenceUnknown || state.IsOnline {
		t.Fatalf("no status event should leave presence unknown, got %+v", state)
	}

	if !engine.Ack("cam-1") {
		t.Fatalf("Ack() = false for tracked device")
	}
	state = stateOf(t, engine, "cam-1")
	if state.HasNewEvent || state.NewEventCount != 0 {
		t.Fatalf("state after ack = %+v", state)
	}
	if engine.Ack("missing") {
		t.Fatalf("Ack() = true for unknown device")
	}
}

func TestFetchFailureIsIsolated(t *testing.T) {
	source := &fakeSource{
		cameras: []model.Camera{{ID: "cam-ok"}, {ID: "cam-bad"}, {ID: "cam-empty"}},
		events: map[string][]model.DeviceEvent{
			"cam-ok": {statusEvent(5, "cam-ok", "online")},
		},
		errs: map[string]error{"cam-bad": errors.New("gateway timeout")},
	}
	engine, _ := newTestEngine(t, source)

	if err := engine.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if state := stateOf(t, engine, "cam-ok"); !state.IsOnline {
		t.Fatalf("healthy device state = %+v", state)
	}
	bad := stateOf(t, engine, "cam-bad")
	if bad.IsOnline || bad.Presence != model.PresenceUnknown || bad.LastError == "" {
		t.Fatalf("failed device state = %+v", bad)
	}
	empty := stateOf(t, engine, "cam-empty")
	if empty.IsOnline || empty.LastSeenEventID != nil {
		t.Fatalf("empty device state = %+v", empty)
	}
}

func TestHiddenToggleResetsTracking(t *testing.T) {
	source := &fakeSource{
		cameras: []model.Camera{{ID: "cam-1"}, {ID: "cam-2"}},
		events: map[string][]model.DeviceEvent{
			"cam-1": {analyticEvent(1, "cam-1", "Face Recognized")},
			"cam-2": {analyticEvent(1, "cam-2", "motion")},
		},
	}
	engine, _ := newTestEngine(t, source)
	ctx := context.Background()

	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	source.events["cam-1"] = []model.DeviceEvent{analyticEvent(2, "cam-1", "motion"), analyticEvent(1, "cam-1", "Face Recognized")}
	source.events["cam-2"] = []model.DeviceEvent{analyticEvent(2, "cam-2", "motion"), analyticEvent(1, "cam-2", "motion")}
	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}

	changed, err := engine.SetHidden(ctx, "face_recognized", true)
	if err != nil || !changed {
		t.Fatalf("SetHidden() = (%v, %v)", changed, err)
	}
	for _, state := range engine.Snapshot().Cameras {
		if state.HasNewEvent || state.NewEventCount != 0 {
			t.Fatalf("device %s not reset: %+v", state.DeviceID, state)
		}
	}
	cam1 := stateOf(t, engine, "cam-1")
	if len(cam1.VisibleEvents) != 1 || cam1.VisibleEvents[0].AnalyticType != "motion" {
		t.Fatalf("cam-1 feed = %+v", cam1.VisibleEvents)
	}

	catalog := engine.Snapshot().Catalog
	found := false
	for _, entry := range catalog {
		if entry.Key == "facerecognized" {
			found = entry.Hidden && entry.Label == "Face Recognized"
		}
	}
	if !found {
		t.Fatalf("catalog = %+v, want hidden facerecognized entry", catalog)
	}

	// Next poll after reset behaves like a cold start.
	if err := engine.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if state := stateOf(t, engine, "cam-2"); state.HasNewEvent {
		t.Fatalf("poll after reset flagged new event: %+v", state)
	}
}

func TestStoppedPollDoesNotWrite(t *testing.T) {
	source := &fakeSource{
		cameras: []model.Camera{{ID: "cam-1"}},
		events:  map[string][]model.DeviceEvent{"cam-1": {analyticEvent(1, "cam-1", "motion")}},
	}
	engine, _ := newTestEngine(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := engine.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Poll() error = %v, want context.Canceled", err)
	}
	if got := len(engine.Snapshot().Cameras); got != 0 {
		t.Fatalf("cameras = %d, want 0 after stopped poll", got)
	}
}
