package model

import (
	"strings"
	"time"
)

// Camera is a camera-type device known to the backend.
type Camera struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	GatewayID string `json:"gateway_id,omitempty"`
}

// DeviceEvent is one immutable event fetched from a device stream.
// IDs are monotonic per device.
type DeviceEvent struct {
	ID           int64          `json:"id"`
	DeviceID     string         `json:"device_id"`
	Topic        string         `json:"topic"`
	AnalyticType string         `json:"analytic_type,omitempty"`
	OccurredAt   *time.Time     `json:"occurred_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Timestamp prefers the device-side occurrence time.
func (e DeviceEvent) Timestamp() time.Time {
	if e.OccurredAt != nil && !e.OccurredAt.IsZero() {
		return e.OccurredAt.UTC()
	}
	return e.CreatedAt.UTC()
}

// EventKind is the read-time classification of a DeviceEvent.
type EventKind int

const (
	EventKindIgnored EventKind = iota
	EventKindStatus
	EventKindAnalytic
)

func (k EventKind) String() string {
	switch k {
	case EventKindStatus:
		return "status"
	case EventKindAnalytic:
		return "analytic"
	default:
		return "ignored"
	}
}

// CameraLiveState is the per-device state recomputed on every poll.
type CameraLiveState struct {
	DeviceID        string         `json:"device_id"`
	Name            string         `json:"name,omitempty"`
	IsOnline        bool           `json:"is_online"`
	Presence        PresenceStatus `json:"presence"`
	RawStatus       *string        `json:"raw_status"`
	LastStatusAt    *time.Time     `json:"last_status_at"`
	VisibleEvents   []DeviceEvent  `json:"visible_events"`
	LastSeenEventID *int64         `json:"last_seen_event_id"`
	HasNewEvent     bool           `json:"has_new_event"`
	NewEventCount   int            `json:"new_event_count"`
	LastPolledAt    time.Time      `json:"last_polled_at"`
	LastError       string         `json:"last_error,omitempty"`
}

// NormalizeAnalyticKey folds case, spaces and underscores so that
// "Face Recognized", "face_recognized" and "faceRecognized" collide.
func NormalizeAnalyticKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '_', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
