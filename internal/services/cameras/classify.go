package cameras

import (
	"strings"

	"github.com/tagwatch/console-sync/internal/model"
)

var statusMarkers = map[string]struct{}{
	"status":           {},
	"devicestatus":     {},
	"connectionstatus": {},
	"heartbeat":        {},
}

var statusFields = []string{"status", "state", "connection_status", "connectionStatus"}

// Classify splits events into status heartbeats and analytic detections.
// Events that are neither never reach the feed.
func Classify(event model.DeviceEvent) model.EventKind {
	topic := strings.ToLower(strings.TrimSpace(event.Topic))
	if strings.HasSuffix(topic, "/status") || strings.Contains(topic, "/status/") {
		return model.EventKindStatus
	}
	if _, ok := statusMarkers[model.NormalizeAnalyticKey(event.AnalyticType)]; ok {
		return model.EventKindStatus
	}
	if strings.HasSuffix(topic, "/events") {
		return model.EventKindAnalytic
	}
	return model.EventKindIgnored
}

// statusValue reads the reported state from the known field variants.
func statusValue(payload map[string]any) (string, bool) {
	for _, field := range statusFields {
		if raw, ok := payload[field]; ok {
			if text, ok := raw.(string); ok && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text), true
			}
		}
	}
	if raw, ok := payload["online"].(bool); ok {
		if raw {
			return "online", true
		}
		return "offline", true
	}
	return "", false
}
