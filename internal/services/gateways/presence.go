package gateways

import (
	"strings"
	"time"

	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
)

func derivePresence(
	now time.Time,
	gateway model.Gateway,
	thresholds model.PresenceThresholds,
) (model.PresenceStatus, string) {
	if strings.EqualFold(strings.TrimSpace(gateway.Status), "offline") {
		return model.PresenceOffline, "reported_offline"
	}
	if gateway.LastSeenAt == nil || gateway.LastSeenAt.IsZero() {
		return model.PresenceUnknown, "no_signal"
	}

	age := now.Sub(gateway.LastSeenAt.UTC())
	if age < 0 {
		age = 0
	}
	switch {
	case age <= thresholds.OnlineWindow:
		return model.PresenceOnline, "recent_heartbeat"
	case age <= thresholds.OfflineThreshold:
		return model.PresenceIdleRecent, "no_current_signal;historical_trace_present"
	default:
		return model.PresenceOffline, "no_signal;offline_threshold_exceeded"
	}
}

// transitionKind reports the notification kind for a debounced change,
// or "" when the change is not worth surfacing.
func transitionKind(from, to model.PresenceStatus) string {
	switch {
	case to == model.PresenceOffline && from != model.PresenceOffline && from != model.PresenceUnknown:
		return notify.KindGatewayOffline
	case to == model.PresenceOnline && from == model.PresenceOffline:
		return notify.KindGatewayOnline
	default:
		return ""
	}
}
