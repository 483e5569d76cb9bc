package model

import "time"

// PresenceStatus is derived device/gateway connectivity.
type PresenceStatus string

const (
	PresenceOnline     PresenceStatus = "ONLINE"
	PresenceIdleRecent PresenceStatus = "IDLE_RECENT"
	PresenceOffline    PresenceStatus = "OFFLINE"
	PresenceUnknown    PresenceStatus = "UNKNOWN"
)

// PresenceThresholds drive timestamp based presence derivation.
type PresenceThresholds struct {
	OnlineWindow     time.Duration
	OfflineThreshold time.Duration
}

func DefaultPresenceThresholds() PresenceThresholds {
	return PresenceThresholds{
		OnlineWindow:     2 * time.Minute,
		OfflineThreshold: 24 * time.Hour,
	}
}

func (p PresenceThresholds) Normalize() PresenceThresholds {
	defaults := DefaultPresenceThresholds()
	if p.OnlineWindow <= 0 {
		p.OnlineWindow = defaults.OnlineWindow
	}
	if p.OfflineThreshold <= 0 {
		p.OfflineThreshold = defaults.OfflineThreshold
	}
	if p.OfflineThreshold < p.OnlineWindow {
		p.OfflineThreshold = p.OnlineWindow
	}
	return p
}
