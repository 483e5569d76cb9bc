package model

import "time"

// Gateway is a BLE gateway with its last heartbeat.
type Gateway struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// GatewayState is the debounced presence of one gateway.
type GatewayState struct {
	Gateway
	Presence  PresenceStatus `json:"presence"`
	Reason    string         `json:"reason"`
	ChangedAt time.Time      `json:"changed_at"`
}
