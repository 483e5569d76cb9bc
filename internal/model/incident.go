package model

import "time"

// MessageType is the kind of an incident timeline entry.
type MessageType string

const (
	MessageTypeSystem  MessageType = "SYSTEM"
	MessageTypeComment MessageType = "COMMENT"
	MessageTypeMedia   MessageType = "MEDIA"
)

// Incident is a row of the "my incidents" listing.
type Incident struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Severity    string     `json:"severity,omitempty"`
	DeviceID    string     `json:"device_id,omitempty"`
	EventID     *int64     `json:"event_id,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// IncidentMessage is one timeline entry. Backend ids are monotonic and
// consistent with CreatedAt ordering.
type IncidentMessage struct {
	ID         int64       `json:"id"`
	IncidentID int64       `json:"incident_id"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	MediaURL   string      `json:"media_url,omitempty"`
	MediaType  string      `json:"media_type,omitempty"`
	MediaName  string      `json:"media_name,omitempty"`
	AuthorName string      `json:"author_name,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewIncident is the create-incident payload.
type NewIncident struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=4000"`
	Severity    string `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	DeviceID    string `json:"device_id,omitempty"`
	EventID     *int64 `json:"event_id,omitempty"`
}

// NewMessage is the send-message payload. Attachments reference media
// already uploaded to the backend.
type NewMessage struct {
	Type      MessageType `json:"type" validate:"required,oneof=COMMENT MEDIA"`
	Content   string      `json:"content" validate:"required_if=Type COMMENT,max=8000"`
	MediaURL  string      `json:"media_url,omitempty" validate:"required_if=Type MEDIA"`
	MediaType string      `json:"media_type,omitempty"`
	MediaName string      `json:"media_name,omitempty"`
}
