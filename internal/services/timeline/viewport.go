package timeline

// Viewport is the scroll geometry reported by the viewer, in pixels.
type Viewport struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height" validate:"gte=0"`
	ClientHeight float64 `json:"client_height" validate:"gte=0"`
}

func (v Viewport) DistanceFromBottom() float64 {
	distance := v.ScrollHeight - v.ScrollTop - v.ClientHeight
	if distance < 0 {
		return 0
	}
	return distance
}

func (v Viewport) AtBottom(threshold float64) bool {
	return v.DistanceFromBottom() <= threshold
}

// ScrollCommand instructs attached viewers to move to the newest message.
type ScrollCommand struct {
	IncidentID int64  `json:"incident_id"`
	Smooth     bool   `json:"smooth"`
	Reason     string `json:"reason"`
}
