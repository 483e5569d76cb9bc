package visibility

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Tracker aggregates foreground state across attached dashboard viewers.
// The host counts as visible while any viewer reports itself visible.
type Tracker struct {
	mu      sync.RWMutex
	always  bool
	viewers map[string]bool
	logger  *slog.Logger
}

func NewTracker(always bool, logger *slog.Logger) *Tracker {
	return &Tracker{
		always:  always,
		viewers: make(map[string]bool),
		logger:  logger,
	}
}

// Attach registers a viewer that starts visible and returns its id.
func (t *Tracker) Attach() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.viewers[id] = true
	t.mu.Unlock()
	t.logger.Debug("viewer attached", "viewer", id)
	return id
}

func (t *Tracker) Detach(id string) {
	t.mu.Lock()
	delete(t.viewers, id)
	t.mu.Unlock()
	t.logger.Debug("viewer detached", "viewer", id)
}

// SetVisible updates a viewer; unknown ids are ignored.
func (t *Tracker) SetVisible(id string, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.viewers[id]; !ok {
		return
	}
	t.viewers[id] = visible
}

func (t *Tracker) Visible() bool {
	if t.always {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, visible := range t.viewers {
		if visible {
			return true
		}
	}
	return false
}

// Viewers returns the number of attached viewers.
func (t *Tracker) Viewers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.viewers)
}
