package timeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/metrics"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/poller"
)

var ErrNoIncidentSelected = errors.New("no incident selected")

type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseLoadingInitial        Phase = "loading_initial"
	PhaseReady                 Phase = "ready"
	PhaseRefreshingIncremental Phase = "refreshing_incremental"
)

const (
	scrollInitial = "initial"
	scrollFollow  = "follow"
	scrollSent    = "sent"
	scrollJump    = "jump"
)

// Source is the slice of the backend the reconciler needs.
type Source interface {
	IncidentMessages(ctx context.Context, incidentID int64, limit int, afterID *int64) ([]model.IncidentMessage, error)
	SendMessage(ctx context.Context, incidentID int64, in model.NewMessage) (model.IncidentMessage, error)
}

// State is the timeline snapshot for the selected incident.
type State struct {
	IncidentID    *int64                  `json:"incident_id"`
	Phase         Phase                   `json:"phase"`
	Messages      []model.IncidentMessage `json:"messages"`
	LastMessageID *int64                  `json:"last_message_id"`
	HasUnread     bool                    `json:"has_unread"`
	Error         string                  `json:"error,omitempty"`
}

// Reconciler keeps one incident's message list ordered and duplicate
// free. Responses carrying an outdated sequence token are dropped.
type Reconciler struct {
	source    Source
	publisher bus.Publisher
	logger    *slog.Logger
	pageSize  int
	threshold float64

	mu            sync.Mutex
	seq           uint64
	incidentID    int64
	selected      bool
	phase         Phase
	messages      []model.IncidentMessage
	lastID        *int64
	hasUnread     bool
	viewport      Viewport
	viewportKnown bool
	lastErr       string
}

func NewReconciler(source Source, publisher bus.Publisher, pageSize int, threshold float64, logger *slog.Logger) *Reconciler {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if pageSize <= 0 {
		pageSize = 300
	}
	if threshold < 0 {
		threshold = 80
	}
	return &Reconciler{
		source:    source,
		publisher: publisher,
		logger:    logger,
		pageSize:  pageSize,
		threshold: threshold,
		phase:     PhaseIdle,
	}
}

// Select discards any previous incident state and loads the initial page.
func (r *Reconciler) Select(ctx context.Context, incidentID int64) error {
	r.mu.Lock()
	r.seq++
	token := r.seq
	r.resetLocked()
	r.incidentID = incidentID
	r.selected = true
	r.phase = PhaseLoadingInitial
	loading := r.stateLocked()
	r.mu.Unlock()
	r.publisher.Publish(bus.TopicTimeline, loading)

	messages, err := r.source.IncidentMessages(ctx, incidentID, r.pageSize, nil)

	r.mu.Lock()
	if token != r.seq {
		r.mu.Unlock()
		r.discardStale(incidentID)
		return nil
	}
	if err != nil {
		r.lastErr = err.Error()
		failed := r.stateLocked()
		r.mu.Unlock()
		r.publisher.Publish(bus.TopicTimeline, failed)
		return err
	}

	r.messages = Merge(nil, messages)
	if highest, ok := maxID(r.messages); ok {
		r.lastID = &highest
	}
	r.hasUnread = false
	r.phase = PhaseReady
	r.viewportKnown = false
	ready := r.stateLocked()
	r.mu.Unlock()

	r.logger.Debug("timeline loaded", "incident_id", incidentID, "messages", len(ready.Messages))
	r.publisher.Publish(bus.TopicTimeline, ready)
	r.publisher.Publish(bus.TopicTimelineScroll, ScrollCommand{IncidentID: incidentID, Smooth: false, Reason: scrollInitial})
	return nil
}

// Deselect returns to Idle and invalidates in-flight requests.
func (r *Reconciler) Deselect() {
	r.mu.Lock()
	r.seq++
	r.resetLocked()
	idle := r.stateLocked()
	r.mu.Unlock()
	r.publisher.Publish(bus.TopicTimeline, idle)
}

// Refresh fetches messages after the cursor and merges them. It does
// nothing unless the timeline is Ready.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseReady {
		r.mu.Unlock()
		return nil
	}
	r.seq++
	token := r.seq
	incidentID := r.incidentID
	var cursor *int64
	if r.lastID != nil {
		value := *r.lastID
		cursor = &value
	}
	r.phase = PhaseRefreshingIncremental
	r.mu.Unlock()

	messages, err := r.source.IncidentMessages(ctx, incidentID, r.pageSize, cursor)

	r.mu.Lock()
	if token != r.seq {
		r.mu.Unlock()
		r.discardStale(incidentID)
		return nil
	}
	r.phase = PhaseReady
	if poller.Stopped(ctx) {
		r.mu.Unlock()
		return ctx.Err()
	}
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if len(messages) == 0 {
		r.mu.Unlock()
		return nil
	}

	follow := r.atBottomLocked()
	added := r.mergeLocked(messages)
	if added {
		if follow {
			r.hasUnread = false
			r.viewportKnown = false
		} else {
			r.hasUnread = true
		}
	}
	state := r.stateLocked()
	r.mu.Unlock()

	r.publisher.Publish(bus.TopicTimeline, state)
	if added && follow {
		r.publisher.Publish(bus.TopicTimelineScroll, ScrollCommand{IncidentID: incidentID, Smooth: true, Reason: scrollFollow})
	}
	return nil
}

// Send posts a message and merges the server's copy immediately.
func (r *Reconciler) Send(ctx context.Context, in model.NewMessage) (model.IncidentMessage, error) {
	r.mu.Lock()
	if !r.selected {
		r.mu.Unlock()
		return model.IncidentMessage{}, ErrNoIncidentSelected
	}
	incidentID := r.incidentID
	r.mu.Unlock()

	msg, err := r.source.SendMessage(ctx, incidentID, in)
	if err != nil {
		return model.IncidentMessage{}, err
	}

	r.mu.Lock()
	if !r.selected || r.incidentID != incidentID || r.phase == PhaseLoadingInitial {
		r.mu.Unlock()
		return msg, nil
	}
	r.mergeLocked([]model.IncidentMessage{msg})
	r.hasUnread = false
	r.viewportKnown = false
	state := r.stateLocked()
	r.mu.Unlock()

	r.publisher.Publish(bus.TopicTimeline, state)
	r.publisher.Publish(bus.TopicTimelineScroll, ScrollCommand{IncidentID: incidentID, Smooth: true, Reason: scrollSent})
	return msg, nil
}

// ReportViewport records the viewer geometry; reaching the bottom
// acknowledges unread messages.
func (r *Reconciler) ReportViewport(v Viewport) {
	r.mu.Lock()
	r.viewport = v
	r.viewportKnown = true
	changed := false
	if r.hasUnread && v.AtBottom(r.threshold) {
		r.hasUnread = false
		changed = true
	}
	state := r.stateLocked()
	r.mu.Unlock()

	if changed {
		r.publisher.Publish(bus.TopicTimeline, state)
	}
}

// JumpToLatest clears unread and scrolls viewers to the newest message.
func (r *Reconciler) JumpToLatest() error {
	r.mu.Lock()
	if !r.selected {
		r.mu.Unlock()
		return ErrNoIncidentSelected
	}
	incidentID := r.incidentID
	r.hasUnread = false
	r.viewportKnown = false
	state := r.stateLocked()
	r.mu.Unlock()

	r.publisher.Publish(bus.TopicTimeline, state)
	r.publisher.Publish(bus.TopicTimelineScroll, ScrollCommand{IncidentID: incidentID, Smooth: true, Reason: scrollJump})
	return nil
}

func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// mergeLocked merges and advances the cursor, reporting whether any new
// message was added.
func (r *Reconciler) mergeLocked(incoming []model.IncidentMessage) bool {
	before := len(r.messages)
	r.messages = Merge(r.messages, incoming)
	if highest, ok := maxID(incoming); ok && (r.lastID == nil || highest > *r.lastID) {
		r.lastID = &highest
	}
	return len(r.messages) > before
}

// atBottomLocked treats an unreported viewport as following the bottom.
func (r *Reconciler) atBottomLocked() bool {
	if !r.viewportKnown {
		return true
	}
	return r.viewport.AtBottom(r.threshold)
}

func (r *Reconciler) resetLocked() {
	r.incidentID = 0
	r.selected = false
	r.phase = PhaseIdle
	r.messages = nil
	r.lastID = nil
	r.hasUnread = false
	r.viewport = Viewport{}
	r.viewportKnown = false
	r.lastErr = ""
}

func (r *Reconciler) stateLocked() State {
	state := State{
		Phase:     r.phase,
		Messages:  append([]model.IncidentMessage(nil), r.messages...),
		HasUnread: r.hasUnread,
		Error:     r.lastErr,
	}
	if state.Messages == nil {
		state.Messages = []model.IncidentMessage{}
	}
	if r.selected {
		id := r.incidentID
		state.IncidentID = &id
	}
	if r.lastID != nil {
		id := *r.lastID
		state.LastMessageID = &id
	}
	return state
}

func (r *Reconciler) discardStale(incidentID int64) {
	metrics.ObserveStaleResponse("timeline")
	r.logger.Debug("discarding stale timeline response", "incident_id", incidentID)
}
