package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/logging"
	"github.com/tagwatch/console-sync/internal/model"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func msg(id int64, incidentID int64) model.IncidentMessage {
	return model.IncidentMessage{
		ID:         id,
		IncidentID: incidentID,
		Type:       model.MessageTypeComment,
		Content:    "note",
		CreatedAt:  t0.Add(time.Duration(id) * time.Minute),
	}
}

type fetchCall struct {
	incidentID int64
	afterID    *int64
}

type fakeSource struct {
	mu      sync.Mutex
	pages   map[int64][]model.IncidentMessage
	gates   map[int64]chan struct{}
	calls   []fetchCall
	sendErr error
	nextID  int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: map[int64][]model.IncidentMessage{}, gates: map[int64]chan struct{}{}, nextID: 1000}
}

func (s *fakeSource) IncidentMessages(ctx context.Context, incidentID int64, limit int, afterID *int64) ([]model.IncidentMessage, error) {
	s.mu.Lock()
	gate := s.gates[incidentID]
	s.calls = append(s.calls, fetchCall{incidentID: incidentID, afterID: afterID})
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.IncidentMessage
	for _, m := range s.pages[incidentID] {
		if afterID == nil || m.ID > *afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeSource) SendMessage(ctx context.Context, incidentID int64, in model.NewMessage) (model.IncidentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return model.IncidentMessage{}, s.sendErr
	}
	s.nextID++
	out := msg(s.nextID, incidentID)
	out.Content = in.Content
	s.pages[incidentID] = append(s.pages[incidentID], out)
	return out, nil
}

func (s *fakeSource) set(incidentID int64, messages ...model.IncidentMessage) {
	s.mu.Lock()
	s.pages[incidentID] = messages
	s.mu.Unlock()
}

type recordingBus struct {
	mu      sync.Mutex
	scrolls []ScrollCommand
}

func (b *recordingBus) Publish(topic string, payload any) {
	if topic != bus.TopicTimelineScroll {
		return
	}
	b.mu.Lock()
	b.scrolls = append(b.scrolls, payload.(ScrollCommand))
	b.mu.Unlock()
}

func (b *recordingBus) scrollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scrolls)
}

func newTestReconciler(source Source) (*Reconciler, *recordingBus) {
	rb := &recordingBus{}
	return NewReconciler(source, rb, 300, 80, logging.Discard()), rb
}

func assertOrdered(t *testing.T, messages []model.IncidentMessage) {
	t.Helper()
	seen := map[int64]bool{}
	for i, m := range messages {
		if seen[m.ID] {
			t.Fatalf("duplicate id %d", m.ID)
		}
		seen[m.ID] = true
		if i > 0 && messages[i-1].CreatedAt.After(m.CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
}

func TestMergeIsIdempotentAndOrdered(t *testing.T) {
	prev := []model.IncidentMessage{msg(1, 1), msg(3, 1)}
	incoming := []model.IncidentMessage{msg(4, 1), msg(2, 1), msg(3, 1)}

	once := Merge(prev, incoming)
	twice := Merge(once, incoming)
	if len(once) != 4 || len(twice) != 4 {
		t.Fatalf("len(once)=%d len(twice)=%d, want 4", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("merge not idempotent at %d: %d vs %d", i, once[i].ID, twice[i].ID)
		}
	}
	assertOrdered(t, twice)
	if len(prev) != 2 {
		t.Fatalf("Merge modified prev")
	}
}

func TestInitialLoadAndIncrementalRefresh(t *testing.T) {
	source := newFakeSource()
	source.set(7, msg(3, 7), msg(1, 7), msg(2, 7))
	reconciler, rb := newTestReconciler(source)
	ctx := context.Background()

	if err := reconciler.Select(ctx, 7); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	state := reconciler.Snapshot()
	if state.Phase != PhaseReady || len(state.Messages) != 3 || *state.LastMessageID != 3 {
		t.Fatalf("state after load = %+v", state)
	}
	assertOrdered(t, state.Messages)
	if rb.scrollCount() != 1 || rb.scrolls[0].Smooth {
		t.Fatalf("initial load should force one instant scroll, got %+v", rb.scrolls)
	}

	if err := reconciler.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got := reconciler.Snapshot(); len(got.Messages) != 3 || got.HasUnread {
		t.Fatalf("empty refresh changed state: %+v", got)
	}

	source.set(7, msg(1, 7), msg(2, 7), msg(3, 7), msg(4, 7))
	if err := reconciler.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	last := source.calls[len(source.calls)-1]
	if last.afterID == nil || *last.afterID != 3 {
		t.Fatalf("refresh cursor = %v, want 3", last.afterID)
	}
	state = reconciler.Snapshot()
	if len(state.Messages) != 4 || *state.LastMessageID != 4 || state.HasUnread {
		t.Fatalf("state after refresh = %+v", state)
	}
	if rb.scrollCount() != 2 || !rb.scrolls[1].Smooth {
		t.Fatalf("follow scroll missing: %+v", rb.scrolls)
	}
}

func TestScrolledUpViewerGetsUnread(t *testing.T) {
	source := newFakeSource()
	source.set(1, msg(1, 1))
	reconciler, rb := newTestReconciler(source)
	ctx := context.Background()

	if err := reconciler.Select(ctx, 1); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	reconciler.ReportViewport(Viewport{ScrollTop: 100, ScrollHeight: 2000, ClientHeight: 600})

	source.set(1, msg(1, 1), msg(2, 1))
	if err := reconciler.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	state := reconciler.Snapshot()
	if !state.HasUnread || len(state.Messages) != 2 {
		t.Fatalf("state = %+v, want unread with 2 messages", state)
	}
	if rb.scrollCount() != 1 {
		t.Fatalf("scrolled-up viewer was moved: %+v", rb.scrolls)
	}

	reconciler.ReportViewport(Viewport{ScrollTop: 1350, ScrollHeight: 2000, ClientHeight: 600})
	if reconciler.Snapshot().HasUnread {
		t.Fatalf("reaching bottom threshold should clear unread")
	}
}

func TestJumpToLatestClearsUnread(t *testing.T) {
	source := newFakeSource()
	source.set(1, msg(1, 1))
	reconciler, _ := newTestReconciler(source)
	ctx := context.Background()

	if err := reconciler.JumpToLatest(); !errors.Is(err, ErrNoIncidentSelected) {
		t.Fatalf("JumpToLatest() without selection = %v", err)
	}
	if err := reconciler.Select(ctx, 1); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	reconciler.ReportViewport(Viewport{ScrollTop: 0, ScrollHeight: 5000, ClientHeight: 500})
	source.set(1, msg(1, 1), msg(2, 1))
	_ = reconciler.Refresh(ctx)
	if !reconciler.Snapshot().HasUnread {
		t.Fatalf("expected unread before jump")
	}
	if err := reconciler.JumpToLatest(); err != nil {
		t.Fatalf("JumpToLatest() error: %v", err)
	}
	if reconciler.Snapshot().HasUnread {
		t.Fatalf("jump did not clear unread")
	}
}

func TestStaleSelectionResponseIsDiscarded(t *testing.T) {
	source := newFakeSource()
	source.set(1, msg(1, 1), msg(2, 1))
	source.set(2, msg(10, 2))
	gate := make(chan struct{})
	source.gates[1] = gate
	reconciler, _ := newTestReconciler(source)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- reconciler.Select(ctx, 1) }()
	for {
		source.mu.Lock()
		n := len(source.calls)
		source.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := reconciler.Select(ctx, 2); err != nil {
		t.Fatalf("Select(2) error: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale Select(1) error: %v", err)
	}

	state := reconciler.Snapshot()
	if state.IncidentID == nil || *state.IncidentID != 2 {
		t.Fatalf("selected incident = %v, want 2", state.IncidentID)
	}
	if len(state.Messages) != 1 || state.Messages[0].ID != 10 {
		t.Fatalf("messages = %+v, want only incident 2", state.Messages)
	}
}

func TestSendMergesOptimistically(t *testing.T) {
	source := newFakeSource()
	source.set(5, msg(1, 5))
	reconciler, _ := newTestReconciler(source)
	ctx := context.Background()

	if _, err := reconciler.Send(ctx, model.NewMessage{Type: model.MessageTypeComment, Content: "x"}); !errors.Is(err, ErrNoIncidentSelected) {
		t.Fatalf("Send() without selection = %v", err)
	}
	if err := reconciler.Select(ctx, 5); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	sent, err := reconciler.Send(ctx, model.NewMessage{Type: model.MessageTypeComment, Content: "on site"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	state := reconciler.Snapshot()
	if len(state.Messages) != 2 || *state.LastMessageID != sent.ID {
		t.Fatalf("state after send = %+v", state)
	}

	// The next refresh returns nothing new and must not duplicate the sent message.
	if err := reconciler.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got := len(reconciler.Snapshot().Messages); got != 2 {
		t.Fatalf("messages after refresh = %d, want 2", got)
	}

	source.sendErr = errors.New("backend down")
	if _, err := reconciler.Send(ctx, model.NewMessage{Type: model.MessageTypeComment, Content: "retry"}); err == nil {
		t.Fatalf("Send() should surface backend error")
	}
}

func TestRefreshIgnoredWhileIdle(t *testing.T) {
	source := newFakeSource()
	reconciler, _ := newTestReconciler(source)
	if err := reconciler.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if len(source.calls) != 0 {
		t.Fatalf("idle refresh fetched: %v", source.calls)
	}
	reconciler.Deselect()
	if reconciler.Snapshot().Phase != PhaseIdle {
		t.Fatalf("phase = %s, want idle", reconciler.Snapshot().Phase)
	}
}

func TestRefreshForPreviousIncidentIsDiscarded(t *testing.T) {
	source := newFakeSource()
	source.set(1, msg(1, 1), msg(2, 1))
	source.set(2, msg(10, 2))
	reconciler, _ := newTestReconciler(source)
	ctx := context.Background()

	if err := reconciler.Select(ctx, 1); err != nil {
		t.Fatalf("Select(1) error: %v", err)
	}
	source.set(1, msg(1, 1), msg(2, 1), msg(30, 1))
	gate := make(chan struct{})
	source.mu.Lock()
	source.gates[1] = gate
	source.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- reconciler.Refresh(ctx) }()
	for {
		source.mu.Lock()
		n := len(source.calls)
		source.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := reconciler.Select(ctx, 2); err != nil {
		t.Fatalf("Select(2) error: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale Refresh() error: %v", err)
	}

	state := reconciler.Snapshot()
	if state.IncidentID == nil || *state.IncidentID != 2 {
		t.Fatalf("selected incident = %v, want 2", state.IncidentID)
	}
	if len(state.Messages) != 1 || state.Messages[0].ID != 10 {
		t.Fatalf("messages = %+v, want only incident 2", state.Messages)
	}
	if state.LastMessageID == nil || *state.LastMessageID != 10 {
		t.Fatalf("LastMessageID = %v, want 10", state.LastMessageID)
	}
	if state.Phase != PhaseReady {
		t.Fatalf("phase = %q, want ready", state.Phase)
	}
}
