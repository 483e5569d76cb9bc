package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/metrics"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
	"github.com/tagwatch/console-sync/internal/poller"
	"github.com/tagwatch/console-sync/internal/prefs"
)

// Source is the slice of the backend the notifier uses.
type Source interface {
	MyIncidents(ctx context.Context, limit int) ([]model.Incident, error)
	CreateIncident(ctx context.Context, in model.NewIncident) (model.Incident, error)
}

// View is what the dashboard renders for the recent-incidents panel.
type View struct {
	Items     []model.Incident `json:"items"`
	HasNew    bool             `json:"has_new"`
	LastTopID *int64           `json:"last_top_id"`
	Selection []int64          `json:"selection"`
	Hidden    int              `json:"hidden"`
}

// Notifier polls "my incidents" and keeps a sticky new-arrivals flag.
type Notifier struct {
	source    Source
	hidden    *prefs.IDSet
	publisher bus.Publisher
	notifier  notify.Sender
	logger    *slog.Logger
	limit     int

	mu        sync.Mutex
	seq       uint64
	items     []model.Incident
	lastTop   *int64
	hasNew    bool
	selection map[int64]struct{}
}

func NewNotifier(source Source, hidden *prefs.IDSet, publisher bus.Publisher, notifier notify.Sender, limit int, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Notifier{
		source:    source,
		hidden:    hidden,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		limit:     limit,
		selection: map[int64]struct{}{},
	}
}

func (n *Notifier) Poll(ctx context.Context) error {
	n.mu.Lock()
	n.seq++
	token := n.seq
	n.mu.Unlock()

	items, err := n.source.MyIncidents(ctx, n.limit)
	if err != nil {
		return err
	}
	sortNewestFirst(items)

	n.mu.Lock()
	if token != n.seq {
		n.mu.Unlock()
		metrics.ObserveStaleResponse("incidents")
		n.logger.Debug("discarding stale incidents response")
		return nil
	}
	if poller.Stopped(ctx) {
		n.mu.Unlock()
		return ctx.Err()
	}

	n.items = items
	raised := false
	if len(items) > 0 {
		top := items[0].ID
		if n.lastTop != nil && *n.lastTop != top {
			raised = !n.hasNew
			n.hasNew = true
		}
		n.lastTop = &top
	}
	view := n.viewLocked()
	n.mu.Unlock()

	if raised {
		n.notifier.Send(notify.Payload{
			Kind:    notify.KindNewIncidents,
			Title:   "New incidents",
			Content: fmt.Sprintf("%s was assigned to you", items[0].Title),
		})
	}
	n.publisher.Publish(bus.TopicIncidents, view)
	return nil
}

// SetSelection replaces the multi-select. Unknown ids are kept; they are
// still valid targets for MarkRead.
func (n *Notifier) SetSelection(ids []int64) View {
	n.mu.Lock()
	n.selection = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		n.selection[id] = struct{}{}
	}
	view := n.viewLocked()
	n.mu.Unlock()

	n.publisher.Publish(bus.TopicIncidents, view)
	return view
}

// MarkRead hides the selection, or every visible incident when nothing is
// selected, then clears the new flag and the selection.
func (n *Notifier) MarkRead(ctx context.Context) ([]int64, error) {
	n.mu.Lock()
	var ids []int64
	if len(n.selection) > 0 {
		for id := range n.selection {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	} else {
		for _, item := range n.items {
			if !n.hidden.Contains(item.ID) {
				ids = append(ids, item.ID)
			}
		}
	}
	n.hasNew = false
	n.selection = map[int64]struct{}{}
	n.mu.Unlock()

	err := n.hidden.Add(ctx, ids...)
	if err != nil {
		n.logger.Warn("persist hidden incidents failed", "err", err)
	}

	n.mu.Lock()
	view := n.viewLocked()
	n.mu.Unlock()
	n.publisher.Publish(bus.TopicIncidents, view)
	return ids, err
}

// Create opens an incident, makes sure it is not pre-hidden and puts it
// at the top of the list.
func (n *Notifier) Create(ctx context.Context, in model.NewIncident) (model.Incident, error) {
	created, err := n.source.CreateIncident(ctx, in)
	if err != nil {
		return model.Incident{}, err
	}
	if err := n.hidden.Remove(ctx, created.ID); err != nil {
		n.logger.Warn("persist hidden incidents failed", "err", err)
	}

	n.mu.Lock()
	// A poll started before the create would overwrite the new top.
	n.seq++
	items := make([]model.Incident, 0, len(n.items)+1)
	items = append(items, created)
	for _, item := range n.items {
		if item.ID != created.ID {
			items = append(items, item)
		}
	}
	n.items = items
	top := created.ID
	n.lastTop = &top
	view := n.viewLocked()
	n.mu.Unlock()

	n.logger.Info("incident created", "incident_id", created.ID)
	n.publisher.Publish(bus.TopicIncidents, view)
	return created, nil
}

func (n *Notifier) Snapshot() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.viewLocked()
}

func (n *Notifier) viewLocked() View {
	view := View{
		Items:     make([]model.Incident, 0, len(n.items)),
		HasNew:    n.hasNew,
		Selection: make([]int64, 0, len(n.selection)),
		Hidden:    n.hidden.Len(),
	}
	for _, item := range n.items {
		if !n.hidden.Contains(item.ID) {
			view.Items = append(view.Items, item)
		}
	}
	for id := range n.selection {
		view.Selection = append(view.Selection, id)
	}
	sort.Slice(view.Selection, func(i, j int) bool { return view.Selection[i] > view.Selection[j] })
	if n.lastTop != nil {
		top := *n.lastTop
		view.LastTopID = &top
	}
	return view
}

func sortNewestFirst(items []model.Incident) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
