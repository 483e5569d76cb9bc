package gateways

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/model"
	"github.com/tagwatch/console-sync/internal/notify"
	"github.com/tagwatch/console-sync/internal/poller"
)

// Source lists gateways with their last heartbeat.
type Source interface {
	ListGateways(ctx context.Context) ([]model.Gateway, error)
}

type pendingChange struct {
	presence model.PresenceStatus
	reason   string
	seen     int
}

// Monitor derives gateway presence and only reports a change after it has
// been observed on consecutive polls.
type Monitor struct {
	source     Source
	thresholds model.PresenceThresholds
	debounce   int
	publisher  bus.Publisher
	notifier   notify.Sender
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	states  map[string]model.GatewayState
	pending map[string]pendingChange
}

func NewMonitor(
	source Source,
	thresholds model.PresenceThresholds,
	debounce int,
	publisher bus.Publisher,
	notifier notify.Sender,
	logger *slog.Logger,
) *Monitor {
	if debounce <= 0 {
		debounce = 1
	}
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Monitor{
		source:     source,
		thresholds: thresholds.Normalize(),
		debounce:   debounce,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		states:     map[string]model.GatewayState{},
		pending:    map[string]pendingChange{},
	}
}

func (m *Monitor) Poll(ctx context.Context) error {
	gateways, err := m.source.ListGateways(ctx)
	if err != nil {
		return err
	}
	if poller.Stopped(ctx) {
		return ctx.Err()
	}

	now := m.now().UTC()
	var alerts []notify.Payload

	m.mu.Lock()
	listed := make(map[string]struct{}, len(gateways))
	for _, gateway := range gateways {
		listed[gateway.ID] = struct{}{}
		presence, reason := derivePresence(now, gateway, m.thresholds)

		current, known := m.states[gateway.ID]
		if !known {
			m.states[gateway.ID] = model.GatewayState{Gateway: gateway, Presence: presence, Reason: reason, ChangedAt: now}
			continue
		}
		current.Gateway = gateway

		if presence == current.Presence {
			delete(m.pending, gateway.ID)
			current.Reason = reason
			m.states[gateway.ID] = current
			continue
		}

		change := m.pending[gateway.ID]
		if change.presence == presence {
			change.seen++
		} else {
			change = pendingChange{presence: presence, seen: 1}
		}
		change.reason = reason

		if change.seen < m.debounce {
			m.pending[gateway.ID] = change
			m.states[gateway.ID] = current
			continue
		}

		delete(m.pending, gateway.ID)
		from := current.Presence
		current.Presence = presence
		current.Reason = reason
		current.ChangedAt = now
		m.states[gateway.ID] = current
		m.logger.Info("gateway presence changed", "gateway_id", gateway.ID, "from", from, "to", presence, "reason", reason)

		if kind := transitionKind(from, presence); kind != "" {
			alerts = append(alerts, notify.Payload{
				Kind:    kind,
				Title:   "Gateway " + string(presence),
				Content: fmt.Sprintf("%s is now %s", gatewayName(gateway), presence),
			})
		}
	}
	for id := range m.states {
		if _, ok := listed[id]; !ok {
			delete(m.states, id)
			delete(m.pending, id)
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	for _, alert := range alerts {
		m.notifier.Send(alert)
	}
	m.publisher.Publish(bus.TopicGateways, snapshot)
	return nil
}

func (m *Monitor) Snapshot() []model.GatewayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() []model.GatewayState {
	out := make([]model.GatewayState, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func gatewayName(gateway model.Gateway) string {
	if gateway.Name != "" {
		return gateway.Name
	}
	return gateway.ID
}
