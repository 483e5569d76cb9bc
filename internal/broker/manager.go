package broker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/metrics"
	"github.com/tagwatch/console-sync/internal/notify"
)

// Status is the process-wide broker connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

var (
	ErrConnectTimeout = errors.New("broker connect timed out")
	ErrNotConnected   = errors.New("broker not connected")
)

// Snapshot is published on the bus on every transition.
type Snapshot struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Config selects the broker and credentials.
type Config struct {
	URL            string
	ClientPrefix   string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

type transition struct {
	status Status
	err    error
}

// Manager owns the single broker handle. Status observers run
// synchronously, in order, once per distinct transition; they must not
// call Connect or Disconnect from inside the callback.
type Manager struct {
	cfg       Config
	dialer    Dialer
	publisher bus.Publisher
	notifier  notify.Sender
	logger    *slog.Logger

	// deliverMu serializes transitions together with their fan-out.
	deliverMu sync.Mutex

	mu       sync.Mutex
	status   Status
	lastErr  error
	handle   Transport
	gen      uint64
	nextID   uint64
	subs     map[uint64]func(Status)
	waiters  map[uint64]chan transition
	clientID string
}

func NewManager(cfg Config, dialer Dialer, publisher bus.Publisher, notifier notify.Sender, logger *slog.Logger) *Manager {
	if publisher == nil {
		publisher = bus.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		cfg:       cfg,
		dialer:    dialer,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		status:    StatusDisconnected,
		subs:      make(map[uint64]func(Status)),
		waiters:   make(map[uint64]chan transition),
	}
}

// Connect returns the live handle, creating one if none exists.
func (m *Manager) Connect() Transport {
	m.mu.Lock()
	if m.handle != nil {
		handle := m.handle
		m.mu.Unlock()
		return handle
	}
	m.gen++
	gen := m.gen
	m.clientID = m.cfg.ClientPrefix + "-" + uuid.NewString()
	handle := m.dialer.Dial(Options{
		URL:            m.cfg.URL,
		ClientID:       m.clientID,
		Username:       m.cfg.Username,
		Password:       m.cfg.Password,
		ConnectTimeout: m.cfg.ConnectTimeout,
	}, m.eventsFor(gen))
	m.handle = handle
	m.mu.Unlock()

	m.logger.Info("broker connecting", "url", m.cfg.URL, "client_id", m.clientID)
	m.setStatus(gen, StatusConnecting, nil)
	handle.Start()
	return handle
}

// Disconnect terminates the handle if one exists. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	handle := m.handle
	if handle == nil {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	handle.Close()
	m.logger.Info("broker disconnected")
	m.setStatus(gen, StatusDisconnected, nil)
}

// EnsureConnected returns the handle once connected, connecting if needed.
// It fails with ErrConnectTimeout after timeout or with the transport error
// observed while waiting.
func (m *Manager) EnsureConnected(ctx context.Context, timeout time.Duration) (Transport, error) {
	if timeout <= 0 {
		timeout = m.cfg.ConnectTimeout
	}

	m.mu.Lock()
	if m.status == StatusConnected && m.handle != nil {
		handle := m.handle
		m.mu.Unlock()
		return handle, nil
	}
	m.nextID++
	id := m.nextID
	ch := make(chan transition, 8)
	m.waiters[id] = ch
	m.mu.Unlock()
	defer m.removeWaiter(id)

	m.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case tr := <-ch:
			switch tr.status {
			case StatusConnected:
				m.mu.Lock()
				handle := m.handle
				m.mu.Unlock()
				if handle == nil {
					return nil, ErrNotConnected
				}
				return handle, nil
			case StatusError:
				return nil, tr.err
			}
		case <-timer.C:
			return nil, ErrConnectTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Publish sends payload once the connection is established.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	handle, err := m.EnsureConnected(ctx, m.cfg.ConnectTimeout)
	if err != nil {
		return err
	}
	return handle.Publish(ctx, topic, qos, payload)
}

// Subscribe delivers the current status immediately and every later
// transition. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	current := m.status
	m.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Snapshot{Status: m.status}
	if m.lastErr != nil {
		out.Error = m.lastErr.Error()
	}
	return out
}

func (m *Manager) eventsFor(gen uint64) Events {
	return Events{
		Connected: func() {
			m.setStatus(gen, StatusConnected, nil)
		},
		Reconnecting: func() {
			m.setStatus(gen, StatusConnecting, nil)
		},
		Offline: func(err error) {
			if err != nil {
				m.logger.Warn("broker connection lost", "err", err)
			}
			m.setStatus(gen, StatusDisconnected, nil)
		},
		Error: func(err error) {
			m.logger.Error("broker transport error", "err", err)
			m.setStatus(gen, StatusError, err)
		},
	}
}

func (m *Manager) setStatus(gen uint64, next Status, cause error) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if gen != m.gen || m.status == next {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = next
	m.lastErr = cause
	subs := m.sortedSubs()
	for _, ch := range m.waiters {
		select {
		case ch <- transition{status: next, err: cause}:
		default:
		}
	}
	m.mu.Unlock()

	m.logger.Debug("broker status", "from", prev, "to", next)
	metrics.ObserveBrokerTransition(string(next))
	snapshot := Snapshot{Status: next}
	if cause != nil {
		snapshot.Error = cause.Error()
		m.notifier.Send(notify.Payload{
			Kind:    notify.KindBrokerError,
			Title:   "Broker connection error",
			Content: cause.Error(),
		})
	}
	m.publisher.Publish(bus.TopicConnectionStatus, snapshot)

	for _, fn := range subs {
		fn(next)
	}
}

// sortedSubs returns observers in subscription order. Caller holds mu.
func (m *Manager) sortedSubs() []func(Status) {
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(Status), 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[id])
	}
	return out
}

func (m *Manager) removeWaiter(id uint64) {
	m.mu.Lock()
	delete(m.waiters, id)
	m.mu.Unlock()
}

func (m *Manager) pendingWaiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
