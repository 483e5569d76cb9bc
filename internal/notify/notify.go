package notify

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/tagwatch/console-sync/internal/metrics"
)

// Kinds of notification-worthy transitions.
const (
	KindNewIncidents   = "new_incidents"
	KindCameraEvent    = "camera_event"
	KindGatewayOnline  = "gateway_online"
	KindGatewayOffline = "gateway_offline"
	KindBrokerError    = "broker_error"
)

type Payload struct {
	Kind    string
	Title   string
	Content string
}

type Sender interface {
	Send(Payload)
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(p Payload) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("notification", "kind", p.Kind, "title", p.Title, "content", p.Content)
}

// DesktopSender raises native desktop notifications.
type DesktopSender struct {
	logger *slog.Logger
	notify func(title, message string) error
}

func NewDesktopSender(logger *slog.Logger) *DesktopSender {
	return &DesktopSender{
		logger: logger,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (s *DesktopSender) Send(p Payload) {
	if s == nil || s.notify == nil {
		return
	}
	title := strings.TrimSpace(p.Title)
	content := strings.TrimSpace(p.Content)
	if title == "" && content == "" {
		return
	}
	if err := s.notify(title, content); err != nil && s.logger != nil {
		s.logger.Warn("desktop notification failed", "kind", p.Kind, "err", err)
	}
}

// Fanout delivers to every non-nil sender and counts the notification once.
type Fanout []Sender

func (f Fanout) Send(p Payload) {
	metrics.ObserveNotification(p.Kind)
	for _, s := range f {
		if s != nil {
			s.Send(p)
		}
	}
}

// Nop drops notifications.
type Nop struct{}

func (Nop) Send(Payload) {}
