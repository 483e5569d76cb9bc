package bus

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

const (
	TopicConnectionStatus = "connection.status"
	TopicCameras          = "cameras.updated"
	TopicTimeline         = "timeline.updated"
	TopicTimelineScroll   = "timeline.scroll"
	TopicIncidents        = "incidents.updated"
	TopicGateways         = "gateways.updated"
	TopicSession          = "session.changed"
)

// AllTopics lists every topic forwarded to stream clients.
var AllTopics = []string{
	TopicConnectionStatus,
	TopicCameras,
	TopicTimeline,
	TopicTimelineScroll,
	TopicIncidents,
	TopicGateways,
	TopicSession,
}

type Subscription chan interface{}

// Publisher is the write side used by services.
type Publisher interface {
	Publish(topic string, msg any)
}

type MessageBus interface {
	Publisher
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	return &PubSubBus{
		ps:     pubsub.New(64),
		logger: logger,
	}
}

// Publish never blocks on slow subscribers.
func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.TryPub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug("subscribe", "topics", topics)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

// Nop discards everything; used where no fan-out is wired.
type Nop struct{}

func (Nop) Publish(string, any) {}

// Message is the envelope delivered to stream clients.
type Message struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
