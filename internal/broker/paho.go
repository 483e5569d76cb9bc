package broker

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	retryInterval       = 2 * time.Second
	maxReconnectDelay   = 30 * time.Second
	disconnectQuiesceMs = 250
)

type pahoDialer struct {
	logger *slog.Logger
}

// NewPahoDialer returns a Dialer backed by the Paho MQTT client. Paho
// reconnects after a lost connection; failed initial connects are retried
// by the transport so each failure is reported through Events.Error.
func NewPahoDialer(logger *slog.Logger) Dialer {
	return pahoDialer{logger: logger}
}

func (d pahoDialer) Dial(opts Options, events Events) Transport {
	co := mqtt.NewClientOptions().
		AddBroker(opts.URL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(maxReconnectDelay).
		SetCleanSession(true)
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
	}

	co.SetOnConnectHandler(func(mqtt.Client) {
		events.Connected()
	})
	co.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		events.Reconnecting()
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		events.Offline(err)
	})
	co.SetConnectionAttemptHandler(func(broker *url.URL, cfg *tls.Config) *tls.Config {
		d.logger.Debug("broker connection attempt", "broker", broker.Redacted())
		return cfg
	})

	return &pahoTransport{
		client:     mqtt.NewClient(co),
		events:     events,
		retryDelay: retryInterval,
		closed:     make(chan struct{}),
	}
}

type pahoTransport struct {
	client     mqtt.Client
	events     Events
	retryDelay time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func (t *pahoTransport) Start() {
	go t.connectLoop()
}

// connectLoop retries the initial connect with backoff until it succeeds
// or the transport is closed.
func (t *pahoTransport) connectLoop() {
	delay := t.retryDelay
	for {
		token := t.client.Connect()
		select {
		case <-token.Done():
		case <-t.closed:
			return
		}
		err := token.Error()
		if err == nil {
			return
		}
		t.events.Error(err)

		select {
		case <-t.closed:
			return
		case <-time.After(delay):
		}
		t.events.Reconnecting()
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (t *pahoTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	token := t.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pahoTransport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
	t.client.Disconnect(disconnectQuiesceMs)
}
