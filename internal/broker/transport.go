package broker

import (
	"context"
	"time"
)

// Options carries everything needed to build a transport handle.
type Options struct {
	URL            string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Events receives transport lifecycle callbacks. Each may be invoked from
// any goroutine.
type Events struct {
	Connected    func()
	Reconnecting func()
	Offline      func(err error)
	Error        func(err error)
}

// Transport is one broker connection handle.
type Transport interface {
	// Start begins connecting in the background and returns immediately.
	Start()
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	// Close forcibly terminates the handle. Events fired afterwards are ignored.
	Close()
}

// Dialer constructs transports without connecting them.
type Dialer interface {
	Dial(opts Options, events Events) Transport
}
