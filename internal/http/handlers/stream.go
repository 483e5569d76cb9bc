package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tagwatch/console-sync/internal/bus"
	"github.com/tagwatch/console-sync/internal/services/timeline"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
	streamReadLimit  = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientFrame is sent by dashboards over the stream.
type clientFrame struct {
	Type         string  `json:"type"`
	Visible      *bool   `json:"visible,omitempty"`
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// Stream upgrades to a websocket, pushes every bus topic as
// {topic,data} frames and accepts visibility and viewport reports.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	viewerID := a.deps.Viewers.Attach()
	defer a.deps.Viewers.Detach(viewerID)
	logger := a.logger.With("viewer", viewerID)
	logger.Info("stream attached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan bus.Message, 32)
	var forwarders sync.WaitGroup
	subs := make(map[string]bus.Subscription, len(bus.AllTopics))
	for _, topic := range bus.AllTopics {
		sub := a.deps.Bus.Subscribe(topic)
		subs[topic] = sub
		forwarders.Add(1)
		go func(topic string, sub bus.Subscription) {
			defer forwarders.Done()
			for payload := range sub {
				select {
				case out <- bus.Message{Topic: topic, Data: payload}:
				case <-ctx.Done():
				}
			}
		}(topic, sub)
	}
	defer func() {
		cancel()
		for topic, sub := range subs {
			a.deps.Bus.Unsubscribe(sub, topic)
		}
		forwarders.Wait()
	}()

	for _, initial := range a.initialFrames() {
		if err := writeFrame(conn, initial); err != nil {
			logger.Debug("stream initial write failed", "err", err)
			return
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		a.streamWriter(ctx, conn, out)
		cancel()
		_ = conn.Close()
	}()

	a.streamReader(conn, viewerID)
	cancel()
	<-writerDone
	logger.Info("stream detached")
}

func (a *API) streamWriter(ctx context.Context, conn *websocket.Conn, out <-chan bus.Message) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case msg := <-out:
			if err := writeFrame(conn, msg); err != nil {
				a.logger.Debug("stream write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (a *API) streamReader(conn *websocket.Conn, viewerID string) {
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			a.logger.Debug("ignoring malformed stream frame", "err", err)
			continue
		}
		switch frame.Type {
		case "visibility":
			if frame.Visible != nil {
				a.deps.Viewers.SetVisible(viewerID, *frame.Visible)
			}
		case "viewport":
			a.deps.Timeline.ReportViewport(timeline.Viewport{
				ScrollTop:    frame.ScrollTop,
				ScrollHeight: frame.ScrollHeight,
				ClientHeight: frame.ClientHeight,
			})
		}
	}
}

func (a *API) initialFrames() []bus.Message {
	return []bus.Message{
		{Topic: bus.TopicConnectionStatus, Data: a.deps.Broker.Status()},
		{Topic: bus.TopicCameras, Data: a.deps.Cameras.Snapshot()},
		{Topic: bus.TopicIncidents, Data: a.deps.Incidents.Snapshot()},
		{Topic: bus.TopicTimeline, Data: a.deps.Timeline.Snapshot()},
		{Topic: bus.TopicGateways, Data: a.deps.Gateways.Snapshot()},
	}
}

func writeFrame(conn *websocket.Conn, msg bus.Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
