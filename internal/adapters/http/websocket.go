package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/placefinder/internal/adapters/nats"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "places" | "detections"
}

// wsEvent frames a relayed event for the client.
type wsEvent struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// wsChannels maps client channel names to NATS subjects.
var wsChannels = map[string]string{
	"places":     natsadapter.SubjectPlaceRegistered,
	"detections": natsadapter.SubjectPlaceDetected,
}

// feedFunc attaches deliver to subject and returns a function that detaches it.
type feedFunc func(subject string, deliver func(data []byte)) (func() error, error)

func natsFeed(nc *nats.Conn) feedFunc {
	return func(subject string, deliver func(data []byte)) (func() error, error) {
		sub, err := nc.Subscribe(subject, func(msg *nats.Msg) { deliver(msg.Data) })
		if err != nil {
			return nil, err
		}
		return sub.Unsubscribe, nil
	}
}

// wsSession tracks one client's channel subscriptions.
type wsSession struct {
	feed feedFunc
	send func(v interface{}) error

	mu   sync.Mutex
	subs map[string]func() error // channel -> unsubscribe
}

func newWSSession(feed feedFunc, send func(v interface{}) error) *wsSession {
	return &wsSession{feed: feed, send: send, subs: make(map[string]func() error)}
}

func (s *wsSession) join(channel string) error {
	unsub, err := s.feed(wsChannels[channel], func(data []byte) {
		_ = s.send(wsEvent{Channel: channel, Data: json.RawMessage(data)})
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs[channel] = unsub
	s.mu.Unlock()
	return nil
}

func (s *wsSession) joined(channel string) (func() error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unsub, ok := s.subs[channel]
	return unsub, ok
}

// handle applies one client message and returns the reply to send.
func (s *wsSession) handle(raw []byte) map[string]string {
	var m wsMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]string{"error": "invalid JSON"}
	}
	if _, ok := wsChannels[m.Channel]; !ok {
		return map[string]string{"error": "unknown channel: " + m.Channel}
	}

	switch m.Action {
	case "subscribe":
		if _, ok := s.joined(m.Channel); ok {
			return map[string]string{"status": "already subscribed", "channel": m.Channel}
		}
		if err := s.join(m.Channel); err != nil {
			return map[string]string{"error": "subscribe failed: " + err.Error()}
		}
		return map[string]string{"status": "subscribed", "channel": m.Channel}

	case "unsubscribe":
		unsub, ok := s.joined(m.Channel)
		if !ok {
			return map[string]string{"error": "not subscribed to " + m.Channel}
		}
		_ = unsub()
		s.mu.Lock()
		delete(s.subs, m.Channel)
		s.mu.Unlock()
		return map[string]string{"status": "unsubscribed", "channel": m.Channel}

	default:
		return map[string]string{"error": "unknown action: " + m.Action}
	}
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, unsub := range s.subs {
		_ = unsub()
		delete(s.subs, ch)
	}
}

// WebSocketHandler relays place events from NATS to connected clients.
// Every client starts subscribed to "places" and may send
// {"action":"subscribe","channel":"detections"} to add the detection feed.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		log := slog.Default().With("remote", c.RemoteAddr().String())
		log.Debug("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var writeMu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		session := newWSSession(natsFeed(nc), writeJSON)
		defer session.close()

		if err := session.join("places"); err != nil {
			log.Warn("ws default subscribe", "error", err)
			return
		}

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					writeMu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					writeMu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}
			_ = writeJSON(session.handle(raw))
		}
		log.Debug("ws client disconnected")
	}
}
