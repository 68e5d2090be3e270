package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to event feeds.
type wsMessage struct {
	Action    string `json:"action"`     // "subscribe" | "unsubscribe"
	Channel   string `json:"channel"`    // "draft" | "features" (default: draft)
	SessionID string `json:"session_id"` // "" = all sessions
}

// WebSocketHandler upgrades to WebSocket and relays map events from
// NATS to the client. A session_id query parameter auto-subscribes the
// connection to that session's draft events; further subscriptions are
// managed with JSON messages like
// {"action":"subscribe","channel":"features","session_id":"..."}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			if _, exists := subs[subject]; exists {
				return writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
			}
			subs[subject] = s
			return writeJSON(map[string]string{"status": "subscribed", "subject": subject})
		}

		// A session id on the upgrade request wires the client to its
		// own draft feed immediately.
		if sid := c.Query("session_id"); sid != "" {
			if err := subscribe("map.draft." + sid); err != nil {
				slog.Warn("ws auto-subscribe failed", "session_id", sid, "error", err)
				return
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			channel := m.Channel
			if channel == "" {
				channel = "draft"
			}

			var subject string
			switch channel {
			case "draft":
				if m.SessionID != "" {
					subject = "map.draft." + m.SessionID
				} else {
					subject = "map.draft.>"
				}
			case "features":
				if m.SessionID != "" {
					subject = "map.feature.*." + m.SessionID
				} else {
					subject = "map.feature.>"
				}
			default:
				_ = writeJSON(map[string]string{"error": "unknown channel: " + channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				_ = subscribe(subject)

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
