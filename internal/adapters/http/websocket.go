package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/tripsim/internal/adapters/nats"
	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to channels.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "route:<id>" | "routes" | "notices" | "all"
}

// defaultChannels are subscribed on connect so a renderer sees route
// additions, removals and notices without asking.
var defaultChannels = []string{"routes", "notices"}

// WebSocketHandler relays simulator events from NATS to a connected
// renderer. Clients send {"action":"subscribe","channel":"route:3"} to
// follow one route's state and geometry.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("remote", c.RemoteAddr().String())
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subs := newChannelSubs(nc.Subscribe, func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		})
		defer subs.closeAll()

		if err := subs.openDefaults(); err != nil {
			log.Error("ws default subscribe failed", "error", err)
			return
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
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				if subs.has(m.Channel) {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				if err := subs.add(m.Channel); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				if !subs.remove(m.Channel) {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Channel})
					continue
				}
				_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		log.Info("ws client disconnected")
	}
}

// channelSubs tracks one socket's NATS subscriptions keyed by channel.
type channelSubs struct {
	subscribe   func(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	unsubscribe func(*nats.Subscription) error
	handler     nats.MsgHandler
	subs        map[string]*nats.Subscription
}

func newChannelSubs(subscribe func(string, nats.MsgHandler) (*nats.Subscription, error), handler nats.MsgHandler) *channelSubs {
	return &channelSubs{
		subscribe:   subscribe,
		unsubscribe: (*nats.Subscription).Unsubscribe,
		handler:     handler,
		subs:        make(map[string]*nats.Subscription),
	}
}

func (cs *channelSubs) has(channel string) bool {
	_, ok := cs.subs[channel]
	return ok
}

func (cs *channelSubs) add(channel string) error {
	subject, err := natsadapter.ChannelSubject(channel)
	if err != nil {
		return err
	}
	s, err := cs.subscribe(subject, cs.handler)
	if err != nil {
		return err
	}
	cs.subs[channel] = s
	return nil
}

func (cs *channelSubs) remove(channel string) bool {
	s, ok := cs.subs[channel]
	if !ok {
		return false
	}
	_ = cs.unsubscribe(s)
	delete(cs.subs, channel)
	return true
}

// openDefaults subscribes to defaultChannels. On failure nothing stays subscribed.
func (cs *channelSubs) openDefaults() error {
	for _, ch := range defaultChannels {
		if err := cs.add(ch); err != nil {
			cs.closeAll()
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}
	return nil
}

func (cs *channelSubs) closeAll() {
	for ch := range cs.subs {
		cs.remove(ch)
	}
}
