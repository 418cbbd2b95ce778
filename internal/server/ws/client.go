package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// client is one WebSocket connection. It starts subscribed to every event
// channel.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	proto bool

	mu     sync.RWMutex
	filter map[string]struct{}
}

// control is the only inbound frame clients send:
// {"action":"subscribe"|"unsubscribe","channels":["oracle:ch:resolution"]}.
// A channel ending in '*' matches by prefix.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func newClient(h *Hub, conn *websocket.Conn, proto bool) *client {
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		proto:  proto,
		filter: make(map[string]struct{}),
	}
	for _, ch := range domain.EventChannels {
		c.filter[ch] = struct{}{}
	}
	return c
}

// enqueue is used before the client is registered, when nothing else can
// close send.
func (c *client) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.filter[channel]; ok {
		return true
	}
	for f := range c.filter {
		if prefix, ok := strings.CutSuffix(f, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) apply(msg control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.filter[ch] = struct{}{}
		case "unsubscribe":
			delete(c.filter, ch)
		}
	}
}

func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws: read ended", slog.String("error", err.Error()))
			}
			return
		}
		var msg control
		if json.Unmarshal(data, &msg) == nil && msg.Action != "" {
			c.apply(msg)
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			kind := websocket.TextMessage
			if c.proto {
				frame, err := ProtoFrame(payload)
				if err != nil {
					c.hub.logger.Warn("ws: dropping event", slog.String("error", err.Error()))
					continue
				}
				payload, kind = frame, websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, payload); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
