// Package ws streams resolution and challenge events to browsers over
// WebSocket, as JSON text frames or as google.protobuf.Struct binary frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
	sendQueue      = 256
	maxReplay      = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origins are enforced by the CORS layer in front of the API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Config is reported to clients in the hello frame.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub relays bus events to every connected client whose channel filter
// matches.
type Hub struct {
	bus       domain.EventBus
	logger    *slog.Logger
	mode      string
	startedAt time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws")),
		mode:      mode,
		startedAt: started,
		clients:   make(map[*client]struct{}),
	}
}

// Run subscribes to every event channel and fans messages out until ctx is
// cancelled. Connected clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, domain.EventChannels...)
	if err != nil {
		return err
	}
	defer h.disconnectAll()

	h.logger.Info("ws: hub running", slog.Any("channels", domain.EventChannels))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("ws: event subscription closed")
			}
			h.fanOut(m)
		}
	}
}

func (h *Hub) fanOut(m domain.BusMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(m.Channel) {
			continue
		}
		select {
		case c.send <- m.Payload:
		default:
			h.logger.Warn("ws: client queue full, dropping event", slog.String("channel", m.Channel))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request. Query parameters: format=proto selects
// binary frames, replay=N (at most 100) sends the N most recent events
// before live ones.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	replay, _ := strconv.Atoi(q.Get("replay"))
	replay = min(max(replay, 0), maxReplay)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, strings.EqualFold(q.Get("format"), "proto"))
	c.enqueue(h.hello())
	if replay > 0 {
		backlog, err := h.bus.Replay(r.Context(), replay)
		if err != nil {
			h.logger.Warn("ws: replay failed", slog.String("error", err.Error()))
		}
		for _, m := range backlog {
			c.enqueue(m.Payload)
		}
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("ws: client connected", slog.Int("clients", h.Clients()))

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) hello() []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "oracle_status",
		"payload": map[string]any{
			"mode":           h.mode,
			"uptime_seconds": max(0, int64(time.Since(h.startedAt).Seconds())),
			"channels":       domain.EventChannels,
		},
	})
	return b
}
