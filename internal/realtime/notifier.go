// Package realtime fans message events out to connected websocket clients.
package realtime

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks . Notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/LorenzoRonconi00/twin/internal/metrics"
)

const (
	sendBuffer  = 64
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxReadSize = 4096
)

// Notifier emits an event to every subscriber of key.
type Notifier interface {
	Emit(ctx context.Context, key string, payload any) error
}

// Event is the envelope written to clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Relay forwards encoded events to other instances, which hand them back to
// their own hub. Publishing is skipped while the relay is not subscribed.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribed() bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the process-wide realtime server. Its delivery loop starts on
// first use and runs until Close.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	once   sync.Once
	events chan []byte
	done   chan struct{}
	closed sync.Once

	mu      sync.RWMutex
	clients map[string]*client

	relay Relay
}

// NewHub creates a hub accepting websocket upgrades from allowedOrigins
// ("*" accepts any origin).
func NewHub(logger zerolog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:  logger.With().Str("component", "realtime").Logger(),
		events:  make(chan []byte, 256),
		done:    make(chan struct{}),
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// SetRelay routes emitted events through r. Call before serving traffic.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) start() {
	h.once.Do(func() {
		h.logger.Debug().Msg("realtime hub started")
		go h.run()
	})
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.events:
			h.deliver(msg)
		}
	}
}

// Emit encodes payload under key and broadcasts it. With a subscribed relay
// the event travels through the relay; otherwise, or if publishing fails, it
// is delivered locally.
func (h *Hub) Emit(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(Event{Event: key, Data: payload})
	if err != nil {
		return err
	}
	metrics.RealtimeEvents.WithLabelValues(kind(key)).Inc()

	if h.relay != nil && h.relay.Subscribed() {
		err := h.relay.Publish(ctx, data)
		if err == nil {
			return nil
		}
		h.logger.Warn().Err(err).Str("key", key).Msg("relay publish failed, delivering locally")
	}
	return h.Broadcast(ctx, data)
}

// Broadcast queues an encoded event for every local client.
func (h *Hub) Broadcast(ctx context.Context, data []byte) error {
	h.start()
	select {
	case h.events <- data:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) deliver(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			metrics.RealtimeDropped.Inc()
			h.logger.Warn().Str("client", c.id).Msg("client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.start()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	hello, _ := json.Marshal(Event{Event: "connected", Data: map[string]string{"id": c.id}})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.RealtimeClients.Inc()
	h.logger.Debug().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		metrics.RealtimeClients.Dec()
	}
	h.mu.Unlock()
}

// readPump drains client frames so pongs and close frames are processed.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug().Str("client", c.id).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of c.conn.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close stops delivery and disconnects every client.
func (h *Hub) Close() {
	h.closed.Do(func() {
		close(h.done)

		h.mu.Lock()
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
			metrics.RealtimeClients.Dec()
		}
		h.mu.Unlock()
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
