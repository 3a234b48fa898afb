package twin

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one realtime envelope.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewKey is the event key for messages created in a conversation or channel.
func NewKey(scopeID string) string { return "chat:" + scopeID + ":messages:new" }

// UpdateKey is the event key for edits and deletions.
func UpdateKey(scopeID string) string { return "chat:" + scopeID + ":messages:update" }

// Subscriber holds a websocket connection to the realtime endpoint and
// reconnects until its context ends.
type Subscriber struct {
	URL       string
	Dialer    *websocket.Dialer
	Reconnect time.Duration

	connected atomic.Bool
}

// Subscriber returns a subscriber for the client's server and token.
func (c *Client) Subscriber() *Subscriber {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		u = &url.URL{Scheme: "http", Host: "localhost:8080"}
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/socket/io"
	if c.Token != "" {
		u.RawQuery = url.Values{"token": {c.Token}}.Encode()
	}

	return &Subscriber{
		URL: u.String(),
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		Reconnect: 2 * time.Second,
	}
}

// IsConnected reports whether the socket is currently open.
func (s *Subscriber) IsConnected() bool {
	return s.connected.Load()
}

// Run delivers every event to fn, reconnecting after failures, until ctx is done.
func (s *Subscriber) Run(ctx context.Context, fn func(Event)) error {
	for {
		_ = s.session(ctx, fn)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Reconnect):
		}
	}
}

func (s *Subscriber) session(ctx context.Context, fn func(Event)) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	s.connected.Store(true)
	defer s.connected.Store(false)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}
