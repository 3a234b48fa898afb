package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "chat:abc:messages:update", UpdateKey("abc"))
	assert.Equal(t, "chat:abc:messages:new", NewKey("abc"))
	assert.Equal(t, "update", kind(UpdateKey("x")))
	assert.Equal(t, "new", kind(NewKey("x")))
	assert.Equal(t, "other", kind("connected"))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsToEveryClient(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"*"})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	assert.Equal(t, "connected", readEvent(t, a)["event"])
	assert.Equal(t, "connected", readEvent(t, b)["event"])
	waitForClients(t, hub, 2)

	payload := map[string]string{"id": "m1", "content": "ciao"}
	require.NoError(t, hub.Emit(context.Background(), UpdateKey("conv1"), payload))

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, "chat:conv1:messages:update", ev["event"])
		assert.Equal(t, "ciao", ev["data"].(map[string]any)["content"])
	}
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"*"})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readEvent(t, conn)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Emitting with nobody listening still succeeds.
	assert.NoError(t, hub.Emit(context.Background(), NewKey("c"), "x"))
}

func TestHubStartsOnce(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, hub.Emit(context.Background(), NewKey("c"), i))
		}()
	}
	wg.Wait()
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"https://app.example.com"})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}

// fakeBroker loops published payloads back to subscribers.
type fakeBroker struct {
	mu        sync.Mutex
	subs      []func([]byte)
	failNext  bool
	published int
	ready     chan struct{}

	subscribeErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{ready: make(chan struct{})}
}

func (b *fakeBroker) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return errors.New("broker down")
	}
	b.published++
	for _, fn := range b.subs {
		fn(payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, _ string, ready func(), fn func([]byte)) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
	ready()
	close(b.ready)
	<-ctx.Done()
	return nil
}

func TestBrokerRelayRoundTrip(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"*"})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	broker := newFakeBroker()
	relay := NewBrokerRelay(broker, "twin:realtime", hub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)
	<-broker.ready

	conn := dial(t, srv)
	readEvent(t, conn)
	waitForClients(t, hub, 1)

	require.NoError(t, hub.Emit(ctx, NewKey("chan1"), "via broker"))
	ev := readEvent(t, conn)
	assert.Equal(t, "chat:chan1:messages:new", ev["event"])
	assert.Equal(t, "via broker", ev["data"])
	assert.Equal(t, 1, broker.published)

	// A failed publish falls back to local delivery.
	broker.mu.Lock()
	broker.failNext = true
	broker.mu.Unlock()
	require.NoError(t, hub.Emit(ctx, UpdateKey("chan1"), "local"))
	ev = readEvent(t, conn)
	assert.Equal(t, "chat:chan1:messages:update", ev["event"])
}

func TestHubDeliversLocallyWhileRelayIsDown(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"*"})
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	broker := newFakeBroker()
	broker.subscribeErr = errors.New("subscribe refused")
	relay := NewBrokerRelay(broker, "twin:realtime", hub, zerolog.Nop())

	ctx := context.Background()
	require.Error(t, relay.Run(ctx))
	assert.False(t, relay.Subscribed())

	conn := dial(t, srv)
	readEvent(t, conn)
	waitForClients(t, hub, 1)

	require.NoError(t, hub.Emit(ctx, NewKey("chan1"), "local only"))
	ev := readEvent(t, conn)
	assert.Equal(t, "local only", ev["data"])

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Zero(t, broker.published, "nothing is published without a subscription")
}

func TestRelayReportsSubscription(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"*"})
	defer hub.Close()

	broker := newFakeBroker()
	relay := NewBrokerRelay(broker, "twin:realtime", hub, zerolog.Nop())
	require.False(t, relay.Subscribed())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	<-broker.ready
	assert.True(t, relay.Subscribed())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, relay.Subscribed())
}
