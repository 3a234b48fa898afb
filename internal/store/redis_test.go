package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: addr}))
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Ping(ctx))

	t.Run("pubsub", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ready := make(chan struct{})
		got := make(chan string, 1)
		done := make(chan error, 1)
		go func() {
			done <- s.Subscribe(subCtx, "twin:test", func() { close(ready) }, func(p []byte) {
				got <- string(p)
			})
		}()

		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("subscription never confirmed")
		}
		require.NoError(t, s.Publish(ctx, "twin:test", []byte(`{"event":"x"}`)))

		select {
		case p := <-got:
			assert.Equal(t, `{"event":"x"}`, p)
		case <-time.After(5 * time.Second):
			t.Fatal("payload not delivered")
		}

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("sessions", func(t *testing.T) {
		n, err := s.ActiveSessions(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.TouchSession(ctx, "p1", time.Minute))
		require.NoError(t, s.TouchSession(ctx, "p2", time.Minute))
		require.NoError(t, s.TouchSession(ctx, "p1", time.Minute))

		n, err = s.ActiveSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
