package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

func TestBucketKey(t *testing.T) {
	assert.Equal(t, "ratelimit:profile:p1:POST/api/servers", bucketKey("POST /api/servers", "ratelimit:profile:p1"))
	assert.NotEqual(t,
		bucketKey("POST /api/servers", "ratelimit:ip:1.2.3.4"),
		bucketKey("PATCH /api/servers/", "ratelimit:ip:1.2.3.4"))
}

// assertIndependentBudgets spends a profile's whole server creation budget and
// checks that other limited endpoints still answer.
func assertIndependentBudgets(t *testing.T, rl *RateLimiter) {
	t.Helper()
	h := rl.Middleware(okHandler)
	profile := &models.Profile{ID: crypto.NewUUIDv7()}

	call := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.RemoteAddr = "192.0.2.10:1234"
		req = req.WithContext(identity.WithProfile(req.Context(), profile))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, call(http.MethodPost, "/api/servers").Code, "create #%d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, call(http.MethodPost, "/api/servers").Code)

	for i := 0; i < 3; i++ {
		rec := call(http.MethodPatch, "/api/servers/s1/invite-code")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := call(http.MethodGet, "/api/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("X-RateLimit-Limit"))
}

func TestLocalBudgetsArePerPattern(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})
	assertIndependentBudgets(t, rl)
}

func TestSharedBudgetsArePerPattern(t *testing.T) {
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
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{})
	assertIndependentBudgets(t, rl)
}
