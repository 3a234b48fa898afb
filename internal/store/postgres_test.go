package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("twin"),
		postgres.WithUsername("twin"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, connStr))
	// Applying twice is a no-op.
	require.NoError(t, RunMigrations(ctx, connStr))

	s, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	runDataStoreSuite(t, func(t *testing.T) DataStore {
		_, err := s.pool.Exec(ctx, `
			TRUNCATE profiles, servers, channels, members, conversations, direct_messages, messages CASCADE
		`)
		require.NoError(t, err)
		return s
	})
}
