package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/LorenzoRonconi00/twin/internal/api"
	"github.com/LorenzoRonconi00/twin/internal/api/middleware"
	"github.com/LorenzoRonconi00/twin/internal/config"
	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/realtime"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

const relayRetry = 2 * time.Second

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	if len(cfg.AuthSecret) == 0 {
		logger.Warn().Msg("AUTH_SECRET is empty: every request will be anonymous")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore := openStore(ctx, cfg, logger)
	defer dataStore.Close()

	hub := realtime.NewHub(logger, cfg.AllowedOrigins)
	defer hub.Close()

	// Redis shares rate limits and relays events between instances.
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Str("channel", cfg.RealtimeChannel).Msg("connected to Redis")

		relay := realtime.NewBrokerRelay(redisStore, cfg.RealtimeChannel, hub, logger)
		go runRelay(ctx, relay, logger)
	}

	router := api.NewRouter(api.Deps{
		Logger:         logger,
		Store:          dataStore,
		Redis:          redisStore,
		Hub:            hub,
		Resolver:       identity.NewResolver(cfg.AuthSecret, dataStore),
		AllowedOrigins: cfg.AllowedOrigins,
		SignInURL:      cfg.SignInURL,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// WriteTimeout stays unset for websocket connections.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting twin server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

// runRelay keeps the relay subscribed. While it is down the hub delivers
// events to local clients only.
func runRelay(ctx context.Context, relay *realtime.BrokerRelay, logger zerolog.Logger) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("realtime relay stopped, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRetry):
		}
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "twin").Logger()
}

// openStore uses Postgres when DATABASE_URL is set and SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.DataStore {
	if cfg.DatabaseURL == "" {
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
		return s
	}

	logger.Info().Msg("running database migrations...")
	if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	logger.Info().Msg("connected to PostgreSQL")
	return s
}
