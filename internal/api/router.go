package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/LorenzoRonconi00/twin/internal/api/middleware"
	"github.com/LorenzoRonconi00/twin/internal/handlers"
	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/realtime"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

// Deps are the collaborators the router wires into handlers and middleware.
type Deps struct {
	Logger   zerolog.Logger
	Store    store.DataStore
	Redis    *store.RedisStore // optional
	Hub      *realtime.Hub
	Notifier realtime.Notifier // defaults to Hub
	Resolver *identity.Resolver

	AllowedOrigins []string
	SignInURL      string
	RateLimit      middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: len(d.AllowedOrigins) > 0 && d.AllowedOrigins[0] != "*",
		MaxAge:           300,
	}))

	notifier := d.Notifier
	if notifier == nil && d.Hub != nil {
		notifier = d.Hub
	}
	deps := handlers.Deps{
		Store:     d.Store,
		Redis:     d.Redis,
		Notifier:  notifier,
		Resolver:  d.Resolver,
		Logger:    d.Logger,
		SignInURL: d.SignInURL,
	}
	if d.Hub != nil {
		deps.Clients = d.Hub
	}
	h := handlers.NewHandler(deps)

	var redisClient *redis.Client
	if d.Redis != nil {
		redisClient = d.Redis.Client()
	}
	limiter := middleware.NewRateLimiter(redisClient, d.Logger, d.RateLimit)
	ident := middleware.NewIdentityMiddleware(d.Resolver, d.Redis, d.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Legacy page routes accept the token as a query parameter.
	r.Group(func(r chi.Router) {
		r.Use(ident.IdentifyPages)

		r.Get("/servers/{serverId}", h.ServerLanding)
		if d.Hub != nil {
			r.Handle("/api/socket/io", d.Hub)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(ident.Identify)
		r.Use(limiter.Middleware)

		r.Get("/profile", h.InitialProfile)
		r.Get("/stats", h.Stats)

		r.Post("/servers", h.CreateServer)
		r.Get("/servers/{serverId}", h.GetServer)
		r.Patch("/servers/{serverId}/invite-code", h.RegenerateInviteCode)
		r.Post("/invite/{inviteCode}", h.JoinServer)

		r.Post("/channels", h.CreateChannel)
		r.Patch("/channels/{channelId}", h.UpdateChannel)
		r.Delete("/channels/{channelId}", h.DeleteChannel)

		r.Patch("/members/{memberId}", h.UpdateMemberRole)
		r.Delete("/members/{memberId}", h.RemoveMember)

		r.Post("/conversations", h.GetOrCreateConversation)

		r.Get("/direct-messages", h.ListDirectMessages)
		r.Post("/socket/direct-messages", h.SendDirectMessage)
		r.HandleFunc("/socket/direct-messages/{directMessageId}", h.DirectMessageID)

		r.Get("/messages", h.ListMessages)
		r.Post("/socket/messages", h.SendMessage)
		r.HandleFunc("/socket/messages/{messageId}", h.MessageID)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
