package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/models"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

// sessionTTL bounds how long a profile counts as active after its last request.
const sessionTTL = 15 * time.Minute

// IdentityMiddleware resolves the caller's profile and stores it in the
// request context. It never rejects anonymous requests; handlers decide.
type IdentityMiddleware struct {
	resolver *identity.Resolver
	redis    *store.RedisStore
	logger   zerolog.Logger
}

// NewIdentityMiddleware creates a new identity middleware. redis may be nil.
func NewIdentityMiddleware(resolver *identity.Resolver, redis *store.RedisStore, logger zerolog.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{resolver: resolver, redis: redis, logger: logger}
}

// Identify resolves API callers from the bearer header or session cookie.
func (m *IdentityMiddleware) Identify(next http.Handler) http.Handler {
	return m.wrap(next, m.resolver.Current)
}

// IdentifyPages also accepts a token query parameter, for page and socket requests.
func (m *IdentityMiddleware) IdentifyPages(next http.Handler) http.Handler {
	return m.wrap(next, m.resolver.CurrentPages)
}

func (m *IdentityMiddleware) wrap(next http.Handler, resolve func(*http.Request) (*models.Profile, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := resolve(r)
		if err != nil {
			m.logger.Error().Err(err).Str("path", r.URL.Path).Msg("profile lookup failed")
			jsonError(w, http.StatusInternalServerError, apperr.MsgInternal)
			return
		}
		if profile == nil {
			next.ServeHTTP(w, r)
			return
		}

		if m.redis != nil {
			if err := m.redis.TouchSession(r.Context(), profile.ID.String(), sessionTTL); err != nil {
				m.logger.Debug().Err(err).Msg("session touch failed")
			}
		}
		next.ServeHTTP(w, r.WithContext(identity.WithProfile(r.Context(), profile)))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
