package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/LorenzoRonconi00/twin/internal/apperr"
	"github.com/LorenzoRonconi00/twin/internal/identity"
	"github.com/LorenzoRonconi00/twin/internal/models"
	"github.com/LorenzoRonconi00/twin/internal/realtime"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	ClientCount() int
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     store.DataStore
	redis     *store.RedisStore
	notifier  realtime.Notifier
	clients   ClientCounter
	resolver  *identity.Resolver
	logger    zerolog.Logger
	signInURL string
}

// Deps bundles what NewHandler needs. Redis and Clients are optional.
type Deps struct {
	Store     store.DataStore
	Redis     *store.RedisStore
	Notifier  realtime.Notifier
	Clients   ClientCounter
	Resolver  *identity.Resolver
	Logger    zerolog.Logger
	SignInURL string
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		redis:     d.Redis,
		notifier:  d.Notifier,
		clients:   d.Clients,
		resolver:  d.Resolver,
		logger:    d.Logger,
		signInURL: d.SignInURL,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail answers with the status and public message of err. Internal failures
// are logged under tag and never expose their cause.
func (h *Handler) Fail(w http.ResponseWriter, tag string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("tag", tag).Msg("request failed")
	}
	h.Error(w, status, apperr.PublicMessage(err))
}

// profile returns the caller resolved by the identity middleware.
func (h *Handler) profile(r *http.Request) *models.Profile {
	return identity.ProfileFromContext(r.Context())
}

// emit notifies subscribers. Delivery is best-effort: failures are logged
// and never fail the request.
func (h *Handler) emit(r *http.Request, tag, key string, payload any) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Emit(r.Context(), key, payload); err != nil {
		h.logger.Warn().Err(err).Str("tag", tag).Str("key", key).Msg("realtime emit failed")
	}
}

// storeError maps store sentinels onto the error taxonomy.
func storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrForbidden):
		return apperr.Unauthorized()
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	}
	return apperr.Internal(err)
}

// requireID parses a required uuid parameter. Missing and malformed values
// are both reported as missing.
func requireID(raw, missing string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, apperr.InvalidArg(missing)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.InvalidArg(missing)
	}
	return id, nil
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArg(apperr.MsgInvalidBody)
	}
	return nil
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 runes
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}

// Page is one batch of message history.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// parseCursor reads an optional cursor; malformed cursors start from the newest.
func parseCursor(r *http.Request) *uuid.UUID {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
