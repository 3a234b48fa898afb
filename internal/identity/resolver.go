// Package identity maps session tokens issued by the identity provider to
// local profiles.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/metrics"
	"github.com/LorenzoRonconi00/twin/internal/models"
)

// SessionCookie is the cookie carrying the session token for page requests.
const SessionCookie = "__session"

// ErrUnauthenticated is returned by Initial when the request has no valid session.
var ErrUnauthenticated = errors.New("identity: no valid session")

// ProfileStore is the subset of the data store the resolver needs.
type ProfileStore interface {
	GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
	CreateProfile(ctx context.Context, userID, name, imageURL, email string) (*models.Profile, error)
}

// Resolver turns a request into the caller's profile.
type Resolver struct {
	secret   []byte
	profiles ProfileStore
}

// NewResolver creates a resolver verifying tokens with secret.
func NewResolver(secret []byte, profiles ProfileStore) *Resolver {
	return &Resolver{secret: secret, profiles: profiles}
}

// Current resolves the profile for API requests. It returns (nil, nil) when
// the request is unauthenticated or no profile exists for the subject yet.
func (res *Resolver) Current(r *http.Request) (*models.Profile, error) {
	return res.lookup(r, false)
}

// CurrentPages resolves the profile for page and socket requests, which may
// also carry the token as a "token" query parameter.
func (res *Resolver) CurrentPages(r *http.Request) (*models.Profile, error) {
	return res.lookup(r, true)
}

// Initial returns the caller's profile, creating it from the token claims on
// the first visit.
func (res *Resolver) Initial(r *http.Request) (*models.Profile, error) {
	claims := res.Claims(r, true)
	if claims == nil {
		return nil, ErrUnauthenticated
	}

	p, err := res.profiles.GetProfileByUserID(r.Context(), claims.Subject)
	if err != nil || p != nil {
		return p, err
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	p, err = res.profiles.CreateProfile(r.Context(), claims.Subject, name, claims.ImageURL, claims.Email)
	if err != nil {
		return nil, err
	}
	metrics.ProfilesCreated.Inc()
	return p, nil
}

// Claims returns the verified claims of the request, or nil.
func (res *Resolver) Claims(r *http.Request, allowQuery bool) *crypto.SessionClaims {
	raw := TokenFrom(r, allowQuery)
	if raw == "" {
		return nil
	}
	claims, err := crypto.ParseSessionToken(res.secret, raw)
	if err != nil {
		return nil
	}
	return claims
}

func (res *Resolver) lookup(r *http.Request, allowQuery bool) (*models.Profile, error) {
	claims := res.Claims(r, allowQuery)
	if claims == nil {
		return nil, nil
	}
	return res.profiles.GetProfileByUserID(r.Context(), claims.Subject)
}

// TokenFrom extracts the raw session token: Authorization bearer first, then
// the session cookie, then (if allowed) the token query parameter.
func TokenFrom(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

type contextKey string

const profileContextKey contextKey = "profile"

// WithProfile returns a copy of ctx carrying p.
func WithProfile(ctx context.Context, p *models.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey, p)
}

// ProfileFromContext retrieves the resolved profile, or nil.
func ProfileFromContext(ctx context.Context) *models.Profile {
	p, ok := ctx.Value(profileContextKey).(*models.Profile)
	if !ok {
		return nil
	}
	return p
}
