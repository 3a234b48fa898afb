package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LorenzoRonconi00/twin/internal/crypto"
	"github.com/LorenzoRonconi00/twin/internal/store"
)

var testSecret = []byte("test-secret")

func newResolver(t *testing.T) (*Resolver, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "twin.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return NewResolver(testSecret, s), s
}

func sign(t *testing.T, secret []byte, subject string, ttl time.Duration) string {
	t.Helper()
	token, err := crypto.SignSessionToken(secret, subject, crypto.SessionClaims{
		Name:     "Mario",
		ImageURL: "https://img.example.com/mario.png",
		Email:    "mario@example.com",
	}, ttl)
	require.NoError(t, err)
	return token
}

func TestInitialCreatesProfileOnce(t *testing.T) {
	res, _ := newResolver(t)
	token := sign(t, testSecret, "user_1", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	first, err := res.Initial(req)
	require.NoError(t, err)
	assert.Equal(t, "user_1", first.UserID)
	assert.Equal(t, "Mario", first.Name)
	assert.Equal(t, "mario@example.com", first.Email)

	second, err := res.Initial(req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestInitialRejectsInvalidTokens(t *testing.T) {
	res, _ := newResolver(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"expired", sign(t, testSecret, "user_1", -time.Minute)},
		{"foreign signature", sign(t, []byte("other-secret"), "user_1", time.Hour)},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			p, err := res.Initial(req)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.Nil(t, p)
		})
	}
}

func TestCurrentResolvesExistingProfileOnly(t *testing.T) {
	res, s := newResolver(t)
	token := sign(t, testSecret, "user_2", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	p, err := res.Current(req)
	require.NoError(t, err)
	assert.Nil(t, p, "no profile exists before the first visit")

	created, err := s.CreateProfile(context.Background(), "user_2", "Luigi", "", "")
	require.NoError(t, err)

	p, err = res.Current(req)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, created.ID, p.ID)
}

func TestTokenSources(t *testing.T) {
	res, s := newResolver(t)
	_, err := s.CreateProfile(context.Background(), "user_3", "Peach", "", "")
	require.NoError(t, err)
	token := sign(t, testSecret, "user_3", time.Hour)

	cookieReq := httptest.NewRequest(http.MethodGet, "/servers/x", nil)
	cookieReq.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	queryReq := httptest.NewRequest(http.MethodGet, "/api/socket/io?token="+token, nil)

	p, err := res.Current(cookieReq)
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = res.CurrentPages(cookieReq)
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = res.Current(queryReq)
	require.NoError(t, err)
	assert.Nil(t, p, "api routes ignore the query token")

	p, err = res.CurrentPages(queryReq)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "user_3", p.UserID)
}

func TestTokenFromPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	req.Header.Set("Authorization", "Bearer header")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie"})

	assert.Equal(t, "header", TokenFrom(req, true))

	req.Header.Del("Authorization")
	assert.Equal(t, "cookie", TokenFrom(req, true))

	req = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	assert.Equal(t, "query", TokenFrom(req, true))
	assert.Equal(t, "", TokenFrom(req, false))
}

func TestProfileContext(t *testing.T) {
	assert.Nil(t, ProfileFromContext(context.Background()))
}
