package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := SignSessionToken(testSecret, "user_123", SessionClaims{Name: "Lorenzo", Email: "l@example.com"}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user_123", claims.Subject)
	assert.Equal(t, "Lorenzo", claims.Name)
	assert.Equal(t, "l@example.com", claims.Email)
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	token, err := SignSessionToken(testSecret, "user_123", SessionClaims{}, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken([]byte("another-secret-another-secret-xx"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	token, err := SignSessionToken(testSecret, "user_123", SessionClaims{}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(testSecret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionTokenRequiresSecret(t *testing.T) {
	_, err := SignSessionToken(nil, "user_123", SessionClaims{}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = ParseSessionToken(nil, "anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestNewInviteCodeIsUnique(t *testing.T) {
	a, b := NewInviteCode(), NewInviteCode()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewUUIDv7IsOrdered(t *testing.T) {
	a := NewUUIDv7()
	time.Sleep(2 * time.Millisecond)
	b := NewUUIDv7()
	assert.Less(t, a.String(), b.String())
}
