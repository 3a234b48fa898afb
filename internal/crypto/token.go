package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingSecret = errors.New("session secret is empty")
	ErrInvalidToken  = errors.New("invalid session token")
)

// SessionClaims are the claims carried by a session token issued by the
// identity provider. The subject is the provider's user id.
type SessionClaims struct {
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SignSessionToken issues an HS256 session token for subject.
func SignSessionToken(secret []byte, subject string, claims SessionClaims, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseSessionToken validates signature and expiry and returns the claims.
func ParseSessionToken(secret []byte, tokenString string) (*SessionClaims, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
