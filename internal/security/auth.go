package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenAuth issues and verifies HS256 session tokens.
type TokenAuth struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewTokenAuth returns a TokenAuth signing with secret.
func NewTokenAuth(secret string, ttl time.Duration) *TokenAuth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenAuth{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}
}

// TTL returns how long issued tokens stay valid.
func (a *TokenAuth) TTL() time.Duration {
	return a.ttl
}

// Issue returns a signed token for userID.
func (a *TokenAuth) Issue(userID string) (string, error) {
	now := a.nowFunc()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its subject.
func (a *TokenAuth) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithTimeFunc(a.nowFunc),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}
