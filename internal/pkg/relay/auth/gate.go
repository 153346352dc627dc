// Package auth verifies bearer tokens presented on connection attempts.
// Token minting lives with the identity service; the gate only validates.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailed is returned for every verification failure. The concrete
// cause (expiry, malformed token, bad signature) is deliberately not
// exposed to callers so it cannot leak to clients.
var ErrAuthFailed = errors.New("auth: token verification failed")

// Identity is the resolved principal behind a verified token.
type Identity struct {
	UserID string
}

// Gate validates HS256-signed bearer tokens. Verification is pure: no
// network calls, no side effects. It is invoked exactly once per
// connection attempt, before any session exists.
type Gate struct {
	secret []byte
}

func NewGate(secret []byte) *Gate {
	return &Gate{secret: secret}
}

// Verify parses and validates the token, returning the user identity.
// Expired and malformed tokens fail identically with ErrAuthFailed.
func (g *Gate) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrAuthFailed
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, ErrAuthFailed
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrAuthFailed
	}

	return Identity{UserID: sub}, nil
}
