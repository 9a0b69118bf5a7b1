// Package auth implements the identity verification boundary: it
// validates a connection's JWT credential and yields the stable user ID
// before the messaging core ever sees the connection. Token issuance
// (login/signup) is handled elsewhere.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dhruvxsingh/Converza/internal/user"
)

// ErrUnauthorized is returned when a credential is missing, malformed,
// expired, or does not resolve to a known user. Callers reject the
// connection before any registry mutation occurs.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Verifier authenticates a credential and yields a stable user ID.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// UserLookup resolves a token subject to a user ID.
type UserLookup interface {
	IDByUsername(ctx context.Context, username string) (int64, error)
}

// TokenVerifier validates HS256-signed JWTs whose subject claim carries
// the username, then resolves the username through the user store.
type TokenVerifier struct {
	secret []byte
	users  UserLookup
}

// NewTokenVerifier creates a TokenVerifier with the given signing secret
// and user lookup.
func NewTokenVerifier(secret string, users UserLookup) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), users: users}
}

// Verify parses and validates the token and returns the authenticated
// user's ID. Any validation or lookup failure yields ErrUnauthorized.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return 0, ErrUnauthorized
	}

	if claims.Subject == "" {
		return 0, ErrUnauthorized
	}

	id, err := v.users.IDByUsername(ctx, claims.Subject)
	if errors.Is(err, user.ErrNotFound) {
		return 0, ErrUnauthorized
	}
	if err != nil {
		return 0, fmt.Errorf("auth: user lookup: %w", err)
	}
	return id, nil
}
