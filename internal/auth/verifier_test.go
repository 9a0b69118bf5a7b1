package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dhruvxsingh/Converza/internal/user"
)

const testSecret = "test-secret"

// fakeLookup resolves usernames from a fixed map.
type fakeLookup struct {
	users map[string]int64
}

func (f *fakeLookup) IDByUsername(_ context.Context, username string) (int64, error) {
	id, ok := f.users[username]
	if !ok {
		return 0, user.ErrNotFound
	}
	return id, nil
}

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestVerifier() *TokenVerifier {
	return NewTokenVerifier(testSecret, &fakeLookup{
		users: map[string]int64{"alice": 3, "bob": 7},
	})
}

func TestVerify_ValidToken(t *testing.T) {
	v := newTestVerifier()
	token := signToken(t, testSecret, "alice", time.Hour)

	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if id != 3 {
		t.Errorf("expected user id 3, got %d", id)
	}
}

func TestVerify_Unauthorized(t *testing.T) {
	v := newTestVerifier()

	cases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not.a.jwt"},
		{"wrong secret", signToken(t, "other-secret", "alice", time.Hour)},
		{"expired", signToken(t, testSecret, "alice", -time.Minute)},
		{"missing subject", signToken(t, testSecret, "", time.Hour)},
		{"unknown user", signToken(t, testSecret, "mallory", time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tc.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestVerify_RejectsUnexpectedSigningMethod(t *testing.T) {
	v := newTestVerifier()

	// alg=none tokens must never validate.
	claims := jwt.RegisteredClaims{Subject: "alice"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for alg=none, got %v", err)
	}
}
