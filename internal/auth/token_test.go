// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and weak secrets

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing-0123456789")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return v
}

func TestNewJWTVerifier_WeakSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("short"))
	if !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewJWTVerifier() error = %v, want ErrWeakSecret", err)
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate("ops-laptop", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	subject, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if subject != "ops-laptop" {
		t.Errorf("Verify() = %q, want %q", subject, "ops-laptop")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing test token: %v", err)
		}
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty token", token: "", wantErr: ErrInvalidToken},
		{name: "garbage token", token: "not-a-jwt-token", wantErr: ErrInvalidToken},
		{name: "malformed JWT", token: "header.payload.signature", wantErr: ErrInvalidToken},
		{
			name: "wrong secret",
			token: sign(jwt.SigningMethodHS256, []byte("a-completely-different-secret-value!!"),
				jwt.RegisteredClaims{Issuer: Issuer, Subject: "x", ExpiresAt: future}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong algorithm",
			token: sign(jwt.SigningMethodHS512, testSecret,
				jwt.RegisteredClaims{Issuer: Issuer, Subject: "x", ExpiresAt: future}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			token: sign(jwt.SigningMethodHS256, testSecret,
				jwt.RegisteredClaims{Issuer: "someone-else", Subject: "x", ExpiresAt: future}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "no expiry",
			token: sign(jwt.SigningMethodHS256, testSecret,
				jwt.RegisteredClaims{Issuer: Issuer, Subject: "x"}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "no subject",
			token: sign(jwt.SigningMethodHS256, testSecret,
				jwt.RegisteredClaims{Issuer: Issuer, ExpiresAt: future}),
			wantErr: ErrMissingClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)
	verifier.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := verifier.Generate("ops-laptop", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	verifier.now = time.Now
	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_GenerateRejectsBadInput(t *testing.T) {
	verifier := newTestVerifier(t)

	if _, err := verifier.Generate("", time.Hour); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Generate(empty subject) error = %v, want ErrMissingClaim", err)
	}
	if _, err := verifier.Generate("x", 0); err == nil {
		t.Error("Generate(zero ttl) expected error")
	}
}
