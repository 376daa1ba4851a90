package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(jwtSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(JWTVerifierConfig{}); err == nil {
		t.Error("NewJWTVerifier() with no secret succeeded, want error")
	}
}

func TestJWTVerifierValidToken(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{Secret: jwtSecret})
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}

	exp := time.Now().Add(time.Hour)
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "alice",
		"exp":   exp.Unix(),
		"scope": "tools:read tools:call",
	})

	info, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if info.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", info.Subject)
	}
	if len(info.Scopes) != 2 || !info.HasScope("tools:call") {
		t.Errorf("Scopes = %v, want [tools:read tools:call]", info.Scopes)
	}
	if info.ExpiresAt.Unix() != exp.Unix() {
		t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, exp)
	}
}

func TestJWTVerifierScopesArrayClaim(t *testing.T) {
	v, _ := NewJWTVerifier(JWTVerifierConfig{Secret: jwtSecret})

	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "bob",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{"admin"},
	})
	info, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !info.HasScope("admin") {
		t.Errorf("Scopes = %v, want [admin]", info.Scopes)
	}
}

func TestJWTVerifierExpiredToken(t *testing.T) {
	v, _ := NewJWTVerifier(JWTVerifierConfig{Secret: jwtSecret})

	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	v, _ := NewJWTVerifier(JWTVerifierConfig{Secret: []byte("other-secret")})

	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Error("Verify() with wrong secret succeeded, want error")
	}
}

func TestJWTVerifierRejectsWrongAlgorithm(t *testing.T) {
	v, _ := NewJWTVerifier(JWTVerifierConfig{Secret: jwtSecret})

	token := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Error("Verify() accepted an HS512 token, want HS256 only")
	}
}

func TestJWTVerifierIssuerAndAudience(t *testing.T) {
	v, _ := NewJWTVerifier(JWTVerifierConfig{
		Secret:   jwtSecret,
		Issuer:   "mcp-streamhttp",
		Audience: "tools-api",
	})

	valid := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "mcp-streamhttp",
		"aud": "tools-api",
	})
	if _, err := v.Verify(context.Background(), valid); err != nil {
		t.Errorf("Verify() with matching iss/aud error = %v", err)
	}

	wrongIssuer := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "someone-else",
		"aud": "tools-api",
	})
	if _, err := v.Verify(context.Background(), wrongIssuer); err == nil {
		t.Error("Verify() accepted a wrong issuer")
	}

	wrongAudience := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iss": "mcp-streamhttp",
		"aud": "other-api",
	})
	if _, err := v.Verify(context.Background(), wrongAudience); err == nil {
		t.Error("Verify() accepted a wrong audience")
	}
}
