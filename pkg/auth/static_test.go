package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestStaticVerifierRegisterAndVerify(t *testing.T) {
	v := NewStaticVerifier()
	v.Register("tok-1", "alice", []string{"tools:read", "tools:call"}, 0)

	info, err := v.Verify(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if info.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", info.Subject)
	}
	if !info.HasScope("tools:call") {
		t.Error("missing registered scope tools:call")
	}
	if !info.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero for a non-expiring token", info.ExpiresAt)
	}
}

func TestStaticVerifierUnknownToken(t *testing.T) {
	v := NewStaticVerifier()

	if _, err := v.Verify(context.Background(), "nope"); err != ErrTokenUnknown {
		t.Errorf("Verify() error = %v, want ErrTokenUnknown", err)
	}
}

func TestStaticVerifierExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewStaticVerifierWithClock(clock)
	v.Register("tok-1", "alice", nil, time.Hour)

	if _, err := v.Verify(context.Background(), "tok-1"); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	clock.Advance(61 * time.Minute)
	if _, err := v.Verify(context.Background(), "tok-1"); err != ErrTokenExpired {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestStaticVerifierRevoke(t *testing.T) {
	v := NewStaticVerifier()
	v.Register("tok-1", "alice", nil, 0)
	v.Revoke("tok-1")

	if _, err := v.Verify(context.Background(), "tok-1"); err != ErrTokenRevoked {
		t.Errorf("Verify() error = %v, want ErrTokenRevoked", err)
	}
}

func TestStaticVerifierIssue(t *testing.T) {
	v := NewStaticVerifier()

	first, err := v.Issue("bob", []string{"tools:call"}, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	second, err := v.Issue("bob", nil, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if first == second {
		t.Error("Issue() returned the same token twice")
	}

	info, err := v.Verify(context.Background(), first)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if info.Subject != "bob" || !info.HasScope("tools:call") {
		t.Errorf("Verify() = %+v, want subject bob with tools:call", info)
	}
}

func TestAuthInfoMissingScopes(t *testing.T) {
	tests := []struct {
		name     string
		have     []string
		required []string
		want     int
	}{
		{"all present", []string{"a", "b"}, []string{"a", "b"}, 0},
		{"one missing", []string{"a"}, []string{"a", "b"}, 1},
		{"none required", []string{"a"}, nil, 0},
		{"anonymous", nil, []string{"a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &AuthInfo{Scopes: tt.have}
			if got := info.MissingScopes(tt.required); len(got) != tt.want {
				t.Errorf("MissingScopes(%v) = %v, want %d missing", tt.required, got, tt.want)
			}
		})
	}
}
