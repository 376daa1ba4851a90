package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Verification failures. The middleware maps all of them to 401; the
// distinctions are for logs and tests.
var (
	ErrTokenUnknown = errors.New("auth: unknown token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenRevoked = errors.New("auth: token revoked")
)

// StaticVerifier verifies against a registered set of tokens, for
// deployments where credentials are provisioned out of band.
type StaticVerifier struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	tokens map[string]*staticToken
}

type staticToken struct {
	info    AuthInfo
	revoked bool
}

// NewStaticVerifier creates an empty verifier.
func NewStaticVerifier() *StaticVerifier {
	return NewStaticVerifierWithClock(clockwork.NewRealClock())
}

// NewStaticVerifierWithClock injects the clock used for expiry checks.
func NewStaticVerifierWithClock(clock clockwork.Clock) *StaticVerifier {
	return &StaticVerifier{
		clock:  clock,
		tokens: make(map[string]*staticToken),
	}
}

// Register adds a known token. A zero ttl registers a non-expiring
// token.
func (v *StaticVerifier) Register(token, subject string, scopes []string, ttl time.Duration) {
	info := AuthInfo{
		Token:   token,
		Subject: subject,
		Scopes:  append([]string(nil), scopes...),
	}
	if ttl > 0 {
		info.ExpiresAt = v.clock.Now().Add(ttl)
	}

	v.mu.Lock()
	v.tokens[token] = &staticToken{info: info}
	v.mu.Unlock()
}

// Issue mints a random 32-byte token, registers it, and returns it.
func (v *StaticVerifier) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("minting token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(buf)
	v.Register(token, subject, scopes, ttl)
	return token, nil
}

// Revoke invalidates a token without unregistering it, so the failure
// mode is distinguishable from an unknown token.
func (v *StaticVerifier) Revoke(token string) {
	v.mu.Lock()
	if entry, ok := v.tokens[token]; ok {
		entry.revoked = true
	}
	v.mu.Unlock()
}

// Verify implements TokenVerifier.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (*AuthInfo, error) {
	v.mu.RLock()
	var match *staticToken
	for registered, entry := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(registered), []byte(token)) == 1 {
			match = entry
			break
		}
	}
	v.mu.RUnlock()

	if match == nil {
		return nil, ErrTokenUnknown
	}
	if match.revoked {
		return nil, ErrTokenRevoked
	}
	if !match.info.ExpiresAt.IsZero() && v.clock.Now().After(match.info.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	info := match.info
	info.Scopes = append([]string(nil), match.info.Scopes...)
	return &info, nil
}
