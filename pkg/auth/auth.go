// Package auth provides bearer-token authentication for the Streamable
// HTTP endpoint: a TokenVerifier interface, static and JWT verifiers,
// and HTTP middleware that enforces them ahead of the transport.
package auth

import (
	"context"
	"time"
)

// AuthInfo is the outcome of verifying one credential. It travels on
// the request context so tool handlers can make authorization
// decisions.
type AuthInfo struct {
	// Token is the raw credential that verified.
	Token string `json:"token,omitempty"`

	// Claims carries verifier-specific claims (JWT claims, static
	// token metadata).
	Claims map[string]interface{} `json:"claims,omitempty"`

	// Scopes granted to the credential.
	Scopes []string `json:"scopes,omitempty"`

	// Subject identifies the principal.
	Subject string `json:"subject,omitempty"`

	// ExpiresAt is the credential expiry; zero means no expiry.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Anonymous reports whether this is the sentinel info for an
// unauthenticated request admitted by AllowUnauthenticated.
func (a *AuthInfo) Anonymous() bool {
	return a.Token == "" && a.Subject == ""
}

// HasScope reports whether the credential carries the given scope.
func (a *AuthInfo) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// MissingScopes returns the required scopes the credential lacks.
func (a *AuthInfo) MissingScopes(required []string) []string {
	var missing []string
	for _, scope := range required {
		if !a.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// TokenVerifier validates one bearer credential. The middleware owns
// header extraction; verifiers see only the token.
type TokenVerifier interface {
	// Verify returns the credential's AuthInfo, or an error when the
	// token does not verify.
	Verify(ctx context.Context, token string) (*AuthInfo, error)
}

type authInfoKey struct{}

// ContextWithAuthInfo attaches verified credentials to the context.
func ContextWithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

// AuthInfoFromContext returns the request's verified credentials, or
// nil when the request did not pass through the auth middleware.
func AuthInfoFromContext(ctx context.Context) *AuthInfo {
	info, _ := ctx.Value(authInfoKey{}).(*AuthInfo)
	return info
}
