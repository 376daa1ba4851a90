package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifierConfig configures HS256 JWT verification.
type JWTVerifierConfig struct {
	// Secret is the HMAC signing secret. Required.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must appear in the aud claim.
	Audience string

	// Leeway tolerates clock skew on time-based claims.
	Leeway time.Duration
}

// JWTVerifier verifies HS256-signed JWTs. Scopes come from the
// OAuth-style space-separated "scope" claim or from a "scopes" array.
type JWTVerifier struct {
	config JWTVerifierConfig
}

// NewJWTVerifier validates the config and builds a verifier.
func NewJWTVerifier(config JWTVerifierConfig) (*JWTVerifier, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("auth: jwt verifier requires a secret")
	}
	return &JWTVerifier{config: config}, nil
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*AuthInfo, error) {
	opts := []jwt.ParserOption{
		// Pinning the method closes the alg-confusion hole.
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}
	if v.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.config.Leeway))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.config.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: jwt verification failed: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("auth: unexpected jwt claims type")
	}

	info := &AuthInfo{
		Token:  token,
		Claims: map[string]interface{}(claims),
		Scopes: extractScopes(claims),
	}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// extractScopes reads the space-separated "scope" claim, falling back
// to a "scopes" string array.
func extractScopes(claims jwt.MapClaims) []string {
	if raw, ok := claims["scope"].(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	if raw, ok := claims["scopes"].([]interface{}); ok {
		scopes := make([]string, 0, len(raw))
		for _, entry := range raw {
			if s, ok := entry.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
