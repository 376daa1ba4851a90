package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/errors"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
)

// Options configures the bearer middleware.
type Options struct {
	// Realm appears in WWW-Authenticate challenges. Defaults to "mcp".
	Realm string

	// RequiredScopes must all be present on the verified credential;
	// missing scopes produce 403.
	RequiredScopes []string

	// AllowUnauthenticated admits requests without an Authorization
	// header, attaching an anonymous AuthInfo.
	AllowUnauthenticated bool

	// CacheTTL enables verification caching for successful lookups.
	// Zero disables the cache. Failures are never cached.
	CacheTTL time.Duration

	// CacheSize bounds the cache; defaults to 1000 entries.
	CacheSize int64

	// Logger receives auth decisions; nil discards them.
	Logger logging.Logger
}

// Middleware enforces bearer authentication in front of an HTTP
// handler. Verified credentials ride the request context and are
// visible to tool handlers through AuthInfoFromContext.
type Middleware struct {
	verifier TokenVerifier
	opts     Options
	logger   logging.Logger
	cache    *ccache.Cache[*AuthInfo]
}

// NewMiddleware builds a middleware around a verifier.
func NewMiddleware(verifier TokenVerifier, opts Options) *Middleware {
	if opts.Realm == "" {
		opts.Realm = "mcp"
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	m := &Middleware{
		verifier: verifier,
		opts:     opts,
		logger:   logger,
	}
	if opts.CacheTTL > 0 {
		m.cache = ccache.New(ccache.Configure[*AuthInfo]().MaxSize(opts.CacheSize))
	}
	return m
}

// Wrap returns a handler that authenticates before delegating to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			if m.opts.AllowUnauthenticated {
				ctx := ContextWithAuthInfo(r.Context(), &AuthInfo{})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			m.challenge(w, "", "Unauthorized: Bearer token required")
			return
		}

		info, err := m.verify(r, token)
		if err != nil || info == nil {
			m.logger.Warn("token verification failed",
				logging.String("remote_addr", r.RemoteAddr),
				logging.ErrorField(err),
			)
			m.challenge(w, "invalid_token", "Unauthorized: invalid token")
			return
		}

		if missing := info.MissingScopes(m.opts.RequiredScopes); len(missing) > 0 {
			m.writeError(w, http.StatusForbidden,
				errors.ScopeForbidden(m.opts.RequiredScopes, missing))
			return
		}

		ctx := ContextWithAuthInfo(r.Context(), info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify checks the cache before hitting the verifier; only successes
// are cached, so a revocation takes effect within the TTL.
func (m *Middleware) verify(r *http.Request, token string) (*AuthInfo, error) {
	if m.cache != nil {
		if item := m.cache.Get(token); item != nil && !item.Expired() {
			return item.Value(), nil
		}
	}

	info, err := m.verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if info != nil && m.cache != nil {
		ttl := m.opts.CacheTTL
		// Never cache past the credential's own expiry.
		if !info.ExpiresAt.IsZero() {
			if until := time.Until(info.ExpiresAt); until < ttl {
				ttl = until
			}
		}
		if ttl > 0 {
			m.cache.Set(token, info, ttl)
		}
	}
	return info, err
}

func (m *Middleware) challenge(w http.ResponseWriter, errCode, message string) {
	challenge := fmt.Sprintf("Bearer realm=%q", m.opts.Realm)
	if errCode != "" {
		challenge += fmt.Sprintf(", error=%q", errCode)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	m.writeError(w, http.StatusUnauthorized, errors.Unauthorized(message))
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, err error) {
	body, marshalErr := json.Marshal(errors.ToJSONRPCResponse(err, nil))
	if marshalErr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
