package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
)

// countingVerifier wraps a verifier and counts Verify calls.
type countingVerifier struct {
	inner TokenVerifier
	calls atomic.Int64
}

func (c *countingVerifier) Verify(ctx context.Context, token string) (*AuthInfo, error) {
	c.calls.Add(1)
	return c.inner.Verify(ctx, token)
}

func newAuthedHandler(m *Middleware) (http.Handler, *AuthInfo) {
	var seen AuthInfo
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := AuthInfoFromContext(r.Context()); info != nil {
			seen = *info
		}
		w.WriteHeader(http.StatusOK)
	})
	return m.Wrap(next), &seen
}

func do(t *testing.T, h http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
	if authorization != "" {
		r.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *protocol.Response {
	t.Helper()
	var resp protocol.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return &resp
}

func TestMiddlewareMissingToken(t *testing.T) {
	v := NewStaticVerifier()
	h, _ := newAuthedHandler(NewMiddleware(v, Options{Realm: "test-realm"}))

	w := do(t, h, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="test-realm"` {
		t.Errorf("WWW-Authenticate = %q, want %q", got, `Bearer realm="test-realm"`)
	}
	resp := decodeError(t, w)
	if resp.Error == nil || resp.Error.Code != protocol.TransportError {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.TransportError)
	}
}

func TestMiddlewareMalformedAuthorization(t *testing.T) {
	v := NewStaticVerifier()
	h, _ := newAuthedHandler(NewMiddleware(v, Options{}))

	tests := []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer   "}
	for _, header := range tests {
		if w := do(t, h, header); w.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: status = %d, want %d", header, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	v := NewStaticVerifier()
	h, _ := newAuthedHandler(NewMiddleware(v, Options{}))

	w := do(t, h, "Bearer unknown-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, `error="invalid_token"`) {
		t.Errorf("WWW-Authenticate = %q, want an invalid_token challenge", got)
	}
}

func TestMiddlewareAllowUnauthenticated(t *testing.T) {
	v := NewStaticVerifier()
	h, seen := newAuthedHandler(NewMiddleware(v, Options{AllowUnauthenticated: true}))

	w := do(t, h, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !seen.Anonymous() {
		t.Errorf("AuthInfo = %+v, want the anonymous sentinel", seen)
	}
}

func TestMiddlewareScopeEnforcement(t *testing.T) {
	v := NewStaticVerifier()
	v.Register("reader", "alice", []string{"tools:read"}, 0)
	v.Register("caller", "bob", []string{"tools:read", "tools:call"}, 0)
	h, seen := newAuthedHandler(NewMiddleware(v, Options{RequiredScopes: []string{"tools:call"}}))

	w := do(t, h, "Bearer reader")
	if w.Code != http.StatusForbidden {
		t.Fatalf("insufficient scope status = %d, want %d", w.Code, http.StatusForbidden)
	}
	resp := decodeError(t, w)
	if resp.Error == nil || resp.Error.Code != protocol.Forbidden {
		t.Errorf("error = %+v, want code %d", resp.Error, protocol.Forbidden)
	}

	w = do(t, h, "Bearer caller")
	if w.Code != http.StatusOK {
		t.Fatalf("sufficient scope status = %d, want %d", w.Code, http.StatusOK)
	}
	if seen.Subject != "bob" {
		t.Errorf("Subject = %q, want bob", seen.Subject)
	}
}

func TestMiddlewareCachesSuccesses(t *testing.T) {
	inner := NewStaticVerifier()
	inner.Register("tok-1", "alice", nil, 0)
	v := &countingVerifier{inner: inner}
	h, _ := newAuthedHandler(NewMiddleware(v, Options{CacheTTL: time.Minute}))

	for i := 0; i < 3; i++ {
		if w := do(t, h, "Bearer tok-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if got := v.calls.Load(); got != 1 {
		t.Errorf("verifier calls = %d, want 1 with caching", got)
	}
}

func TestMiddlewareNeverCachesFailures(t *testing.T) {
	inner := NewStaticVerifier()
	v := &countingVerifier{inner: inner}
	h, _ := newAuthedHandler(NewMiddleware(v, Options{CacheTTL: time.Minute}))

	do(t, h, "Bearer nope")
	do(t, h, "Bearer nope")
	if got := v.calls.Load(); got != 2 {
		t.Errorf("verifier calls = %d, want 2; failures must not be cached", got)
	}

	// The token becomes valid later; the middleware must see it.
	inner.Register("nope", "late", nil, 0)
	if w := do(t, h, "Bearer nope"); w.Code != http.StatusOK {
		t.Errorf("status after registration = %d, want %d", w.Code, http.StatusOK)
	}
}
