package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/observability"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/session"
)

// MessageHandler is the consumer of inbound JSON-RPC messages, usually
// an MCP engine dispatching tool calls. The transport invokes
// OnMessage once per inbound message on its own goroutine; the handler
// replies asynchronously through the transport's Send, passing the
// context it received so responses correlate to the waiting request.
type MessageHandler interface {
	// Start is called once before the transport serves traffic.
	Start(ctx context.Context) error

	// OnMessage delivers one validated JSON-RPC message. The context
	// carries the delivery scope and, for requests, is canceled when
	// the client disconnects.
	OnMessage(ctx context.Context, msg json.RawMessage)

	// Close is called during transport shutdown.
	Close() error
}

// DefaultAllowedOrigins is the localhost allow-list applied when no
// origins are configured, the DNS-rebinding posture recommended for
// locally-run servers.
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

// Transport behavior defaults.
const (
	DefaultMaxBodySize    = 1 << 20 // 1 MiB
	DefaultRequestTimeout = 30 * time.Second
	DefaultSessionTimeout = time.Hour
)

// RateLimitConfig enables per-session GCRA rate limiting on POST.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// Config carries every transport knob. Zero values fall back to the
// documented defaults during construction.
type Config struct {
	// Stateful enables persistent sessions, GET notification streams,
	// and resumability. Off by default: serverless deployments run
	// stateless, where a session lives for one HTTP request.
	Stateful bool

	// SessionStore persists session data in stateful mode. Nil uses
	// the in-memory store.
	SessionStore session.Store

	// SessionIDGenerator mints session ids; defaults to UUIDv4.
	SessionIDGenerator func() string

	// EnableJSONResponse replies to requests with a single JSON body
	// instead of an SSE stream.
	EnableJSONResponse bool

	// MaxBodySize bounds POST bodies in bytes.
	MaxBodySize int64

	// RequestTimeout bounds how long a request may await its handler
	// response before the transport synthesizes a timeout error.
	RequestTimeout time.Duration

	// SessionTimeout is the stateful idle TTL.
	SessionTimeout time.Duration

	// AllowedOrigins is matched against the Origin header: exact
	// match, or entry plus ":port" prefix. "*" disables the check.
	AllowedOrigins []string

	// EnableResumability records SSE events in per-stream rings and
	// honors Last-Event-ID replay. Stateful mode only.
	EnableResumability bool

	// EventHistorySize bounds each stream's replay ring.
	EventHistorySize int

	// RateLimit optionally throttles POST traffic per session.
	RateLimit *RateLimitConfig

	// Logger receives transport logs; nil discards them.
	Logger logging.Logger

	// Metrics receives transport metrics; nil disables collection.
	Metrics observability.MetricsProvider

	// Clock is injectable for tests; nil uses the wall clock.
	Clock clockwork.Clock
}

// DefaultConfig returns the documented defaults: stateless, SSE
// responses, 1 MiB bodies, 30s request timeout, 1h session TTL,
// localhost origins, resumability on.
func DefaultConfig() Config {
	return Config{
		Stateful:           false,
		EnableJSONResponse: false,
		MaxBodySize:        DefaultMaxBodySize,
		RequestTimeout:     DefaultRequestTimeout,
		SessionTimeout:     DefaultSessionTimeout,
		AllowedOrigins:     append([]string(nil), DefaultAllowedOrigins...),
		EnableResumability: true,
		EventHistorySize:   session.DefaultEventHistorySize,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.SessionIDGenerator == nil {
		c.SessionIDGenerator = uuid.NewString
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	if c.EventHistorySize <= 0 {
		c.EventHistorySize = session.DefaultEventHistorySize
	}
	if c.Logger == nil {
		c.Logger = logging.NewNoopLogger()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// scope is the delivery context for one inbound message: the session
// it belongs to and, while a POST request is being processed, the
// stream its server-initiated messages should prefer. It rides the
// handler's context so concurrent requests cannot observe each other's
// state.
type scope struct {
	session    *session.Session
	postStream *session.Stream
	stateful   bool
}

type scopeKey struct{}

func contextWithScope(ctx context.Context, sc *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

func scopeFromContext(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

// SessionIDFromContext returns the session id for the message being
// handled, for handlers that key per-session state.
func SessionIDFromContext(ctx context.Context) string {
	if sc := scopeFromContext(ctx); sc != nil && sc.session != nil {
		return sc.session.ID()
	}
	return ""
}

// ProtocolVersionFromContext returns the negotiated protocol revision
// of the session owning the message being handled.
func ProtocolVersionFromContext(ctx context.Context) string {
	if sc := scopeFromContext(ctx); sc != nil && sc.session != nil {
		return sc.session.ProtocolVersion()
	}
	return ""
}
