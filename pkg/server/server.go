package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/auth"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/observability"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/transport"
)

// Server wires the Streamable HTTP transport, the MCP engine, and the
// surrounding HTTP plumbing (routing, auth, observability) into one
// runnable unit.
type Server struct {
	name     string
	version  string
	addr     string
	endpoint string
	logger   logging.Logger

	transportConfig transport.Config
	tools           *BaseToolsProvider
	toolsProvider   ToolsProvider

	authVerifier auth.TokenVerifier
	authOptions  auth.Options

	metricsConfig *observability.MetricsConfig
	tracingConfig *observability.TracingConfig

	transport *transport.StreamableHTTPTransport
	engine    *engine
	router    chi.Router
	metrics   *observability.PrometheusMetricsProvider
	tracing   *observability.TracingProvider
	httpSrv   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithName sets the advertised server name.
func WithName(name string) ServerOption {
	return func(s *Server) { s.name = name }
}

// WithVersion sets the advertised server version.
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.version = version }
}

// WithTransportConfig replaces the transport configuration.
func WithTransportConfig(cfg transport.Config) ServerOption {
	return func(s *Server) { s.transportConfig = cfg }
}

// WithLogger sets the structured logger used across the server.
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithToolsProvider replaces the default tool registry.
func WithToolsProvider(provider ToolsProvider) ServerOption {
	return func(s *Server) { s.toolsProvider = provider }
}

// WithTool registers one tool on the default registry.
func WithTool(name, description string, inputSchema json.RawMessage, handler ToolHandler) ServerOption {
	return func(s *Server) {
		_ = s.tools.RegisterTool(Tool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
			Handler:     handler,
		})
	}
}

// WithAuth protects the MCP endpoint with bearer authentication.
func WithAuth(verifier auth.TokenVerifier, opts auth.Options) ServerOption {
	return func(s *Server) {
		s.authVerifier = verifier
		s.authOptions = opts
	}
}

// WithMetrics enables Prometheus metrics, exposed on the server's own
// router under the configured metrics path.
func WithMetrics(cfg observability.MetricsConfig) ServerOption {
	return func(s *Server) { s.metricsConfig = &cfg }
}

// WithTracing enables OpenTelemetry tracing of the HTTP layer.
func WithTracing(cfg observability.TracingConfig) ServerOption {
	return func(s *Server) { s.tracingConfig = &cfg }
}

// WithAddr sets the listen address for Start. Default ":8080".
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithEndpoint sets the MCP endpoint path. Default "/mcp".
func WithEndpoint(path string) ServerOption {
	return func(s *Server) { s.endpoint = path }
}

// New builds a server from options.
func New(opts ...ServerOption) (*Server, error) {
	s := &Server{
		name:            "mcp-streamhttp",
		version:         "0.1.0",
		addr:            ":8080",
		endpoint:        "/mcp",
		logger:          logging.NewNoopLogger(),
		transportConfig: transport.DefaultConfig(),
		tools:           NewBaseToolsProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.toolsProvider == nil {
		s.toolsProvider = s.tools
	}

	if s.metricsConfig != nil {
		cfg := *s.metricsConfig
		if cfg.ServiceName == "" {
			cfg.ServiceName = s.name
		}
		if cfg.ServiceVersion == "" {
			cfg.ServiceVersion = s.version
		}
		metrics, err := observability.NewMetricsProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("building metrics provider: %w", err)
		}
		s.metrics = metrics
	}
	if s.tracingConfig != nil {
		cfg := *s.tracingConfig
		if cfg.ServiceName == "" {
			cfg.ServiceName = s.name
		}
		tracing, err := observability.NewTracingProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("building tracing provider: %w", err)
		}
		s.tracing = tracing
	}

	tcfg := s.transportConfig
	if tcfg.Logger == nil {
		tcfg.Logger = s.logger
	}
	if tcfg.Metrics == nil && s.metrics != nil {
		tcfg.Metrics = s.metrics
	}
	tr, err := transport.NewStreamableHTTPTransport(tcfg)
	if err != nil {
		return nil, fmt.Errorf("building transport: %w", err)
	}
	s.transport = tr
	s.engine = newEngine(s.name, s.version, s.toolsProvider, tr, s.logger)
	tr.SetHandler(s.engine)

	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	if s.tracing != nil || s.metrics != nil {
		r.Use(observability.Middleware(s.tracing, s.metrics))
	}

	var endpoint http.Handler = s.transport
	if s.authVerifier != nil {
		opts := s.authOptions
		if opts.Logger == nil {
			opts.Logger = s.logger
		}
		endpoint = auth.NewMiddleware(s.authVerifier, opts).Wrap(endpoint)
	}
	r.Handle(s.endpoint, endpoint)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.metrics != nil {
		path := "/metrics"
		if s.metricsConfig.MetricsPath != "" {
			path = s.metricsConfig.MetricsPath
		}
		r.Handle(path, s.metrics.Handler())
	}
	return r
}

// ServeHTTP makes the server embeddable in an existing HTTP stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the full router: MCP endpoint, health, metrics.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Transport exposes the underlying transport, for tests and for
// callers running their own HTTP server.
func (s *Server) Transport() *transport.StreamableHTTPTransport {
	return s.transport
}

// RegisterTool adds a tool to the default registry after construction.
func (s *Server) RegisterTool(tool Tool) error {
	return s.tools.RegisterTool(tool)
}

// Start runs the HTTP listener until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening",
			logging.String("addr", s.addr),
			logging.String("endpoint", s.endpoint),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the HTTP listener, the transport, and the tracing
// exporter.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.tracing != nil {
		if err := s.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
