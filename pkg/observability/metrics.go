package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Prometheus configuration
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsPort int    // Port for metrics server (default: 9090)

	// Metric options
	Namespace        string    // Prometheus namespace (default: mcp)
	Subsystem        string    // Prometheus subsystem (default: streamhttp)
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// Registry to use; nil registers a fresh one (tests pass their own)
	Registry *prometheus.Registry
}

// MetricsProvider records transport metrics. A nil provider on the
// transport disables metric collection entirely.
type MetricsProvider interface {
	// RecordRequest records one HTTP request through the transport
	RecordRequest(method string, status int, duration time.Duration, requestBytes, responseBytes int)

	// RecordSSEEvent counts one outbound SSE event by kind
	// (response, notification, replay, timeout)
	RecordSSEEvent(kind string)

	// RecordSessionEvent counts session lifecycle events
	// (created, terminated, expired, recovered)
	RecordSessionEvent(event string)

	// Gauges for live transport state
	SetActiveSessions(n int)
	SetActiveStreams(n int)
	SetPendingRequests(n int)

	// Management
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestBytes    *prometheus.HistogramVec
	responseBytes   *prometheus.HistogramVec

	sseEventTotal     *prometheus.CounterVec
	sessionEventTotal *prometheus.CounterVec

	activeSessions  prometheus.Gauge
	activeStreams   prometheus.Gauge
	pendingRequests prometheus.Gauge
}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.Subsystem == "" {
		config.Subsystem = "streamhttp"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		// Seconds; SSE requests stay open, so the top buckets are wide.
		config.HistogramBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	}
	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	p := &PrometheusMetricsProvider{
		config:   config,
		registry: registry,
	}
	p.initializeMetrics()

	if err := p.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return p, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: p.config.ConstLabels,
		}
	}

	p.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("requests_total", "Total HTTP requests handled by the transport")),
		[]string{"method", "status"},
	)
	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)
	p.requestBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_size_bytes",
			Help:        "Inbound request body size in bytes",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 10),
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)
	p.responseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "response_size_bytes",
			Help:        "Outbound response body size in bytes",
			Buckets:     prometheus.ExponentialBuckets(64, 4, 10),
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)

	p.sseEventTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("sse_events_total", "Total SSE events written, by kind")),
		[]string{"kind"},
	)
	p.sessionEventTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("session_events_total", "Session lifecycle events, by event")),
		[]string{"event"},
	)

	p.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts(opts(
		"active_sessions", "Currently live stateful sessions")))
	p.activeStreams = prometheus.NewGauge(prometheus.GaugeOpts(opts(
		"active_streams", "Currently open SSE streams")))
	p.pendingRequests = prometheus.NewGauge(prometheus.GaugeOpts(opts(
		"pending_requests", "Requests awaiting a handler response")))
}

// registerMetrics registers all collectors with the registry
func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.requestTotal,
		p.requestDuration,
		p.requestBytes,
		p.responseBytes,
		p.sseEventTotal,
		p.sessionEventTotal,
		p.activeSessions,
		p.activeStreams,
		p.pendingRequests,
	}
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRequest records one HTTP request
func (p *PrometheusMetricsProvider) RecordRequest(method string, status int, duration time.Duration, requestBytes, responseBytes int) {
	p.requestTotal.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	p.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if requestBytes > 0 {
		p.requestBytes.WithLabelValues(method).Observe(float64(requestBytes))
	}
	if responseBytes > 0 {
		p.responseBytes.WithLabelValues(method).Observe(float64(responseBytes))
	}
}

// RecordSSEEvent counts one outbound SSE event
func (p *PrometheusMetricsProvider) RecordSSEEvent(kind string) {
	p.sseEventTotal.WithLabelValues(kind).Inc()
}

// RecordSessionEvent counts one session lifecycle event
func (p *PrometheusMetricsProvider) RecordSessionEvent(event string) {
	p.sessionEventTotal.WithLabelValues(event).Inc()
}

// SetActiveSessions sets the live session gauge
func (p *PrometheusMetricsProvider) SetActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
}

// SetActiveStreams sets the open stream gauge
func (p *PrometheusMetricsProvider) SetActiveStreams(n int) {
	p.activeStreams.Set(float64(n))
}

// SetPendingRequests sets the in-flight request gauge
func (p *PrometheusMetricsProvider) SetPendingRequests(n int) {
	p.pendingRequests.Set(float64(n))
}

// Registry exposes the underlying registry, for embedding the metrics
// handler into an existing router.
func (p *PrometheusMetricsProvider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an http.Handler serving the metrics exposition.
func (p *PrometheusMetricsProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Start serves the metrics endpoint on the configured port and blocks
// until the listener fails or Shutdown is called.
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())

	p.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", p.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return p.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
