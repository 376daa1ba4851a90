package observability

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Middleware returns an http.Handler middleware that opens one span
// per request and records request metrics. Either provider may be nil,
// in which case its half is skipped.
func Middleware(tracing *TracingProvider, metrics MetricsProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			var span trace.Span
			if tracing != nil {
				ctx = tracing.Extract(ctx, propagation.HeaderCarrier(r.Header))
				ctx, span = tracing.StartSpan(ctx, fmt.Sprintf("mcp.streamhttp %s", r.Method),
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(
						attribute.String("http.method", r.Method),
						attribute.String("http.route", r.URL.Path),
						attribute.String("mcp.session_id", r.Header.Get("Mcp-Session-Id")),
					),
				)
				defer span.End()
			}

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			if span != nil {
				span.SetAttributes(
					attribute.Int("http.status_code", status),
					attribute.Int("http.response_size", sw.written),
				)
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}
			}
			if metrics != nil {
				metrics.RecordRequest(r.Method, status, time.Since(start), int(r.ContentLength), sw.written)
			}
		})
	}
}

// statusWriter captures the status code and byte count while keeping
// the Flusher contract intact; SSE responses break without it.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Flush forwards to the wrapped writer when it supports streaming.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
