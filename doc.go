// Package streamhttp implements the server side of the Model Context
// Protocol over the Streamable HTTP transport: one endpoint that accepts
// JSON-RPC messages by POST, streams server traffic out over SSE on GET,
// and tears sessions down on DELETE.
//
// # Overview
//
// The module is organized into focused sub-packages:
//
//   - pkg/transport: the Streamable HTTP transport itself (sessions,
//     SSE streams, resumability, rate limiting)
//   - pkg/session: session state, event history, and pluggable stores
//     (in-memory and Redis)
//   - pkg/protocol: JSON-RPC 2.0 and MCP message types and protocol
//     revision negotiation
//   - pkg/server: a runnable server facade with a tool registry
//   - pkg/auth: bearer-token verification and middleware
//   - pkg/errors: the transport's error taxonomy with HTTP and JSON-RPC
//     mappings
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/logging: the structured logger used throughout
//
// This root package re-exports the types most callers need, so simple
// servers only import one path.
//
// # Running a server
//
//	srv, err := streamhttp.NewServer(
//	    streamhttp.WithName("echo"),
//	    streamhttp.WithTool("echo", "Echoes its input", schema, handler),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// For finer control, construct a transport.StreamableHTTPTransport
// directly and mount it on your own router.
package streamhttp
