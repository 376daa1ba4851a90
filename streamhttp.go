package streamhttp

import (
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/server"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/transport"
)

// Re-exports of the types most servers need, so simple callers only
// import the module root.

type (
	// Server is the runnable MCP server facade.
	Server = server.Server
	// ServerOption configures a Server.
	ServerOption = server.ServerOption
	// Tool describes one callable tool.
	Tool = server.Tool
	// ToolHandler executes a tool call.
	ToolHandler = server.ToolHandler
	// ToolsProvider supplies the tools/list and tools/call surface.
	ToolsProvider = server.ToolsProvider

	// Transport is the Streamable HTTP transport.
	Transport = transport.StreamableHTTPTransport
	// TransportConfig configures the transport.
	TransportConfig = transport.Config
)

var (
	// NewServer builds a server from options.
	NewServer = server.New
	// WithName sets the advertised server name.
	WithName = server.WithName
	// WithVersion sets the advertised server version.
	WithVersion = server.WithVersion
	// WithTool registers one tool.
	WithTool = server.WithTool
	// WithToolsProvider replaces the tool registry.
	WithToolsProvider = server.WithToolsProvider
	// WithTransportConfig replaces the transport configuration.
	WithTransportConfig = server.WithTransportConfig
	// WithLogger sets the structured logger.
	WithLogger = server.WithLogger
	// WithAuth protects the endpoint with bearer authentication.
	WithAuth = server.WithAuth
	// WithMetrics enables Prometheus metrics.
	WithMetrics = server.WithMetrics
	// WithTracing enables OpenTelemetry tracing.
	WithTracing = server.WithTracing
	// WithAddr sets the listen address.
	WithAddr = server.WithAddr
	// WithEndpoint sets the MCP endpoint path.
	WithEndpoint = server.WithEndpoint

	// NewTransport builds a standalone transport from a config.
	NewTransport = transport.NewStreamableHTTPTransport
	// DefaultTransportConfig returns the transport defaults.
	DefaultTransportConfig = transport.DefaultConfig
)
