// Command mcp-streamhttp runs a standalone MCP server on the Streamable
// HTTP transport, configured from a YAML file and MCP_-prefixed
// environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/rueidis"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/auth"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/observability"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/server"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/session"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-streamhttp:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging)

	opts := []server.ServerOption{
		server.WithName(cfg.Server.Name),
		server.WithVersion(cfg.Server.Version),
		server.WithAddr(cfg.Server.Addr),
		server.WithEndpoint(cfg.Server.Endpoint),
		server.WithLogger(logger),
		server.WithTool("echo", "Echoes the text argument back",
			json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
			echoTool),
		server.WithTool("time", "Returns the server's current time in RFC 3339",
			json.RawMessage(`{"type":"object"}`),
			timeTool),
	}

	tcfg, cleanup, err := buildTransportConfig(cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	opts = append(opts, server.WithTransportConfig(tcfg))

	if cfg.Auth.Mode != "none" {
		verifier, err := buildVerifier(cfg.Auth)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithAuth(verifier, auth.Options{
			Realm:          cfg.Auth.Realm,
			RequiredScopes: cfg.Auth.RequiredScopes,
			CacheTTL:       cfg.Auth.CacheTTL,
			Logger:         logger,
		}))
	}

	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(observability.MetricsConfig{
			ServiceName:    cfg.Server.Name,
			ServiceVersion: cfg.Server.Version,
			MetricsPath:    cfg.Metrics.Path,
		}))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, server.WithTracing(observability.TracingConfig{
			ServiceName:    cfg.Server.Name,
			ServiceVersion: cfg.Server.Version,
			ExporterType:   observability.ExporterType(cfg.Tracing.Exporter),
			Endpoint:       cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.Sampling,
		}))
	}

	srv, err := server.New(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		logging.String("addr", cfg.Server.Addr),
		logging.String("endpoint", cfg.Server.Endpoint),
		logging.Bool("stateful", cfg.Transport.Stateful),
		logging.String("store", cfg.Store.Backend),
		logging.String("auth", cfg.Auth.Mode),
	)
	return srv.Start(ctx)
}

func buildLogger(cfg LoggingConfig) logging.Logger {
	var formatter logging.Formatter
	if cfg.Format == "json" {
		formatter = logging.NewJSONFormatter()
	} else {
		formatter = logging.NewTextFormatter()
	}
	logger := logging.New(os.Stderr, formatter)
	switch cfg.Level {
	case "debug":
		logger.SetLevel(logging.DebugLevel)
	case "warn":
		logger.SetLevel(logging.WarnLevel)
	case "error":
		logger.SetLevel(logging.ErrorLevel)
	default:
		logger.SetLevel(logging.InfoLevel)
	}
	return logger
}

func buildTransportConfig(cfg Config, logger logging.Logger) (transport.Config, func(), error) {
	tcfg := transport.DefaultConfig()
	tcfg.Stateful = cfg.Transport.Stateful
	tcfg.EnableJSONResponse = cfg.Transport.EnableJSONResponse
	tcfg.EnableResumability = cfg.Transport.EnableResumability
	tcfg.Logger = logger
	if cfg.Transport.EventHistorySize > 0 {
		tcfg.EventHistorySize = cfg.Transport.EventHistorySize
	}
	if cfg.Transport.MaxBodySize > 0 {
		tcfg.MaxBodySize = cfg.Transport.MaxBodySize
	}
	if cfg.Transport.RequestTimeout > 0 {
		tcfg.RequestTimeout = cfg.Transport.RequestTimeout
	}
	if cfg.Transport.SessionTimeout > 0 {
		tcfg.SessionTimeout = cfg.Transport.SessionTimeout
	}
	if len(cfg.Transport.AllowedOrigins) > 0 {
		tcfg.AllowedOrigins = cfg.Transport.AllowedOrigins
	}
	tcfg.RateLimit = &transport.RateLimitConfig{
		Enabled:           cfg.Transport.RateLimitEnabled,
		RequestsPerMinute: cfg.Transport.RateLimitPerMin,
		Burst:             cfg.Transport.RateLimitBurst,
	}

	if cfg.Store.Backend == "redis" {
		client, err := rueidis.NewClient(rueidis.ClientOption{
			InitAddress: []string{cfg.Store.RedisAddr},
		})
		if err != nil {
			return tcfg, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		var storeOpts []session.RedisStoreOption
		if cfg.Store.RedisPrefix != "" {
			storeOpts = append(storeOpts, session.WithKeyPrefix(cfg.Store.RedisPrefix))
		}
		tcfg.SessionStore = session.NewRedisStore(client, storeOpts...)
		return tcfg, client.Close, nil
	}
	return tcfg, nil, nil
}

func buildVerifier(cfg AuthConfig) (auth.TokenVerifier, error) {
	switch cfg.Mode {
	case "static":
		verifier := auth.NewStaticVerifier()
		for _, entry := range cfg.StaticTokens {
			parts := strings.SplitN(entry, ":", 3)
			if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
				return nil, fmt.Errorf("malformed static token entry %q, want token:subject[:scopes]", entry)
			}
			var scopes []string
			if len(parts) == 3 && parts[2] != "" {
				scopes = strings.Fields(parts[2])
			}
			verifier.Register(parts[0], parts[1], scopes, 0)
		}
		return verifier, nil
	case "jwt":
		return auth.NewJWTVerifier(auth.JWTVerifierConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
}

func echoTool(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var params struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, err
	}
	return params.Text, nil
}

func timeTool(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}
