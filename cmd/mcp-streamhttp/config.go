package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full configuration of the binary. Values come from a
// YAML file plus MCP_-prefixed environment variables; the environment
// wins, with double underscores as the nesting separator
// (MCP_SERVER__ADDR sets server.addr).
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Transport TransportConfig `koanf:"transport"`
	Store     StoreConfig     `koanf:"store"`
	Auth      AuthConfig      `koanf:"auth"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

type ServerConfig struct {
	Name     string `koanf:"name"`
	Version  string `koanf:"version"`
	Addr     string `koanf:"addr"`
	Endpoint string `koanf:"endpoint"`
}

type TransportConfig struct {
	Stateful           bool          `koanf:"stateful"`
	EnableJSONResponse bool          `koanf:"json_response"`
	EnableResumability bool          `koanf:"resumability"`
	EventHistorySize   int           `koanf:"event_history_size"`
	MaxBodySize        int64         `koanf:"max_body_size"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
	SessionTimeout     time.Duration `koanf:"session_timeout"`
	AllowedOrigins     []string      `koanf:"allowed_origins"`

	RateLimitEnabled bool `koanf:"rate_limit_enabled"`
	RateLimitPerMin  int  `koanf:"rate_limit_per_minute"`
	RateLimitBurst   int  `koanf:"rate_limit_burst"`
}

type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend     string `koanf:"backend"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`
}

type AuthConfig struct {
	// Mode is "none", "static", or "jwt".
	Mode           string   `koanf:"mode"`
	Realm          string   `koanf:"realm"`
	RequiredScopes []string `koanf:"required_scopes"`

	// Static tokens as "token:subject:scope1 scope2" entries.
	StaticTokens []string `koanf:"static_tokens"`

	JWTSecret   string        `koanf:"jwt_secret"`
	JWTIssuer   string        `koanf:"jwt_issuer"`
	JWTAudience string        `koanf:"jwt_audience"`
	JWTLeeway   time.Duration `koanf:"jwt_leeway"`

	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
	// Exporter is otlp-grpc, otlp-http, or noop.
	Exporter string  `koanf:"exporter"`
	Endpoint string  `koanf:"endpoint"`
	Sampling float64 `koanf:"sampling"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "mcp-streamhttp",
			Version:  "0.1.0",
			Addr:     ":8080",
			Endpoint: "/mcp",
		},
		Transport: TransportConfig{
			Stateful:        true,
			MaxBodySize:     1 << 20,
			RequestTimeout:  30 * time.Second,
			SessionTimeout:  time.Hour,
			RateLimitPerMin: 60,
		},
		Store: StoreConfig{Backend: "memory"},
		Auth: AuthConfig{
			Mode:  "none",
			Realm: "mcp",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics"},
		Tracing: TracingConfig{Exporter: "otlp-grpc", Sampling: 1.0},
	}
}

// loadConfig merges defaults, the optional YAML file, and environment
// overrides, in that order.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("MCP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "MCP_")), "__", ".")
	}), nil); err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	cfg.normalize()
	return cfg, cfg.validate()
}

// normalize infers selectors left at their defaults: a redis address
// implies the redis backend, a JWT secret or static tokens imply the
// matching auth mode.
func (c *Config) normalize() {
	if c.Store.Backend == "memory" && c.Store.RedisAddr != "" {
		c.Store.Backend = "redis"
	}
	if c.Auth.Mode == "none" {
		switch {
		case c.Auth.JWTSecret != "":
			c.Auth.Mode = "jwt"
		case len(c.Auth.StaticTokens) > 0:
			c.Auth.Mode = "static"
		}
	}
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required for the redis backend")
	}

	switch c.Auth.Mode {
	case "none", "static", "jwt":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Auth.Mode == "jwt" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required for jwt auth")
	}
	if c.Auth.Mode == "static" && len(c.Auth.StaticTokens) == 0 {
		return fmt.Errorf("auth.static_tokens is required for static auth")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
