package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Endpoint != "/mcp" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if !cfg.Transport.Stateful {
		t.Error("transport defaults to stateless, want stateful")
	}
	if cfg.Store.Backend != "memory" || cfg.Auth.Mode != "none" {
		t.Errorf("store/auth defaults = %q/%q", cfg.Store.Backend, cfg.Auth.Mode)
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":9090"
  name: file-name
transport:
  stateful: false
  request_timeout: 5s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	// Environment overrides the file.
	t.Setenv("MCP_SERVER__NAME", "env-name")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090 from file", cfg.Server.Addr)
	}
	if cfg.Server.Name != "env-name" {
		t.Errorf("name = %q, want env-name from environment", cfg.Server.Name)
	}
	if cfg.Transport.Stateful {
		t.Error("stateful = true, want false from file")
	}
	if cfg.Transport.RequestTimeout != 5*time.Second {
		t.Errorf("request_timeout = %v, want 5s", cfg.Transport.RequestTimeout)
	}
}

func TestConfigNormalizeInfersSelectors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.RedisAddr = "localhost:6379"
	cfg.Auth.JWTSecret = "s3cr3t"
	cfg.normalize()

	if cfg.Store.Backend != "redis" {
		t.Errorf("backend = %q, want redis inferred from address", cfg.Store.Backend)
	}
	if cfg.Auth.Mode != "jwt" {
		t.Errorf("auth mode = %q, want jwt inferred from secret", cfg.Auth.Mode)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "oauth" }},
		{"jwt without secret", func(c *Config) { c.Auth.Mode = "jwt" }},
		{"static without tokens", func(c *Config) { c.Auth.Mode = "static" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "logfmt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate() accepted invalid config")
			}
		})
	}
}
