package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	configContent := `
server:
  proxy_address: ":8090"
  admin_address: ":19090"

upstream:
  app_origin: "https://app.example.org"
  api_host: "api.backend.example"

cache:
  version: "v2"
  backend: "redis"
  redis:
    url: "redis://localhost:6379/0"

offline:
  manifest_file: "manifest.yaml"
  watch_manifest: true

route_policy:
  file: "routing.rego"

telemetry:
  otlp_endpoint: "http://localhost:4317"
  insecure: true

logging:
  level: "debug"
  pretty: true
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Upstream.AppOrigin != "https://app.example.org" {
		t.Errorf("Expected app_origin to be preserved, got %q", cfg.Upstream.AppOrigin)
	}
	if cfg.Upstream.APIHost != "api.backend.example" {
		t.Errorf("Expected api_host to be preserved, got %q", cfg.Upstream.APIHost)
	}
	if cfg.Cache.Version != "v2" {
		t.Errorf("Expected cache version v2, got %q", cfg.Cache.Version)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Expected redis backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Unexpected redis url %q", cfg.Cache.Redis.URL)
	}
	if !cfg.Offline.WatchManifest {
		t.Error("Expected watch_manifest to be true")
	}
	if cfg.RoutePolicy.File != "routing.rego" {
		t.Errorf("Unexpected route policy file %q", cfg.RoutePolicy.File)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://localhost:4317" {
		t.Errorf("Unexpected OTLP endpoint %q", cfg.Telemetry.OTLPEndpoint)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "upstream:\n  app_origin: \"https://app.example.org\"\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ProxyAddress != ":8090" {
		t.Errorf("Expected default proxy address :8090, got %q", cfg.Server.ProxyAddress)
	}
	if cfg.Server.AdminAddress != ":19090" {
		t.Errorf("Expected default admin address :19090, got %q", cfg.Server.AdminAddress)
	}
	if cfg.Cache.Version != "v1" {
		t.Errorf("Expected default cache version v1, got %q", cfg.Cache.Version)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Expected default memory backend, got %q", cfg.Cache.Backend)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NAVGATE_APP_ORIGIN", "https://staging.example.org")
	t.Setenv("NAVGATE_CACHE_VERSION", "v9")
	t.Setenv("NAVGATE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Upstream.AppOrigin != "https://staging.example.org" {
		t.Errorf("Expected env override for app origin, got %q", cfg.Upstream.AppOrigin)
	}
	if cfg.Cache.Version != "v9" {
		t.Errorf("Expected env override for cache version, got %q", cfg.Cache.Version)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected env override for log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing app origin", func(c *Config) { c.Upstream.AppOrigin = "" }, "app_origin"},
		{"relative app origin", func(c *Config) { c.Upstream.AppOrigin = "app.example.org" }, "absolute"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }, "redis.url"},
		{"same addresses", func(c *Config) { c.Server.AdminAddress = c.Server.ProxyAddress }, "differ"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"empty version", func(c *Config) { c.Cache.Version = "" }, "version"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{ProxyAddress: ":8090", AdminAddress: ":19090"},
				Upstream: UpstreamConfig{AppOrigin: "https://app.example.org"},
				Cache:    CacheConfig{Version: "v1", Backend: "memory"},
				Logging:  LoggingConfig{Level: "info"},
			}
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error mentioning %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}
