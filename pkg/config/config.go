// Package config provides configuration structures and loading logic for the
// gateway.
package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Offline  OfflineConfig  `yaml:"offline"`

	RoutePolicy RoutePolicyConfig `yaml:"route_policy"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP servers.
type ServerConfig struct {
	// ProxyAddress serves intercepted application traffic.
	ProxyAddress string `yaml:"proxy_address"`
	// AdminAddress serves health, metrics and the management API.
	AdminAddress string `yaml:"admin_address"`
}

// UpstreamConfig identifies the origins the gateway fronts.
type UpstreamConfig struct {
	// AppOrigin is the origin serving the application shell and assets.
	AppOrigin string `yaml:"app_origin"`
	// APIHost is the backend hostname whose requests get the API strategy.
	APIHost string `yaml:"api_host"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	// Version tags the cache generation (partitions are named from it).
	Version string `yaml:"version"`
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis cache backend.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// OfflineConfig controls precaching and deferred submissions.
type OfflineConfig struct {
	// ManifestFile lists the assets and routes seeded at install time.
	ManifestFile string `yaml:"manifest_file"`
	// WatchManifest re-runs the install phase when the manifest changes.
	WatchManifest bool `yaml:"watch_manifest"`
}

// RoutePolicyConfig points at an optional Rego module that overrides request
// classification.
type RoutePolicyConfig struct {
	File string `yaml:"file"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Pretty selects a human-readable colorized handler for development.
	Pretty bool `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ProxyAddress: ":8090",
			AdminAddress: ":19090",
		},
		Cache: CacheConfig{
			Version: "v1",
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("NAVGATE_PROXY_ADDR"); val != "" {
		cfg.Server.ProxyAddress = val
	}
	if val := os.Getenv("NAVGATE_ADMIN_ADDR"); val != "" {
		cfg.Server.AdminAddress = val
	}

	if val := os.Getenv("NAVGATE_APP_ORIGIN"); val != "" {
		cfg.Upstream.AppOrigin = val
	}
	if val := os.Getenv("NAVGATE_API_HOST"); val != "" {
		cfg.Upstream.APIHost = val
	}

	if val := os.Getenv("NAVGATE_CACHE_VERSION"); val != "" {
		cfg.Cache.Version = val
	}
	if val := os.Getenv("NAVGATE_CACHE_BACKEND"); val != "" {
		cfg.Cache.Backend = val
	}
	if val := os.Getenv("NAVGATE_REDIS_URL"); val != "" {
		cfg.Cache.Redis.URL = val
	}
	if val := os.Getenv("NAVGATE_REDIS_PASSWORD"); val != "" {
		cfg.Cache.Redis.Password = val
	}

	if val := os.Getenv("NAVGATE_MANIFEST_FILE"); val != "" {
		cfg.Offline.ManifestFile = val
	}
	if val := os.Getenv("NAVGATE_WATCH_MANIFEST"); val == "true" {
		cfg.Offline.WatchManifest = true
	}

	if val := os.Getenv("NAVGATE_ROUTE_POLICY_FILE"); val != "" {
		cfg.RoutePolicy.File = val
	}

	if val := os.Getenv("NAVGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("NAVGATE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("NAVGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("NAVGATE_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
}

// Validate checks the configuration for invalid or inconsistent settings.
func (c *Config) Validate() error {
	if c.Server.ProxyAddress == "" {
		return fmt.Errorf("server.proxy_address must not be empty")
	}
	if c.Server.AdminAddress == "" {
		return fmt.Errorf("server.admin_address must not be empty")
	}
	if c.Server.ProxyAddress == c.Server.AdminAddress {
		return fmt.Errorf("server.proxy_address and server.admin_address must differ")
	}

	if c.Upstream.AppOrigin == "" {
		return fmt.Errorf("upstream.app_origin is required")
	}
	origin, err := url.Parse(c.Upstream.AppOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("upstream.app_origin %q must be an absolute URL", c.Upstream.AppOrigin)
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.URL == "" {
			return fmt.Errorf("cache.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q must be \"memory\" or \"redis\"", c.Cache.Backend)
	}

	if c.Cache.Version == "" {
		return fmt.Errorf("cache.version must not be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// AppOriginURL returns the parsed application origin. Validate must have
// passed first.
func (c *Config) AppOriginURL() (*url.URL, error) {
	return url.Parse(c.Upstream.AppOrigin)
}
