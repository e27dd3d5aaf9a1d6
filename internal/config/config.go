package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oktsec/signdata/internal/dnsname"
)

// Config is the top-level signdata configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Identity  IdentityConfig  `yaml:"identity"`
	Verify    VerifyConfig    `yaml:"verify"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Signer    SignerConfig    `yaml:"signer"`
}

// ServerConfig holds relying-party server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// IdentityConfig locates the wallet keys known to the server.
type IdentityConfig struct {
	KeysDir string `yaml:"keys_dir"`
}

// VerifyConfig is the relying-party acceptance policy applied around
// signature verification.
type VerifyConfig struct {
	MaxAgeSeconds    int          `yaml:"max_age_seconds"`    // 0 = no age limit
	MaxFutureSeconds int          `yaml:"max_future_seconds"` // tolerated clock skew
	AllowedDomains   []string     `yaml:"allowed_domains,omitempty"`
	Replay           ReplayConfig `yaml:"replay"`
}

// ReplayConfig selects where seen signatures are remembered.
type ReplayConfig struct {
	Backend   string `yaml:"backend"` // memory, redis, none
	RedisAddr string `yaml:"redis_addr,omitempty"`
	RedisDB   int    `yaml:"redis_db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// AuditConfig configures the verification audit trail.
type AuditConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"` // auto-purge entries older than N days (0 = keep forever)
}

// RateLimitConfig bounds verification requests per account address.
type RateLimitConfig struct {
	PerAddress int `yaml:"per_address"` // 0 = unlimited
	WindowS    int `yaml:"window_s"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	Tracing string `yaml:"tracing"` // none, stdout
}

// SignerConfig enables the development signing endpoint, which signs with
// private keys from identity.keys_dir. Keep it off on shared hosts.
type SignerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaxAge returns the freshness window as a duration.
func (v VerifyConfig) MaxAge() time.Duration {
	return time.Duration(v.MaxAgeSeconds) * time.Second
}

// MaxFuture returns the tolerated clock skew as a duration.
func (v VerifyConfig) MaxFuture() time.Duration {
	return time.Duration(v.MaxFutureSeconds) * time.Second
}

// Window returns the rate-limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowS) * time.Second
}

// Load reads and parses a signdata config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Verify.Replay.Backend == "" {
		cfg.Verify.Replay.Backend = "memory"
	}
	if cfg.Verify.Replay.KeyPrefix == "" {
		cfg.Verify.Replay.KeyPrefix = "signdata:seen:"
	}
	if cfg.RateLimit.WindowS == 0 {
		cfg.RateLimit.WindowS = 60
	}
	if cfg.Telemetry.Tracing == "" {
		cfg.Telemetry.Tracing = "none"
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Identity: IdentityConfig{
			KeysDir: "./keys",
		},
		Verify: VerifyConfig{
			MaxAgeSeconds:    15 * 60,
			MaxFutureSeconds: 60,
			Replay: ReplayConfig{
				Backend:   "memory",
				RedisAddr: "127.0.0.1:6379",
				KeyPrefix: "signdata:seen:",
			},
		},
		Audit: AuditConfig{
			DBPath:        "signdata.db",
			RetentionDays: 30,
		},
		RateLimit: RateLimitConfig{
			WindowS: 60,
		},
		Telemetry: TelemetryConfig{
			Tracing: "none",
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}
	if c.Identity.KeysDir == "" {
		return fmt.Errorf("identity.keys_dir is required")
	}
	if c.Verify.MaxAgeSeconds < 0 {
		return fmt.Errorf("verify.max_age_seconds must not be negative")
	}
	if c.Verify.MaxFutureSeconds < 0 {
		return fmt.Errorf("verify.max_future_seconds must not be negative")
	}
	for _, d := range c.Verify.AllowedDomains {
		if _, err := dnsname.Encode(d); err != nil {
			return fmt.Errorf("allowed domain %q: %w", d, err)
		}
	}
	switch c.Verify.Replay.Backend {
	case "memory", "none":
	case "redis":
		if c.Verify.Replay.RedisAddr == "" {
			return fmt.Errorf("verify.replay.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid replay backend %q", c.Verify.Replay.Backend)
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	if c.RateLimit.PerAddress < 0 || c.RateLimit.WindowS < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	switch c.Telemetry.Tracing {
	case "none", "stdout":
	default:
		return fmt.Errorf("invalid telemetry.tracing %q", c.Telemetry.Tracing)
	}
	return nil
}
