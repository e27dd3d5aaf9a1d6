package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
version: "1"
server:
  port: 9090
  log_level: debug
identity:
  keys_dir: ./test-keys
verify:
  max_age_seconds: 300
  allowed_domains: [tonkeeper.com, example.org]
  replay:
    backend: redis
    redis_addr: localhost:6380
rate_limit:
  per_address: 5
`
	path := filepath.Join(t.TempDir(), "signdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "./test-keys", cfg.Identity.KeysDir)
	assert.Equal(t, 5*time.Minute, cfg.Verify.MaxAge())
	assert.Equal(t, time.Minute, cfg.Verify.MaxFuture(), "unset field keeps default")
	assert.Equal(t, []string{"tonkeeper.com", "example.org"}, cfg.Verify.AllowedDomains)
	assert.Equal(t, "redis", cfg.Verify.Replay.Backend)
	assert.Equal(t, "localhost:6380", cfg.Verify.Replay.RedisAddr)
	assert.Equal(t, "signdata:seen:", cfg.Verify.Replay.KeyPrefix)
	assert.Equal(t, 5, cfg.RateLimit.PerAddress)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "none", cfg.Telemetry.Tracing)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, "memory", cfg.Verify.Replay.Backend)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	require.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signdata.yaml")
	cfg := Defaults()
	cfg.Verify.AllowedDomains = []string{"tonkeeper.com"}
	cfg.Telemetry.Tracing = "stdout"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too big", func(c *Config) { c.Server.Port = 70000 }},
		{"log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"keys dir", func(c *Config) { c.Identity.KeysDir = "" }},
		{"negative age", func(c *Config) { c.Verify.MaxAgeSeconds = -1 }},
		{"negative skew", func(c *Config) { c.Verify.MaxFutureSeconds = -1 }},
		{"bad domain", func(c *Config) { c.Verify.AllowedDomains = []string{"bad domain"} }},
		{"empty label domain", func(c *Config) { c.Verify.AllowedDomains = []string{"a..b"} }},
		{"replay backend", func(c *Config) { c.Verify.Replay.Backend = "etcd" }},
		{"redis without addr", func(c *Config) {
			c.Verify.Replay.Backend = "redis"
			c.Verify.Replay.RedisAddr = ""
		}},
		{"retention", func(c *Config) { c.Audit.RetentionDays = -2 }},
		{"rate limit", func(c *Config) { c.RateLimit.PerAddress = -1 }},
		{"tracing", func(c *Config) { c.Telemetry.Tracing = "jaeger" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatch_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signdata.yaml")
	require.NoError(t, Defaults().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, slog.New(slog.DiscardHandler), func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is skipped.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	select {
	case c := <-changes:
		t.Fatalf("invalid config delivered: %+v", c)
	default:
	}

	updated := Defaults()
	updated.Verify.MaxAgeSeconds = 42
	require.NoError(t, updated.Save(path))

	select {
	case c := <-changes:
		assert.Equal(t, 42, c.Verify.MaxAgeSeconds)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
