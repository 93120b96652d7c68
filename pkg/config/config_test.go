package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validBaseConfig is a valid config with every optional feature switched on.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Backend = "postgres"
	cfg.Database.DSN = "postgres://streamcast@localhost/streamcast"
	cfg.Redis.Enabled = true
	cfg.Tracing.Enabled = true
	cfg.RateLimiting.Enabled = true
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.True(t, cfg.Signal.TrustClientIdentity)
	assert.NotEmpty(t, cfg.WebRTC.ICEServers)
	require.NoError(t, validBaseConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"pong not above ping", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"zero send buffer", func(c *Config) { c.Signal.SendBuffer = 0 }},
		{"ice server without urls", func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Database.DSN = "" }},
		{"min conns above max", func(c *Config) { c.Database.MinConns = c.Database.MaxConns + 1 }},
		{"zero store timeout", func(c *Config) { c.Store.CallTimeout = 0 }},
		{"retry without attempts", func(c *Config) { c.Store.Retry.MaxAttempts = 0 }},
		{"breaker threshold", func(c *Config) { c.Store.CircuitBreaker.FailureThreshold = 0 }},
		{"redis without address", func(c *Config) { c.Redis.Address = "" }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"http rps", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"http max concurrent", func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 }},
		{"ws messages per second", func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 }},
		{"ws burst", func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{"ws max message size", func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Server.Address, cfg.Server.Address)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
signal:
  ping_interval: 10s
  pong_timeout: 25s
  trust_client_identity: false
webrtc:
  ice_servers:
    - urls: ["turn:turn.example.com:3478"]
      username: streamcast
      credential: secret
store:
  backend: memory
  catalog_cache_ttl: 0s
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Address)
		assert.Equal(t, 10*time.Second, cfg.Signal.PingInterval)
		assert.False(t, cfg.Signal.TrustClientIdentity)
		require.Len(t, cfg.WebRTC.ICEServers, 1)
		assert.Equal(t, "streamcast", cfg.WebRTC.ICEServers[0].Username)
		assert.Zero(t, cfg.Store.CatalogCacheTTL)
		assert.Equal(t, DefaultConfig().Signal.SendBuffer, cfg.Signal.SendBuffer)
	})

	t.Run("shipped config", func(t *testing.T) {
		cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Store.Backend)
		assert.Equal(t, 50*time.Millisecond, cfg.Store.Retry.InitialDelay)
		assert.Equal(t, 100, cfg.Logging.MaxSizeMB)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("STREAMCAST_SERVER_ADDRESS", ":7000")
		t.Setenv("STREAMCAST_TRUST_CLIENT_IDENTITY", "false")
		t.Setenv("STREAMCAST_ALLOWED_ORIGINS", "https://a.example,https://b.example")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.Address)
		assert.False(t, cfg.Signal.TrustClientIdentity)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Auth.AllowedOrigins)
	})

	t.Run("bad env bool", func(t *testing.T) {
		t.Setenv("STREAMCAST_REDIS_ENABLED", "maybe")
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("env produces invalid config", func(t *testing.T) {
		t.Setenv("STREAMCAST_STORE_BACKEND", "postgres")
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
