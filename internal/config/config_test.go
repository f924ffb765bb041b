package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
site:
  url: https://me.example
  owner_name: Me
auth:
  enabled: true
  token: secret
jf2:
  compact: false
resolver:
  fetch_timeout: 2s
  max_parallel: 3
  rate_limit_rps: 0.5
  blocked_hosts:
    - "*.internal"
    - localhost
cache:
  provider: redis
  redis_url: redis://localhost:6379/0
  codec: flat
storage:
  provider: postgres
  dsn: postgres://localhost/ghast
archive:
  provider: local
  base_dir: /tmp/snaps
notify:
  provider: webmention
  workers: 4
  max_attempts: 5
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://me.example", cfg.Site.URL)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.Token)
	require.False(t, cfg.JF2.Compact)
	require.Equal(t, "text/html", cfg.JF2.PreferredContentType)
	require.Equal(t, 2*time.Second, cfg.Resolver.FetchTimeout)
	require.Equal(t, 3, cfg.Resolver.MaxParallel)
	require.InDelta(t, 0.5, cfg.Resolver.RateLimitRPS, 1e-9)
	require.Equal(t, []string{"*.internal", "localhost"}, cfg.Resolver.BlockedHosts)
	require.Equal(t, "redis", cfg.Cache.Provider)
	require.Equal(t, "flat", cfg.Cache.Codec)
	require.Equal(t, "postgres", cfg.Storage.Provider)
	require.Equal(t, "/tmp/snaps", cfg.Archive.BaseDir)
	require.Equal(t, 4, cfg.Notify.Workers)
	require.Equal(t, 5, cfg.Notify.MaxAttempts)
	require.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Cache.Provider)
	require.Equal(t, "tagged", cfg.Cache.Codec)
	require.True(t, cfg.Cache.ClearOnStart)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, "none", cfg.Archive.Provider)
	require.Equal(t, "log", cfg.Notify.Provider)
	require.Equal(t, 5*time.Second, cfg.Resolver.FetchTimeout)
	require.True(t, cfg.JF2.Compact)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GHAST_SERVER_PORT", "7070")
	t.Setenv("GHAST_CACHE_CODEC", "flat")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "flat", cfg.Cache.Codec)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "site", mutate: func(c *Config) { c.Site.URL = "/notes" }, want: "site.url"},
		{name: "auth", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.token"},
		{name: "rate limit", mutate: func(c *Config) { c.Resolver.RateLimitRPS = -1 }, want: "resolver.rate_limit_rps"},
		{name: "timeout", mutate: func(c *Config) { c.Resolver.FetchTimeout = 0 }, want: "resolver.fetch_timeout"},
		{name: "cache provider", mutate: func(c *Config) { c.Cache.Provider = "memcached" }, want: "cache.provider"},
		{name: "redis url", mutate: func(c *Config) { c.Cache.Provider = "redis" }, want: "cache.redis_url"},
		{name: "codec", mutate: func(c *Config) { c.Cache.Codec = "gob" }, want: "cache.codec"},
		{name: "dsn", mutate: func(c *Config) { c.Storage.Provider = "postgres" }, want: "storage.dsn"},
		{name: "bucket", mutate: func(c *Config) { c.Archive.Provider = "gcs" }, want: "archive.gcs_bucket"},
		{name: "pubsub", mutate: func(c *Config) { c.Notify.Provider = "pubsub" }, want: "notify.pubsub_project"},
		{name: "workers", mutate: func(c *Config) { c.Notify.Workers = 0 }, want: "notify.workers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}
