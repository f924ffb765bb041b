// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Site      SiteConfig      `mapstructure:"site"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	JF2       JF2Config       `mapstructure:"jf2"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SiteConfig describes the published site and its owner.
type SiteConfig struct {
	URL       string `mapstructure:"url"`
	OwnerURL  string `mapstructure:"owner_url"`
	OwnerName string `mapstructure:"owner_name"`
}

// AuthConfig defines Micropub authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ProjectID      string `mapstructure:"project_id"`
}

// JF2Config shapes normalized documents.
type JF2Config struct {
	PreferredContentType string `mapstructure:"preferred_content_type"`
	ImplicitContentType  string `mapstructure:"implicit_content_type"`
	Compact              bool   `mapstructure:"compact"`
}

// ResolverConfig governs reference fetching.
type ResolverConfig struct {
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	UserAgent     string        `mapstructure:"user_agent"`
	ArchivePrefix string        `mapstructure:"archive_prefix"`

	// RateLimitRPS caps fetches per host; zero disables limiting.
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	BlockedHosts   []string `mapstructure:"blocked_hosts"`
}

// CacheConfig selects the reference cache backend.
type CacheConfig struct {
	Provider     string `mapstructure:"provider"`
	RedisURL     string `mapstructure:"redis_url"`
	Prefix       string `mapstructure:"prefix"`
	Codec        string `mapstructure:"codec"`
	ClearOnStart bool   `mapstructure:"clear_on_start"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where raw reference bodies are archived.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig controls outbound mention delivery.
type NotifyConfig struct {
	Provider      string        `mapstructure:"provider"`
	Workers       int           `mapstructure:"workers"`
	QueueDepth    int           `mapstructure:"queue_depth"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PubSubProject string        `mapstructure:"pubsub_project"`
	PubSubTopic   string        `mapstructure:"pubsub_topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GHAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("site.url", "http://localhost:8080")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "ghast")
	v.SetDefault("jf2.preferred_content_type", "text/html")
	v.SetDefault("jf2.implicit_content_type", "text/plain")
	v.SetDefault("jf2.compact", true)
	v.SetDefault("resolver.fetch_timeout", "5s")
	v.SetDefault("resolver.max_parallel", 8)
	v.SetDefault("resolver.user_agent", "ghast/0.1 (+https://indieweb.org/Webmention)")
	v.SetDefault("resolver.archive_prefix", "snapshots")
	v.SetDefault("resolver.rate_limit_rps", 2.0)
	v.SetDefault("resolver.rate_limit_burst", 4)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.prefix", "ghast:ref:")
	v.SetDefault("cache.codec", "tagged")
	v.SetDefault("cache.clear_on_start", true)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.max_conns", 8)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.base_dir", "data/snapshots")
	v.SetDefault("notify.provider", "log")
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queue_depth", 256)
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.timeout", "10s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if u, err := url.Parse(c.Site.URL); err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("site.url must be an absolute URL")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("auth.token must be set when auth is enabled")
	}
	if c.Resolver.FetchTimeout <= 0 {
		return fmt.Errorf("resolver.fetch_timeout must be > 0")
	}
	if c.Resolver.MaxParallel <= 0 {
		return fmt.Errorf("resolver.max_parallel must be > 0")
	}
	if c.Resolver.RateLimitRPS < 0 {
		return fmt.Errorf("resolver.rate_limit_rps must be >= 0")
	}
	if err := oneOf("cache.provider", c.Cache.Provider, "memory", "redis"); err != nil {
		return err
	}
	if c.Cache.Provider == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url must be set when cache.provider is redis")
	}
	if err := oneOf("cache.codec", c.Cache.Codec, "tagged", "flat"); err != nil {
		return err
	}
	if err := oneOf("storage.provider", c.Storage.Provider, "memory", "postgres"); err != nil {
		return err
	}
	if c.Storage.Provider == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must be set when storage.provider is postgres")
	}
	if err := oneOf("archive.provider", c.Archive.Provider, "none", "memory", "local", "gcs"); err != nil {
		return err
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if err := oneOf("notify.provider", c.Notify.Provider, "none", "log", "webmention", "pubsub"); err != nil {
		return err
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.PubSubProject == "" || c.Notify.PubSubTopic == "") {
		return fmt.Errorf("notify.pubsub_project and notify.pubsub_topic must be set when notify.provider is pubsub")
	}
	if c.Notify.Workers <= 0 || c.Notify.QueueDepth <= 0 {
		return fmt.Errorf("notify.workers and notify.queue_depth must be > 0")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}
