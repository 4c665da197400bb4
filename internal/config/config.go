// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/feedharvest/internal/pipeline"
)

const (
	minWorkers = 1
	maxWorkers = 40
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
	Cascade    CascadeConfig    `mapstructure:"cascade"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Progress   ProgressConfig   `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FeedConfig governs feed fetching and the parsed-feed cache.
type FeedConfig struct {
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
	// MaxEntries caps how many entries one feed contributes to a batch.
	MaxEntries int `mapstructure:"max_entries"`
}

// PipelineConfig sizes the per-batch worker pool.
type PipelineConfig struct {
	// Workers is clamped into [1, 40] at load time.
	Workers int `mapstructure:"workers"`
}

// StrategiesConfig declares the cascade order and each strategy's knobs.
// A strategy runs only when it appears in Order and its Enabled flag is set.
type StrategiesConfig struct {
	Order []string `mapstructure:"order"`
	// UserAgent is shared by every strategy; empty keeps each strategy's
	// built-in default.
	UserAgent string         `mapstructure:"user_agent"`
	Reader    ReaderConfig   `mapstructure:"reader"`
	Browser   BrowserConfig  `mapstructure:"browser"`
	Headless  HeadlessConfig `mapstructure:"headless"`
}

// ReaderConfig tunes the reader-proxy strategy.
type ReaderConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MinBytes       int    `mapstructure:"min_bytes"`
}

// BrowserConfig tunes the header-spoofing HTTP strategy.
type BrowserConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RespectRobots  bool `mapstructure:"respect_robots"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	MinBytes       int  `mapstructure:"min_bytes"`
}

// HeadlessConfig tunes the headless-render strategy.
type HeadlessConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	MaxParallel        int      `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int      `mapstructure:"nav_timeout_seconds"`
	ContentWaitSeconds int      `mapstructure:"content_wait_seconds"`
	MinBytes           int      `mapstructure:"min_bytes"`
	ExtraBlockedHosts  []string `mapstructure:"extra_blocked_hosts"`
}

// CascadeConfig tunes strategy health accounting.
type CascadeConfig struct {
	AttemptTimeoutSeconds int `mapstructure:"attempt_timeout_seconds"`
	FailureThreshold      int `mapstructure:"failure_threshold"`
	CooldownBaseMs        int `mapstructure:"cooldown_base_ms"`
	CooldownMaxMs         int `mapstructure:"cooldown_max_ms"`
}

// RateLimitConfig gates strategies on request rate and in-flight slots.
type RateLimitConfig struct {
	Enabled    bool                           `mapstructure:"enabled"`
	Strategies map[string]StrategyLimitConfig `mapstructure:"strategies"`
}

// StrategyLimitConfig holds one strategy's admission ceilings. Zero values
// mean unlimited.
type StrategyLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	Slots int     `mapstructure:"slots"`
}

// ExtractConfig tunes extraction heuristics.
type ExtractConfig struct {
	MinReadableLength int `mapstructure:"min_readable_length"`
	MinSummaryLength  int `mapstructure:"min_summary_length"`
}

// StorageConfig selects and tunes the raw-document archive backend.
type StorageConfig struct {
	// Backend is one of memory, local, or gcs.
	Backend     string             `mapstructure:"backend"`
	Bucket      string             `mapstructure:"bucket"`
	Prefix      string             `mapstructure:"prefix"`
	ContentType string             `mapstructure:"content_type"`
	Local       LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem blob store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls Postgres persistence. An empty DSN keeps the
// service on in-memory stores.
type DatabaseConfig struct {
	DSN                 string `mapstructure:"dsn"`
	ArticlesTable       string `mapstructure:"articles_table"`
	MaxConns            int32  `mapstructure:"max_conns"`
	MinConns            int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMins int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds the summarization handoff topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	// MinBodyLength is the shortest article body worth summarizing.
	MinBodyLength int `mapstructure:"min_body_length"`
}

// ProgressConfig controls the progress hub and its sinks.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
}

// ProgressBatchConfig bounds event batching inside the hub.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDHARVEST")
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

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("feed.timeout_seconds", 30)
	v.SetDefault("feed.cache_ttl_minutes", 120)
	v.SetDefault("feed.max_entries", 200)
	v.SetDefault("pipeline.workers", 20)
	v.SetDefault("strategies.order", []string{
		pipeline.StrategyReader, pipeline.StrategyBrowser, pipeline.StrategyHeadless,
	})
	v.SetDefault("strategies.reader.enabled", true)
	v.SetDefault("strategies.reader.base_url", "https://r.jina.ai")
	v.SetDefault("strategies.reader.timeout_seconds", 30)
	v.SetDefault("strategies.reader.min_bytes", 100)
	v.SetDefault("strategies.browser.enabled", true)
	v.SetDefault("strategies.browser.respect_robots", true)
	v.SetDefault("strategies.browser.timeout_seconds", 30)
	v.SetDefault("strategies.browser.min_bytes", 200)
	v.SetDefault("strategies.headless.enabled", true)
	v.SetDefault("strategies.headless.max_parallel", 2)
	v.SetDefault("strategies.headless.nav_timeout_seconds", 45)
	v.SetDefault("strategies.headless.content_wait_seconds", 5)
	v.SetDefault("strategies.headless.min_bytes", 200)
	v.SetDefault("cascade.attempt_timeout_seconds", 30)
	v.SetDefault("cascade.failure_threshold", 3)
	v.SetDefault("cascade.cooldown_base_ms", 5000)
	v.SetDefault("cascade.cooldown_max_ms", 300000)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.strategies.reader.rps", 5.0)
	v.SetDefault("ratelimit.strategies.reader.burst", 5)
	v.SetDefault("ratelimit.strategies.reader.slots", 10)
	v.SetDefault("ratelimit.strategies.browser.rps", 2.0)
	v.SetDefault("ratelimit.strategies.browser.burst", 2)
	v.SetDefault("ratelimit.strategies.browser.slots", 8)
	v.SetDefault("ratelimit.strategies.headless.rps", 0.5)
	v.SetDefault("ratelimit.strategies.headless.burst", 1)
	v.SetDefault("ratelimit.strategies.headless.slots", 2)
	v.SetDefault("extract.min_readable_length", 200)
	v.SetDefault("extract.min_summary_length", 50)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("database.articles_table", "articles")
	v.SetDefault("pubsub.min_body_length", 300)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("progress.batch.max_events", 1000)
	v.SetDefault("progress.batch.max_wait_ms", 500)
}

func (c *Config) normalize() {
	if c.Pipeline.Workers < minWorkers {
		c.Pipeline.Workers = minWorkers
	}
	if c.Pipeline.Workers > maxWorkers {
		c.Pipeline.Workers = maxWorkers
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Feed.TimeoutSeconds <= 0 {
		return fmt.Errorf("feed.timeout_seconds must be > 0")
	}
	if c.Feed.MaxEntries <= 0 {
		return fmt.Errorf("feed.max_entries must be > 0")
	}
	if err := c.validateStrategies(); err != nil {
		return err
	}
	if c.Storage.Backend == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.Local.BaseDir == "" {
		return fmt.Errorf("storage.local.base_dir must be set for the local backend")
	}
	return nil
}

func (c Config) validateStrategies() error {
	seen := make(map[string]struct{}, len(c.Strategies.Order))
	for _, name := range c.Strategies.Order {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("strategies.order lists %q twice", name)
		}
		seen[name] = struct{}{}
		switch name {
		case pipeline.StrategyReader, pipeline.StrategyBrowser, pipeline.StrategyHeadless:
		default:
			return fmt.Errorf("strategies.order contains unknown strategy %q", name)
		}
	}
	if len(c.EnabledStrategies()) == 0 {
		return fmt.Errorf("at least one fetch strategy must be enabled")
	}
	return nil
}

// EnabledStrategies returns the cascade order with disabled strategies
// filtered out.
func (c Config) EnabledStrategies() []string {
	enabled := make([]string, 0, len(c.Strategies.Order))
	for _, name := range c.Strategies.Order {
		switch name {
		case pipeline.StrategyReader:
			if c.Strategies.Reader.Enabled {
				enabled = append(enabled, name)
			}
		case pipeline.StrategyBrowser:
			if c.Strategies.Browser.Enabled {
				enabled = append(enabled, name)
			}
		case pipeline.StrategyHeadless:
			if c.Strategies.Headless.Enabled {
				enabled = append(enabled, name)
			}
		}
	}
	return enabled
}

// FeedTimeout returns the feed fetch deadline.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// FeedCacheTTL returns how long parsed feeds stay fresh.
func (c Config) FeedCacheTTL() time.Duration {
	return time.Duration(c.Feed.CacheTTLMinutes) * time.Minute
}

// AttemptTimeouts maps each strategy to its per-attempt deadline.
func (c Config) AttemptTimeouts() map[string]time.Duration {
	return map[string]time.Duration{
		pipeline.StrategyReader:   time.Duration(c.Strategies.Reader.TimeoutSeconds) * time.Second,
		pipeline.StrategyBrowser:  time.Duration(c.Strategies.Browser.TimeoutSeconds) * time.Second,
		pipeline.StrategyHeadless: time.Duration(c.Strategies.Headless.NavTimeoutSeconds) * time.Second,
	}
}

// MaxConnLifetime returns the pool connection lifetime for Postgres.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.Database.MaxConnLifetimeMins) * time.Minute
}
