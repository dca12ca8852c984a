package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CUBSCRAPE_"

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Resolve  ResolveConfig  `yaml:"resolve"`
	Query    QueryConfig    `yaml:"query"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sources  SourcesConfig  `yaml:"sources"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig configures the raw record store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SnapshotConfig configures where resolved snapshots are written.
type SnapshotConfig struct {
	Dir         string `yaml:"dir"`
	Keep        int    `yaml:"keep"`
	LockTimeout string `yaml:"lock_timeout"`
}

// ParseLockTimeout returns the lock timeout as time.Duration.
func (s SnapshotConfig) ParseLockTimeout() time.Duration {
	return parseDuration(s.LockTimeout, 30*time.Second)
}

// ResolveConfig tunes the rebuild.
type ResolveConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ChannelWindow       string  `yaml:"channel_window"`
	Currency            string  `yaml:"currency"`
}

// ParseChannelWindow returns the same-channel window as time.Duration.
func (r ResolveConfig) ParseChannelWindow() time.Duration {
	return parseDuration(r.ChannelWindow, 180*24*time.Hour)
}

// QueryConfig configures the read side.
type QueryConfig struct {
	CacheSize    int `yaml:"cache_size"`
	DefaultLimit int `yaml:"default_limit"`
}

// ScheduleConfig configures collection and rebuild intervals.
type ScheduleConfig struct {
	CollectInterval string `yaml:"collect_interval"`
	RebuildInterval string `yaml:"rebuild_interval"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	return parseDuration(s.CollectInterval, time.Hour)
}

// ParseRebuildInterval returns the rebuild interval as time.Duration.
func (s ScheduleConfig) ParseRebuildInterval() time.Duration {
	return parseDuration(s.RebuildInterval, 6*time.Hour)
}

// SourcesConfig holds configuration for the collectors.
type SourcesConfig struct {
	YouTube YouTubeConfig `yaml:"youtube"`
	Import  ImportConfig  `yaml:"import"`
}

// YouTubeConfig for the channel feed collector.
type YouTubeConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Channels        []string `yaml:"channels"`
	FeedURL         string   `yaml:"feed_url"`
	Timeout         string   `yaml:"timeout"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// ParseTimeout returns the feed request timeout.
func (y YouTubeConfig) ParseTimeout() time.Duration {
	return parseDuration(y.Timeout, 30*time.Second)
}

// ImportConfig for fetcher output imported from JSON files.
type ImportConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

// NotifyConfig configures rebuild notifications.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic signed webhooks.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./cubscrape.db"},
		Snapshot: SnapshotConfig{Dir: "./snapshots", Keep: 3, LockTimeout: "30s"},
		Resolve: ResolveConfig{
			SimilarityThreshold: 0.85,
			ChannelWindow:       "4320h",
			Currency:            "USD",
		},
		Query: QueryConfig{CacheSize: 256, DefaultLimit: 50},
		Schedule: ScheduleConfig{
			CollectInterval: "1h",
			RebuildInterval: "6h",
		},
		Sources: SourcesConfig{
			YouTube: YouTubeConfig{
				Enabled:         true,
				FeedURL:         "https://www.youtube.com/feeds/videos.xml",
				Timeout:         "30s",
				ExcludeKeywords: []string{"#shorts"},
			},
		},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from a YAML file, loads a .env file from the
// working directory if present and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rebuild cannot run with.
func (c *Config) Validate() error {
	if c.Resolve.SimilarityThreshold <= 0 || c.Resolve.SimilarityThreshold > 1 {
		return fmt.Errorf("resolve.similarity_threshold must be in (0, 1], got %v", c.Resolve.SimilarityThreshold)
	}
	if c.Snapshot.Dir == "" {
		return errors.New("snapshot.dir must be set")
	}
	if c.Database.Path == "" {
		return errors.New("database.path must be set")
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return errors.New("notify.webhook.url must be set when the webhook is enabled")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := env("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := env("SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := env("SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %sSIMILARITY_THRESHOLD: %w", EnvPrefix, err)
		}
		cfg.Resolve.SimilarityThreshold = f
	}
	if v := env("CHANNEL_WINDOW"); v != "" {
		cfg.Resolve.ChannelWindow = v
	}
	if v := env("CURRENCY"); v != "" {
		cfg.Resolve.Currency = strings.ToUpper(v)
	}
	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := env("YOUTUBE_CHANNELS"); v != "" {
		cfg.Sources.YouTube.Channels = splitList(v)
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Slack.WebhookURL = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notify.Discord.WebhookURL = v
		cfg.Notify.Discord.Enabled = true
	}
	if v := env("WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}
	if v := env("WEBHOOK_SECRET"); v != "" {
		cfg.Notify.Webhook.Secret = v
	}
	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
