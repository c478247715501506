// Package config loads and validates efgrabber configuration via Viper,
// merging a config file, environment variables (prefix EFGRABBER_), and
// CLI flags bound by cmd/.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures every tunable named across the fetch pipeline, the
// ambient stack, and the optional cloud integrations.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Datasets map[string]DatasetConfig `mapstructure:"datasets"`
}

// ServerConfig controls the status/debug HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig gates the status/debug server behind an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap's development encoder.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig points at the single-file SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// FetchConfig governs the HTTP transport every Fetcher shares.
type FetchConfig struct {
	UserAgent             string `mapstructure:"user_agent"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	FileTimeoutSeconds    int    `mapstructure:"file_timeout_seconds"`
	PageTimeoutSeconds    int    `mapstructure:"page_timeout_seconds"`
	MaxRedirects          int    `mapstructure:"max_redirects"`
	LowSpeedBPS           int64  `mapstructure:"low_speed_bytes_per_second"`
	LowSpeedDurationSecs  int    `mapstructure:"low_speed_duration_seconds"`
	KeepAliveSeconds      int    `mapstructure:"keepalive_seconds"`
	CookieString          string `mapstructure:"cookie_string"`
	CookieFile            string `mapstructure:"cookie_file"`
}

// SchedulerConfig governs dispatch/backoff/retry behavior.
type SchedulerConfig struct {
	MaxConcurrentDownloads int  `mapstructure:"max_concurrent_downloads"`
	MaxConcurrentPageScrapes int `mapstructure:"max_concurrent_page_scrapes"`
	MaxRetryAttempts       int  `mapstructure:"max_retry_attempts"`
	OverwriteExisting      bool `mapstructure:"overwrite_existing"`
}

// MirrorConfig configures the optional cloud-storage backup copy.
type MirrorConfig struct {
	Provider string    `mapstructure:"provider"` // "local" (noop) or "gcs"
	GCS      GCSConfig `mapstructure:"gcs"`
}

// GCSConfig names the bucket/prefix used when mirror.provider is "gcs".
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// QueueConfig configures the optional Pub/Sub progress event bus.
type QueueConfig struct {
	Provider string       `mapstructure:"provider"` // "noop" or "pubsub"
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds Pub/Sub topic identity.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// DiscoveryConfig tunes the index scraper's bot-challenge detection.
type DiscoveryConfig struct {
	ChallengeMarkers  []string `mapstructure:"challenge_markers"`
	ChallengeMinBytes int      `mapstructure:"challenge_min_bytes"`
	RequiredCookie    string   `mapstructure:"required_cookie"`
}

// HeadlessConfig configures the chromedp cookie harvester.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DatasetConfig registers a known collection so it can be started by ID
// alone. Supplements spec.md's manual-flags-only collection setup, the
// way the original's make_data_set_config/get_data_set_11_config did.
type DatasetConfig struct {
	Name        string `mapstructure:"name"`
	BaseURL     string `mapstructure:"base_url"`
	FileURLBase string `mapstructure:"file_url_base"`
	FilePrefix  string `mapstructure:"file_prefix"`
	FirstID     uint64 `mapstructure:"first_id"`
	LastID      uint64 `mapstructure:"last_id"`
}

// Load builds a Config from an optional file plus environment and applies
// defaults, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EFGRABBER")
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
	v.SetDefault("server.port", 9091)
	v.SetDefault("logging.development", true)
	v.SetDefault("store.path", "efgrabber.db")

	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.connect_timeout_seconds", 5)
	v.SetDefault("fetch.file_timeout_seconds", 300)
	v.SetDefault("fetch.page_timeout_seconds", 60)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.low_speed_bytes_per_second", 1024)
	v.SetDefault("fetch.low_speed_duration_seconds", 10)
	v.SetDefault("fetch.keepalive_seconds", 120)

	v.SetDefault("scheduler.max_concurrent_downloads", 50)
	v.SetDefault("scheduler.max_concurrent_page_scrapes", 30)
	v.SetDefault("scheduler.max_retry_attempts", 3)
	v.SetDefault("scheduler.overwrite_existing", false)

	v.SetDefault("mirror.provider", "local")
	v.SetDefault("queue.provider", "noop")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 60)

	v.SetDefault("discovery.challenge_min_bytes", 1000)
	v.SetDefault("discovery.challenge_markers", []string{
		"Access Denied", "Request unsuccessful", "cf-error-details", "captcha",
	})
	v.SetDefault("discovery.required_cookie", "justiceGovAgeVerified=true")

	v.SetDefault("datasets.11.name", "Data Set 11")
	v.SetDefault("datasets.11.base_url", "https://www.justice.gov/epstein/doj-disclosures/data-set-11-files")
	v.SetDefault("datasets.11.file_url_base", "https://www.justice.gov/epstein/files/DataSet%2011/")
	v.SetDefault("datasets.11.file_prefix", "EFTA")
	v.SetDefault("datasets.11.first_id", 2205655)
	v.SetDefault("datasets.11.last_id", 2730262)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Scheduler.MaxConcurrentDownloads <= 0 || c.Scheduler.MaxConcurrentDownloads > 500 {
		return fmt.Errorf("scheduler.max_concurrent_downloads must be in 1..500")
	}
	if c.Scheduler.MaxConcurrentPageScrapes <= 0 || c.Scheduler.MaxConcurrentPageScrapes > 30 {
		return fmt.Errorf("scheduler.max_concurrent_page_scrapes must be in 1..30")
	}
	if c.Fetch.MaxRedirects <= 0 {
		return fmt.Errorf("fetch.max_redirects must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Mirror.Provider == "gcs" && c.Mirror.GCS.Bucket == "" {
		return fmt.Errorf("mirror.gcs.bucket must be set when mirror.provider is gcs")
	}
	if c.Queue.Provider == "pubsub" && (c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.TopicID == "") {
		return fmt.Errorf("queue.pubsub.project_id and topic_id must be set when queue.provider is pubsub")
	}
	return nil
}

// Dataset looks up a registered collection by ID, reporting ok=false if
// unregistered (the caller must then supply --file-url-base manually).
func (c Config) Dataset(collectionID int) (DatasetConfig, bool) {
	ds, ok := c.Datasets[fmt.Sprintf("%d", collectionID)]
	return ds, ok
}
