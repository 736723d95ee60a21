// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Frost   FrostConfig   `mapstructure:"frost"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the operator HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FrostConfig points the crawler at the upstream SensorThings service.
type FrostConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	UserAgent    string `mapstructure:"user_agent"`
	PageSize     int    `mapstructure:"page_size"`
	MaxBodyBytes int    `mapstructure:"max_body_bytes"`
}

// HTTPConfig configures HTTP client retry and pacing behavior.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DBConfig controls access to the mobility database. DSN wins over the
// individual connection fields when both are set.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// CrawlConfig governs the crawl cycle.
type CrawlConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Workers       int           `mapstructure:"workers"`
	StartTime     string        `mapstructure:"start_time"`
	CommitTimeout time.Duration `mapstructure:"commit_timeout"`
}

// ArchiveConfig enables raw page archiving, to GCS when a bucket is set or
// else to a local directory.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for cycle notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FROSTCRAWLER")
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
	v.SetDefault("frost.base_url", "https://verkehr.aachen.de/Frost-Server/api/v1.1/")
	v.SetDefault("frost.username", "")
	v.SetDefault("frost.password", "")
	v.SetDefault("frost.user_agent", "frost-crawler/1.0")
	v.SetDefault("frost.page_size", 1000)
	v.SetDefault("frost.max_body_bytes", 64<<20)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 3000)
	v.SetDefault("http.requests_per_second", 5.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "mobility")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.migrate", false)
	v.SetDefault("crawl.interval", time.Hour)
	v.SetDefault("crawl.retry_interval", 90*time.Second)
	v.SetDefault("crawl.workers", 1)
	// Bounds the first fetch of a datastream with no stored observations,
	// which is held in memory until it commits. An explicit "" removes the floor.
	v.SetDefault("crawl.start_time", DefaultStartTime)
	v.SetDefault("crawl.commit_timeout", 30*time.Second)
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.local_dir", "")
	v.SetDefault("archive.prefix", "frost")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Frost.BaseURL == "" {
		return fmt.Errorf("frost.base_url is required")
	}
	if u, err := url.Parse(c.Frost.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("frost.base_url must be an absolute URL")
	}
	if c.Frost.PageSize <= 0 || c.Frost.PageSize > 1000 {
		return fmt.Errorf("frost.page_size must be between 1 and 1000")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.DB.DSN == "" && (c.DB.Host == "" || c.DB.Name == "") {
		return fmt.Errorf("db.dsn or db.host and db.name must be set")
	}
	if c.Crawl.Interval <= 0 {
		return fmt.Errorf("crawl.interval must be > 0")
	}
	if c.Crawl.RetryInterval <= 0 {
		return fmt.Errorf("crawl.retry_interval must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.CommitTimeout <= 0 {
		return fmt.Errorf("crawl.commit_timeout must be > 0")
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.Archive.GCSBucket != "" && c.Archive.LocalDir != "" {
		return fmt.Errorf("archive.gcs_bucket and archive.local_dir are mutually exclusive")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// ConnString returns the Postgres connection string, assembling it from the
// individual db.* fields when no DSN is configured.
func (c DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// DefaultStartTime is the crawl.start_time used when none is configured.
const DefaultStartTime = "2022-01-01T00:00:00Z"

// StartTime parses crawl.start_time. The zero time means no floor.
func (c Config) StartTime() (time.Time, error) {
	raw := strings.TrimSpace(c.Crawl.StartTime)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("crawl.start_time %q must be RFC 3339 or YYYY-MM-DD", raw)
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
