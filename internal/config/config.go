// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported values for db.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Persist PersistConfig `mapstructure:"persist"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs the crawl loop.
type CrawlerConfig struct {
	URL            string        `mapstructure:"url"`
	RestrictDomain bool          `mapstructure:"restrict_domain"`
	Seconds        int           `mapstructure:"seconds"`
	Concurrency    int           `mapstructure:"concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// DBConfig controls access to the URL store.
type DBConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// PersistConfig bounds retries of transient store failures.
type PersistConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// NewViper returns a Viper instance with defaults and CRAWLER_* environment
// overrides applied. Callers may bind flags onto it before calling LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom reads the optional config file at path into v and unmarshals the result.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("crawler.url", "")
	v.SetDefault("crawler.restrict_domain", false)
	v.SetDefault("crawler.seconds", 30)
	v.SetDefault("crawler.concurrency", 16)
	v.SetDefault("crawler.batch_size", 32)
	v.SetDefault("crawler.grace_period", "2s")
	v.SetDefault("crawler.user_agent", "linkcrawler/0.1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "urls")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("persist.max_attempts", 3)
	v.SetDefault("persist.backoff_initial_ms", 100)
	v.SetDefault("persist.backoff_max_ms", 2000)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.URL == "" {
		return fmt.Errorf("crawler.url is required")
	}
	seed, err := url.Parse(c.Crawler.URL)
	if err != nil || seed.Host == "" || (seed.Scheme != "http" && seed.Scheme != "https") {
		return fmt.Errorf("crawler.url must be an absolute http(s) URL, got %q", c.Crawler.URL)
	}
	if c.Crawler.Seconds <= 0 {
		return fmt.Errorf("crawler.seconds must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.GracePeriod < 0 {
		return fmt.Errorf("crawler.grace_period must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Persist.MaxAttempts <= 0 {
		return fmt.Errorf("persist.max_attempts must be > 0")
	}
	if c.Persist.BackoffInitialMs < 0 || c.Persist.BackoffMaxMs < c.Persist.BackoffInitialMs {
		return fmt.Errorf("persist backoff must satisfy 0 <= backoff_initial_ms <= backoff_max_ms")
	}
	return nil
}

// Deadline converts crawler.seconds into the crawl's wall-clock budget.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.Crawler.Seconds) * time.Second
}

// HTTPTimeout is the per-request timeout of the shared client.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
