package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  url: https://example.com/start
  restrict_domain: true
  seconds: 5
  concurrency: 6
  batch_size: 12
  grace_period: 500ms
  user_agent: real-agent
http:
  timeout_seconds: 45
  max_body_bytes: 2048
db:
  driver: sqlite
  dsn: /tmp/crawl.db
  table: crawl_urls
  auto_migrate: false
persist:
  max_attempts: 5
  backoff_initial_ms: 10
  backoff_max_ms: 50
metrics:
  addr: 127.0.0.1:9100
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawler.URL != "https://example.com/start" || !cfg.Crawler.RestrictDomain {
		t.Fatalf("expected crawler seed overrides, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.BatchSize != 12 {
		t.Fatalf("expected concurrency overrides, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.GracePeriod != 500*time.Millisecond {
		t.Fatalf("expected grace period 500ms, got %v", cfg.Crawler.GracePeriod)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.Table != "crawl_urls" || cfg.DB.AutoMigrate {
		t.Fatalf("expected db overrides, got %+v", cfg.DB)
	}
	if cfg.Persist.MaxAttempts != 5 {
		t.Fatalf("expected persist overrides, got %+v", cfg.Persist)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" || cfg.Logging.Development {
		t.Fatalf("expected metrics/logging overrides, got %+v %+v", cfg.Metrics, cfg.Logging)
	}
	if got := cfg.Deadline(); got != 5*time.Second {
		t.Fatalf("expected deadline 5s, got %v", got)
	}
	if got := cfg.HTTPTimeout(); got != 45*time.Second {
		t.Fatalf("expected http timeout 45s, got %v", got)
	}
}

func TestLoadDefaultsWithRequiredValues(t *testing.T) {
	v := NewViper()
	v.Set("crawler.url", "https://example.com")
	v.Set("db.dsn", "postgres://localhost/crawl")

	cfg, err := LoadFrom(v, "")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Crawler.Seconds != 30 || cfg.Crawler.RestrictDomain {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.Table != "urls" || !cfg.DB.AutoMigrate {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.Crawler.GracePeriod != 2*time.Second {
		t.Fatalf("unexpected grace default: %v", cfg.Crawler.GracePeriod)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_URL", "https://env.example.com")
	t.Setenv("CRAWLER_DB_DSN", "postgres://env/crawl")
	t.Setenv("CRAWLER_CRAWLER_SECONDS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.URL != "https://env.example.com" || cfg.Crawler.Seconds != 7 {
		t.Fatalf("expected env overrides, got %+v", cfg.Crawler)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Crawler: CrawlerConfig{URL: "https://a.com", Seconds: 1, Concurrency: 1, BatchSize: 1},
			HTTP:    HTTPConfig{TimeoutSeconds: 1, MaxBodyBytes: 1},
			DB:      DBConfig{Driver: DriverPostgres, DSN: "postgres://x"},
			Persist: PersistConfig{MaxAttempts: 1, BackoffInitialMs: 1, BackoffMaxMs: 2},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Crawler.URL = "" }, "crawler.url is required"},
		{"relative url", func(c *Config) { c.Crawler.URL = "/path" }, "absolute http(s) URL"},
		{"ftp url", func(c *Config) { c.Crawler.URL = "ftp://a.com" }, "absolute http(s) URL"},
		{"zero seconds", func(c *Config) { c.Crawler.Seconds = 0 }, "crawler.seconds"},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"zero batch", func(c *Config) { c.Crawler.BatchSize = 0 }, "crawler.batch_size"},
		{"negative grace", func(c *Config) { c.Crawler.GracePeriod = -time.Second }, "crawler.grace_period"},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"zero body", func(c *Config) { c.HTTP.MaxBodyBytes = 0 }, "http.max_body_bytes"},
		{"bad driver", func(c *Config) { c.DB.Driver = "mysql" }, "db.driver"},
		{"missing dsn", func(c *Config) { c.DB.DSN = "" }, "db.dsn"},
		{"zero attempts", func(c *Config) { c.Persist.MaxAttempts = 0 }, "persist.max_attempts"},
		{"inverted backoff", func(c *Config) { c.Persist.BackoffMaxMs = 0 }, "persist backoff"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tc.want)
			}
		})
	}
}
