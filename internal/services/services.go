// Package services builds the process-wide handles shared by every crawl
// worker: one HTTP client and one URL store. Both are created once at startup
// and are never mutated by workers.
package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcrawler/internal/config"
	"github.com/JakeFAU/linkcrawler/internal/logging"
	"github.com/JakeFAU/linkcrawler/internal/storage"
	"github.com/JakeFAU/linkcrawler/internal/storage/postgres"
	"github.com/JakeFAU/linkcrawler/internal/storage/sqlite"
)

// Names reported in ServiceInitError.Service.
const (
	ServiceHTTP     = "http"
	ServiceDatabase = "database"
)

const pingTimeout = 10 * time.Second

// ServiceInitError reports which shared service failed to start. It is fatal.
type ServiceInitError struct {
	Service string
	Err     error
}

func (e *ServiceInitError) Error() string {
	return fmt.Sprintf("initialize %s service: %v", e.Service, e.Err)
}

func (e *ServiceInitError) Unwrap() error {
	return e.Err
}

// Services holds the shared HTTP client and URL store.
type Services struct {
	// Collector is the base collector. Callers Clone it per request; clones share
	// its HTTP client and connection pool.
	Collector *colly.Collector
	Store     storage.URLStore

	logger *zap.Logger
}

type options struct {
	transport http.RoundTripper
	store     storage.URLStore
}

// Option customizes New.
type Option func(*options)

// WithTransport replaces the default pooled transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithStore injects an already constructed store instead of opening one from
// cfg.DB. The store is still pinged.
func WithStore(store storage.URLStore) Option {
	return func(o *options) {
		o.store = store
	}
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// New builds the shared services. Any failure is returned as *ServiceInitError
// and no partially built service is left open.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Services, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.Component(logger, "services")

	collector, err := newCollector(cfg, o.transport)
	if err != nil {
		return nil, &ServiceInitError{Service: ServiceHTTP, Err: err}
	}
	log.Debug("http client ready", zap.Duration("timeout", cfg.HTTPTimeout()))

	store := o.store
	if store == nil {
		store, err = openStore(ctx, cfg.DB)
		if err != nil {
			return nil, &ServiceInitError{Service: ServiceDatabase, Err: err}
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, &ServiceInitError{Service: ServiceDatabase, Err: err}
	}
	if cfg.DB.AutoMigrate {
		if s, ok := store.(schemaEnsurer); ok {
			if err := s.EnsureSchema(pingCtx); err != nil {
				store.Close()
				return nil, &ServiceInitError{Service: ServiceDatabase, Err: err}
			}
		}
	}
	log.Info("database ready", zap.String("driver", cfg.DB.Driver), zap.String("table", cfg.DB.Table))

	return &Services{
		Collector: collector,
		Store:     store,
		logger:    log,
	}, nil
}

// Close releases the store. The HTTP client holds no resources beyond idle
// connections, which are dropped with the transport.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Store != nil {
		s.Store.Close()
	}
	s.logger.Debug("services closed")
}

func newCollector(cfg config.Config, transport http.RoundTripper) (*colly.Collector, error) {
	if cfg.HTTPTimeout() <= 0 {
		return nil, fmt.Errorf("http timeout must be > 0")
	}
	c := colly.NewCollector(
		colly.UserAgent(cfg.Crawler.UserAgent),
		colly.MaxBodySize(cfg.HTTP.MaxBodyBytes),
		colly.AllowURLRevisit(),
	)
	// Status handling happens in the crawler, so every response reaches OnResponse.
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if transport == nil {
		transport = newHTTPTransport(cfg.Crawler.Concurrency, cfg.HTTPTimeout())
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.HTTPTimeout())
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(1, cfg.Crawler.Concurrency),
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}
	return c, nil
}

func newHTTPTransport(concurrency int, timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       max(1, concurrency) * 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

func openStore(ctx context.Context, cfg config.DBConfig) (storage.URLStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN, cfg.Table)
	case config.DriverPostgres, "":
		return postgres.NewURLStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
