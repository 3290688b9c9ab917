package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/linkcrawler/internal/clock/system"
	"github.com/JakeFAU/linkcrawler/internal/frontier"
	"github.com/JakeFAU/linkcrawler/internal/id/uuid"
	"github.com/JakeFAU/linkcrawler/internal/logging"
	"github.com/JakeFAU/linkcrawler/internal/metrics"
	"github.com/JakeFAU/linkcrawler/internal/services"
)

// State is the crawler's lifecycle state.
type State int32

// Crawler states. Running is the state from construction until the deadline
// or exhaustion.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultConcurrency = 16
	defaultBatchSize   = 32
	defaultGrace       = 2 * time.Second
)

// Config holds the settings for one crawl run.
type Config struct {
	Seed           string
	RestrictDomain bool
	Deadline       time.Duration
	Concurrency    int
	BatchSize      int
	GracePeriod    time.Duration
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock stamps the start and end of a run.
type Clock interface {
	Now() time.Time
}

// Summary is reported once the crawler reaches StateStopped.
type Summary struct {
	RunID         string
	Seed          string
	Visited       int
	Persisted     int64
	PersistFailed int64
	FetchFailed   int64
	Discovered    int64
	StartedAt     time.Time
	FinishedAt    time.Time
	Elapsed       time.Duration
	// Exhausted is true when the frontier emptied before the deadline.
	Exhausted bool
}

// Crawler drives Links off a shared Frontier with bounded concurrency.
type Crawler struct {
	cfg      Config
	seed     string
	seedURL  *url.URL
	svc      *services.Services
	frontier *frontier.Frontier
	retry    RetryPolicy
	ids      IDGenerator
	clock    Clock
	logger   *zap.Logger

	started atomic.Bool
	state   atomic.Int32

	inFlight      atomic.Int64
	persisted     atomic.Int64
	persistFailed atomic.Int64
	fetchFailed   atomic.Int64
	discovered    atomic.Int64

	wake chan struct{}
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithRetryPolicy replaces the default persist retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Crawler) {
		c.retry = p
	}
}

// WithIDGenerator replaces the UUIDv7 run ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Crawler) {
		c.ids = g
	}
}

// WithClock replaces the UTC system clock.
func WithClock(clk Clock) Option {
	return func(c *Crawler) {
		c.clock = clk
	}
}

// WithFrontier supplies the frontier, letting callers inspect it after the run.
func WithFrontier(f *frontier.Frontier) Option {
	return func(c *Crawler) {
		c.frontier = f
	}
}

// New validates cfg and builds a Crawler. The seed must be an absolute http or
// https URL.
func New(cfg Config, svc *services.Services, opts ...Option) (*Crawler, error) {
	seed, err := NormalizeURL(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	seedURL, err := url.Parse(seed)
	if err != nil || seedURL.Host == "" || (seedURL.Scheme != "http" && seedURL.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, cfg.Seed)
	}
	if svc == nil {
		return nil, fmt.Errorf("services are required")
	}
	if cfg.Deadline <= 0 {
		return nil, fmt.Errorf("deadline must be > 0")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = defaultGrace
	}

	c := &Crawler{
		cfg:     cfg,
		seed:    seed,
		seedURL: seedURL,
		svc:     svc,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.frontier == nil {
		c.frontier = frontier.New()
	}
	if c.retry == nil {
		c.retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if c.ids == nil {
		c.ids = uuid.New()
	}
	if c.clock == nil {
		c.clock = system.New(system.WithPrecision(time.Millisecond))
	}
	c.logger = logging.Component(c.logger, "crawler")
	metrics.Init()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Run crawls until the frontier is exhausted or the deadline passes, then
// waits up to the grace period for in-flight work before cancelling it. Per-link
// failures are logged and never returned. Run may be called once.
func (c *Crawler) Run(ctx context.Context) (Summary, error) {
	if !c.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRun
	}
	start := time.Now()
	startedAt := c.clock.Now()
	runID, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("run id unavailable", zap.Error(err))
	}
	log := c.logger.With(zap.String("run_id", runID))

	deadlineCtx, cancelDeadline := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancelDeadline()
	// Work outlives the deadline by up to the grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	c.frontier.Seed(c.seed)
	log.Info("crawl started",
		zap.String("seed", c.seed),
		zap.Bool("restrict_domain", c.cfg.RestrictDomain),
		zap.Duration("deadline", c.cfg.Deadline),
		zap.Int("concurrency", c.cfg.Concurrency),
	)

	var wg sync.WaitGroup
	exhausted := c.loop(deadlineCtx, workCtx, log, &wg)
	if !exhausted {
		c.setState(StateDraining, log)
		c.drain(&wg, cancelWork, log)
	}
	wg.Wait()
	c.setState(StateStopped, log)

	summary := Summary{
		RunID:         runID,
		Seed:          c.seed,
		Visited:       c.frontier.VisitedLen(),
		Persisted:     c.persisted.Load(),
		PersistFailed: c.persistFailed.Load(),
		FetchFailed:   c.fetchFailed.Load(),
		Discovered:    c.discovered.Load(),
		StartedAt:     startedAt,
		FinishedAt:    c.clock.Now(),
		Elapsed:       time.Since(start),
		Exhausted:     exhausted,
	}
	log.Info("crawl stopped",
		zap.Int("visited", summary.Visited),
		zap.Int64("persisted", summary.Persisted),
		zap.Int64("fetch_failed", summary.FetchFailed),
		zap.Int64("persist_failed", summary.PersistFailed),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Bool("exhausted", summary.Exhausted),
	)
	return summary, nil
}

// loop dispatches work until exhaustion (true) or the deadline (false).
func (c *Crawler) loop(deadlineCtx, workCtx context.Context, log *zap.Logger, wg *sync.WaitGroup) bool {
	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	for {
		if deadlineCtx.Err() != nil {
			return false
		}

		dispatched := 0
		for dispatched < c.cfg.BatchSize && sem.TryAcquire(1) {
			address, ok := c.frontier.TakeNext()
			if !ok {
				sem.Release(1)
				break
			}
			dispatched++
			c.inFlight.Add(1)
			wg.Add(1)
			go func() {
				defer func() {
					sem.Release(1)
					c.inFlight.Add(-1)
					wg.Done()
					c.signal()
				}()
				c.process(workCtx, address, log)
			}()
		}
		if dispatched > 0 {
			continue
		}

		if c.inFlight.Load() == 0 {
			// Workers offer links before leaving inFlight, so an empty queue
			// here is final.
			if c.frontier.Len() == 0 {
				return true
			}
			continue
		}
		select {
		case <-c.wake:
		case <-deadlineCtx.Done():
			return false
		}
	}
}

// drain waits for in-flight work, cancelling it once the grace period ends.
func (c *Crawler) drain(wg *sync.WaitGroup, cancelWork context.CancelFunc, log *zap.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.cfg.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warn("grace period elapsed, cancelling in-flight work",
			zap.Int64("in_flight", c.inFlight.Load()))
		cancelWork()
		<-done
	}
}

func (c *Crawler) process(ctx context.Context, address string, log *zap.Logger) {
	metrics.IncInFlight()
	defer metrics.DecInFlight()
	log = log.With(zap.String("url", address))

	link := NewLink(address)
	html, err := link.Fetch(ctx, c.svc)
	if err != nil {
		c.fetchFailed.Add(1)
		kind := metrics.PageNetwork
		var fe *FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind.String()
		}
		metrics.ObservePage(kind)
		log.Warn("fetch failed", zap.Error(err))
		return
	}
	metrics.ObservePage(metrics.PageOK)

	links := link.Extract(html)
	c.persist(ctx, link, log)
	added := c.enqueue(links)
	log.Debug("page processed", zap.Int("links", len(links)), zap.Int("queued", added))
}

// persist writes the link, retrying connection failures per the retry policy.
// A conflict counts as persisted.
func (c *Crawler) persist(ctx context.Context, link *Link, log *zap.Logger) {
	for attempt := 1; ; attempt++ {
		err := link.Persist(ctx, c.svc)
		switch {
		case err == nil:
			c.persisted.Add(1)
			metrics.ObservePersist(metrics.PersistInserted)
			return
		case isPersistKind(err, PersistConflict):
			c.persisted.Add(1)
			metrics.ObservePersist(metrics.PersistDuplicate)
			log.Debug("address already stored")
			return
		case ctx.Err() != nil:
			c.abandonPersist(ctx, log)
			return
		case !c.retry.ShouldRetry(err, attempt):
			c.persistFailed.Add(1)
			metrics.ObservePersist(metrics.PersistFailed)
			log.Error("persist failed", zap.Int("attempt", attempt), zap.Error(err))
			return
		}

		wait := c.retry.Backoff(attempt)
		metrics.ObservePersistRetry()
		log.Warn("persist failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.abandonPersist(ctx, log)
			return
		case <-timer.C:
		}
	}
}

// abandonPersist records a write given up because work was cancelled.
func (c *Crawler) abandonPersist(ctx context.Context, log *zap.Logger) {
	c.persistFailed.Add(1)
	metrics.ObservePersist(metrics.PersistFailed)
	log.Warn("persist abandoned", zap.Error(ctx.Err()))
}

// enqueue offers every link that passes the domain filter and returns how many
// were new to the frontier.
func (c *Crawler) enqueue(links []string) int {
	added := 0
	for _, address := range links {
		if !c.admits(address) {
			continue
		}
		if c.frontier.Offer(address) {
			added++
		}
	}
	c.discovered.Add(int64(added))
	metrics.ObserveDiscovered(added)
	return added
}

// admits applies the optional domain restriction.
func (c *Crawler) admits(address string) bool {
	if !c.cfg.RestrictDomain {
		return true
	}
	u, err := url.Parse(address)
	if err != nil {
		return false
	}
	return sameHost(u, c.seedURL)
}

func (c *Crawler) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Crawler) setState(s State, log *zap.Logger) {
	c.state.Store(int32(s))
	log.Debug("state changed", zap.Stringer("state", s))
}
