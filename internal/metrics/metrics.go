// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page outcomes recorded by ObservePage.
const (
	PageOK      = "ok"
	PageNetwork = "network"
	PageStatus  = "status"
	PageDecode  = "decode"
)

// Persist outcomes recorded by ObservePersist.
const (
	PersistInserted  = "inserted"
	PersistDuplicate = "duplicate"
	PersistFailed    = "failed"
)

var (
	pagesTotal          *prometheus.CounterVec
	linksDiscovered     prometheus.Counter
	persistTotal        *prometheus.CounterVec
	persistRetriesTotal prometheus.Counter
	inFlight            prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrawler_pages_total",
				Help: "Total number of pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		linksDiscovered = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcrawler_links_discovered_total",
				Help: "Total number of new links admitted to the frontier.",
			},
		)

		persistTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcrawler_persist_total",
				Help: "Total number of URL store writes, labeled by result.",
			},
			[]string{"result"},
		)

		persistRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcrawler_persist_retries_total",
				Help: "Total number of URL store writes retried after a transient failure.",
			},
		)

		inFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linkcrawler_in_flight",
				Help: "Number of links currently being fetched, extracted or persisted.",
			},
		)
	})
}

// ObservePage increments the page counter for the given outcome.
func ObservePage(status string) {
	pagesTotal.WithLabelValues(status).Inc()
}

// ObserveDiscovered adds n newly admitted links.
func ObserveDiscovered(n int) {
	if n > 0 {
		linksDiscovered.Add(float64(n))
	}
}

// ObservePersist increments the persist counter for the given result.
func ObservePersist(result string) {
	persistTotal.WithLabelValues(result).Inc()
}

// ObservePersistRetry increments the persist retry counter.
func ObservePersistRetry() {
	persistRetriesTotal.Inc()
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	inFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	inFlight.Dec()
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewRouter mounts /metrics and /healthz.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewServer builds the metrics HTTP server for addr. The caller owns
// ListenAndServe and Shutdown.
func NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
