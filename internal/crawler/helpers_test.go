package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/linkcrawler/internal/config"
	"github.com/JakeFAU/linkcrawler/internal/services"
	"github.com/JakeFAU/linkcrawler/internal/storage"
)

// memStore is an in-memory URLStore with the same duplicate semantics as the
// SQL stores.
type memStore struct {
	mu   sync.Mutex
	rows map[string]int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]int)}
}

func (m *memStore) InsertURL(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[address]; ok {
		return fmt.Errorf("insert url %q: %w", address, storage.ErrDuplicate)
	}
	m.rows[address] = 1
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() {}

func (m *memStore) addresses() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

func newTestServices(t *testing.T, transport http.RoundTripper, store storage.URLStore) *services.Services {
	t.Helper()
	cfg := config.Config{
		Crawler: config.CrawlerConfig{Concurrency: 4, UserAgent: "linkcrawler-test"},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5, MaxBodyBytes: 1 << 20},
		DB:      config.DBConfig{Driver: config.DriverPostgres},
	}
	svc, err := services.New(
		context.Background(),
		cfg,
		zaptest.NewLogger(t),
		services.WithTransport(transport),
		services.WithStore(store),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// page writes an HTML document containing one anchor per href.
func page(hrefs ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>")
		for _, href := range hrefs {
			fmt.Fprintf(w, `<a href="%s">link</a>`, href)
		}
		fmt.Fprint(w, "</body></html>")
	}
}
