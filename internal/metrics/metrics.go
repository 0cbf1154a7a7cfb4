package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modelcat/internal/config"
)

// Manager accumulates counters and writes them in Prometheus textfile
// format. A nil Manager is valid and does nothing, so call sites never need
// to guard.
type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	searchesTotal int64
	liveFetches   int64
	cacheHits     int64
	fallbacks     int64
	downloadsDone int64
}

func New(cfg *config.Config) *Manager {
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return nil
	}
	p := cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	return &Manager{path: p}
}

func (m *Manager) IncSearches() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.searchesTotal++
	m.mu.Unlock()
}

func (m *Manager) IncLiveFetches() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.liveFetches++
	m.mu.Unlock()
}

func (m *Manager) IncCacheHits() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *Manager) IncFallbacks() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.fallbacks++
	m.mu.Unlock()
}

func (m *Manager) IncDownloadsCompleted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.downloadsDone++
	m.mu.Unlock()
}

// Write renders the textfile atomically (temp file + rename).
func (m *Manager) Write() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	fmt.Fprintf(f, "# HELP modelcat_searches_total Total searches issued.\n")
	fmt.Fprintf(f, "# TYPE modelcat_searches_total counter\n")
	fmt.Fprintf(f, "modelcat_searches_total %d\n", m.searchesTotal)

	fmt.Fprintf(f, "# HELP modelcat_live_fetches_total Total live hub fetches.\n")
	fmt.Fprintf(f, "# TYPE modelcat_live_fetches_total counter\n")
	fmt.Fprintf(f, "modelcat_live_fetches_total %d\n", m.liveFetches)

	fmt.Fprintf(f, "# HELP modelcat_cache_hits_total Total searches served from cache.\n")
	fmt.Fprintf(f, "# TYPE modelcat_cache_hits_total counter\n")
	fmt.Fprintf(f, "modelcat_cache_hits_total %d\n", m.cacheHits)

	fmt.Fprintf(f, "# HELP modelcat_fallbacks_total Total searches that fell back to cached or seed data.\n")
	fmt.Fprintf(f, "# TYPE modelcat_fallbacks_total counter\n")
	fmt.Fprintf(f, "modelcat_fallbacks_total %d\n", m.fallbacks)

	fmt.Fprintf(f, "# HELP modelcat_downloads_completed_total Total downloads completed.\n")
	fmt.Fprintf(f, "# TYPE modelcat_downloads_completed_total counter\n")
	fmt.Fprintf(f, "modelcat_downloads_completed_total %d\n", m.downloadsDone)

	fmt.Fprintf(f, "# HELP modelcat_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE modelcat_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "modelcat_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}
