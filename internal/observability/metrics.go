// Package observability exposes run counters in the Prometheus text format.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks the counters of a scrape run.
type Metrics struct {
	// Page metrics
	PagesFetched    atomic.Int64
	PagesFailed     atomic.Int64
	BytesDownloaded atomic.Int64

	// ISIN metrics
	ISINsDiscovered atomic.Int64
	ISINsRejected   atomic.Int64
	ISINsDuplicated atomic.Int64

	// Record metrics
	RecordsEnriched atomic.Int64
	RecordsFailed   atomic.Int64
	RecordsExcluded atomic.Int64
	RecordsStored   atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	value int64
}

func (m *Metrics) collect() []metric {
	return []metric{
		{"certgoat_pages_fetched_total", "Listing and detail pages fetched", m.PagesFetched.Load()},
		{"certgoat_pages_failed_total", "Page fetches that failed", m.PagesFailed.Load()},
		{"certgoat_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"certgoat_isins_discovered_total", "Distinct ISINs discovered on listing pages", m.ISINsDiscovered.Load()},
		{"certgoat_isins_rejected_total", "Malformed ISINs discarded", m.ISINsRejected.Load()},
		{"certgoat_isins_duplicated_total", "Repeated ISIN sightings merged", m.ISINsDuplicated.Load()},
		{"certgoat_records_enriched_total", "Records enriched from a detail page", m.RecordsEnriched.Load()},
		{"certgoat_records_failed_total", "Records annotated with an error", m.RecordsFailed.Load()},
		{"certgoat_records_excluded_total", "Records dropped by the pipeline", m.RecordsExcluded.Load()},
		{"certgoat_records_stored_total", "Records written to storage", m.RecordsStored.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.collect() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns a mux serving the metrics at path and a /health probe.
func (m *Metrics) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer starts the metrics HTTP server in the background. The returned
// shutdown function stops it.
func (m *Metrics) StartServer(port int, path string) func(context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv.Shutdown
}

// Snapshot returns all metrics as a map keyed by short name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":    m.PagesFetched.Load(),
		"pages_failed":     m.PagesFailed.Load(),
		"bytes_downloaded": m.BytesDownloaded.Load(),
		"isins_discovered": m.ISINsDiscovered.Load(),
		"isins_rejected":   m.ISINsRejected.Load(),
		"isins_duplicated": m.ISINsDuplicated.Load(),
		"records_enriched": m.RecordsEnriched.Load(),
		"records_failed":   m.RecordsFailed.Load(),
		"records_excluded": m.RecordsExcluded.Load(),
		"records_stored":   m.RecordsStored.Load(),
	}
}

// LogSummary writes the counters at info level.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	m.logger.Info("run summary",
		"pages_fetched", s["pages_fetched"],
		"pages_failed", s["pages_failed"],
		"isins_discovered", s["isins_discovered"],
		"isins_rejected", s["isins_rejected"],
		"records_enriched", s["records_enriched"],
		"records_failed", s["records_failed"],
		"records_excluded", s["records_excluded"],
		"records_stored", s["records_stored"],
	)
}
