package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesFetched.Add(3)
	m.ISINsRejected.Add(1)
	m.RecordsStored.Add(2)

	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"certgoat_pages_fetched_total 3",
		"certgoat_isins_rejected_total 1",
		"certgoat_records_stored_total 2",
		"# TYPE certgoat_records_failed_total counter",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in exposition:\n%s", want, body)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewMetrics(testLogger).Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RecordsExcluded.Add(4)

	s := m.Snapshot()
	if s["records_excluded"] != 4 {
		t.Errorf("expected 4 excluded, got %d", s["records_excluded"])
	}
	if len(s) != len(m.collect()) {
		t.Errorf("snapshot has %d keys, exposition %d metrics", len(s), len(m.collect()))
	}
}
