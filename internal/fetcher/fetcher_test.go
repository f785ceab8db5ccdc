package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const page = `<html><body><table><tr><td>ISIN</td><td>IT0006771510</td></tr></table></body></html>`

func newTestHTTPFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scrape.RequestTimeout = 5 * time.Second
	f, err := NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func mustRequest(t *testing.T, rawURL string) *types.Request {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("NewRequest(%q): %v", rawURL, err)
	}
	return req
}

// --- HTTP Fetcher Tests ---

func TestHTTPFetcherPlain(t *testing.T) {
	var gotLang, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := newTestHTTPFetcher(t)
	resp, err := f.Fetch(context.Background(), mustRequest(t, srv.URL+"/listing"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Body) != page {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if !resp.IsSuccess() {
		t.Errorf("expected success, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(gotLang, "it-IT") {
		t.Errorf("expected Italian Accept-Language, got %q", gotLang)
	}
	if gotUA == "" {
		t.Error("expected a User-Agent header")
	}
}

func TestHTTPFetcherCompressed(t *testing.T) {
	tests := []struct {
		encoding string
		write    func(w http.ResponseWriter)
	}{
		{"gzip", func(w http.ResponseWriter) {
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(page))
			_ = gz.Close()
		}},
		{"br", func(w http.ResponseWriter) {
			br := brotli.NewWriter(w)
			_, _ = br.Write([]byte(page))
			_ = br.Close()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tt.encoding)
				tt.write(w)
			}))
			defer srv.Close()

			f := newTestHTTPFetcher(t)
			resp, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if string(resp.Body) != page {
				t.Errorf("expected decoded body, got %q", resp.Body)
			}
		})
	}
}

func TestHTTPFetcherNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestHTTPFetcher(t)
	_, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *types.FetchError, got %T (%v)", err, err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", fe.StatusCode)
	}
}

func TestHTTPFetcherEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestHTTPFetcher(t)
	_, err := f.Fetch(context.Background(), mustRequest(t, srv.URL))
	if !errors.Is(err, types.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestHTTPFetcherRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newTestHTTPFetcher(t)
	req := mustRequest(t, srv.URL)
	req.Timeout = 50 * time.Millisecond

	if _, err := f.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestUserAgentRotation(t *testing.T) {
	f := newTestHTTPFetcher(t)
	f.userAgents = []string{"a", "b"}

	first, second, third := f.nextUserAgent(), f.nextUserAgent(), f.nextUserAgent()
	if first == second {
		t.Errorf("expected rotation, got %q twice", first)
	}
	if first != third {
		t.Errorf("expected cycle of two, got %q then %q", first, third)
	}

	f.userAgents = nil
	if ua := f.nextUserAgent(); !strings.HasPrefix(ua, "CertGoat/") {
		t.Errorf("expected fallback user agent, got %q", ua)
	}
}

// --- File Fetcher Tests ---

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IT0006771510.html")
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFileFetcher(testLogger)
	for _, raw := range []string{path, "file://" + filepath.ToSlash(path)} {
		resp, err := f.Fetch(context.Background(), mustRequest(t, raw))
		if err != nil {
			t.Fatalf("Fetch(%q): %v", raw, err)
		}
		if string(resp.Body) != page {
			t.Errorf("Fetch(%q): unexpected body", raw)
		}
		if !strings.HasPrefix(resp.FinalURL, "file://") {
			t.Errorf("expected file:// final URL, got %q", resp.FinalURL)
		}
	}
}

func TestFileFetcherErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.html")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFileFetcher(testLogger)

	if _, err := f.Fetch(context.Background(), mustRequest(t, empty)); !errors.Is(err, types.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), mustRequest(t, filepath.Join(dir, "missing.html"))); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), mustRequest(t, "https://example.com/x")); !errors.Is(err, types.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, mustRequest(t, empty)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Factory Tests ---

func TestNewFactory(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Fetcher.Type = "file"
	f, err := New(cfg, testLogger)
	if err != nil {
		t.Fatalf("New(file): %v", err)
	}
	if f.Type() != "file" {
		t.Errorf("expected file fetcher, got %q", f.Type())
	}

	cfg.Fetcher.Type = ""
	f, err = New(cfg, testLogger)
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if f.Type() != "http" {
		t.Errorf("expected http fetcher by default, got %q", f.Type())
	}

	cfg.Fetcher.Type = "carrier-pigeon"
	if _, err := New(cfg, testLogger); err == nil {
		t.Error("expected error for unknown fetcher type")
	}
}
