// Package certgoat provides a public SDK for embedding CertGoat as a library.
//
// Example usage:
//
//	s, err := certgoat.New(
//	    certgoat.WithDelay(2*time.Second),
//	    certgoat.WithDetailTemplate("https://www.example.it/scheda/{isin}"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	out, err := s.Scrape(ctx, "https://www.example.it/certificati?page=1")
package certgoat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/classify"
	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/engine"
	"github.com/IshaanNene/CertGoat/internal/fetcher"
	"github.com/IshaanNene/CertGoat/internal/locale"
	"github.com/IshaanNene/CertGoat/internal/parser"
	"github.com/IshaanNene/CertGoat/internal/pipeline"
	"github.com/IshaanNene/CertGoat/internal/storage"
)

// Public names for the record types.
type (
	Record        = certificate.Record
	UnderlyingRef = certificate.UnderlyingRef
	Output        = certificate.Output
	Metadata      = certificate.Metadata
	Category      = classify.Category
)

// Option configures a Scraper.
type Option func(*settings)

type settings struct {
	cfg    *config.Config
	logger *slog.Logger
}

// WithDelay sets the politeness delay between requests.
func WithDelay(d time.Duration) Option {
	return func(s *settings) { s.cfg.Scrape.Delay = d }
}

// WithDetailTemplate sets the detail page URL template; "{isin}" is replaced
// with the ISIN.
func WithDetailTemplate(tmpl string) Option {
	return func(s *settings) { s.cfg.Scrape.DetailURLTemplate = tmpl }
}

// WithBrowser renders pages with headless Chromium instead of plain HTTP.
func WithBrowser() Option {
	return func(s *settings) { s.cfg.Fetcher.Type = "browser" }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.cfg.Scrape.UserAgents = []string{ua} }
}

// WithSkipDetails only scans listing pages.
func WithSkipDetails() Option {
	return func(s *settings) { s.cfg.Scrape.SkipDetails = true }
}

// WithExcludeSingleStock drops certificates on single equities.
func WithExcludeSingleStock() Option {
	return func(s *settings) { s.cfg.Scrape.ExcludeSingleStock = true }
}

// WithKeepZero keeps literal zero values instead of treating them as absent.
func WithKeepZero() Option {
	return func(s *settings) { s.cfg.Normalize.KeepZero = true }
}

// WithRules loads classification tables from a YAML, JSON or TOML file.
func WithRules(path string) Option {
	return func(s *settings) { s.cfg.Rules.Path = path }
}

// WithOutput sets the directory and backends used by Save. Formats are any of
// json, jsonl, csv, xlsx and sqlite.
func WithOutput(dir string, formats ...string) Option {
	return func(s *settings) {
		s.cfg.Storage.OutputPath = dir
		s.cfg.Storage.SQLitePath = filepath.Join(dir, s.cfg.Storage.Filename+".db")
		if len(formats) > 0 {
			s.cfg.Storage.Types = formats
		}
	}
}

// WithLogger sets the logger. The default logs warnings to stderr.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// Scraper is the high-level API for using CertGoat as a library.
type Scraper struct {
	cfg        *config.Config
	logger     *slog.Logger
	fetcher    fetcher.Fetcher
	classifier *classify.Classifier
	builder    *certificate.Builder
}

// New creates a Scraper with the given options.
func New(opts ...Option) (*Scraper, error) {
	s := &settings{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if err := config.Validate(s.cfg); err != nil {
		return nil, err
	}

	rules := classify.DefaultRules()
	if s.cfg.Rules.Path != "" {
		loaded, err := classify.LoadRules(s.cfg.Rules.Path)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	classifier := classify.New(rules, s.logger, classify.WithClosedWorld(s.cfg.Rules.ClosedWorld))

	f, err := fetcher.New(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	return &Scraper{
		cfg:        s.cfg,
		logger:     s.logger,
		fetcher:    f,
		classifier: classifier,
		builder:    certificate.NewBuilder(classifier, locale.Parser{KeepZero: s.cfg.Normalize.KeepZero}, s.logger),
	}, nil
}

// Scrape scans the listing pages, enriches every certificate from its detail
// page and returns the batch document. On cancellation the partial document is
// returned together with ctx's error.
func (s *Scraper) Scrape(ctx context.Context, listingURLs ...string) (*Output, error) {
	for _, u := range listingURLs {
		if err := config.ValidateURL(u); err != nil {
			return nil, err
		}
	}

	pipe := pipeline.NewDefault(s.cfg.Scrape.ExcludeSingleStock, s.classifier, s.logger)
	eng := engine.New(s.cfg, s.fetcher, s.builder, pipe, nil, s.logger)

	result, err := eng.Run(ctx, listingURLs)
	return result.Output(), err
}

// ParseDetail normalizes one saved detail page into an enriched record.
func (s *Scraper) ParseDetail(isin string, html []byte) (*Record, error) {
	rec, err := s.builder.Build(isin, nil, nil)
	if err != nil {
		return nil, err
	}

	doc, err := parser.NewDocument(html, "")
	if err != nil {
		return nil, err
	}
	barrier, _ := doc.Barrier()
	s.builder.Enrich(rec, doc.ExtractFields(), doc.Underlyings(), barrier)
	return rec, nil
}

// Classify returns the underlying category for a free-text name.
func (s *Scraper) Classify(text string) Category {
	return s.classifier.Classify(text)
}

// Save writes out to the configured backends.
func (s *Scraper) Save(out *Output) error {
	store, err := storage.New(s.cfg, s.logger)
	if err != nil {
		return err
	}
	if err := store.Store(out); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

// Close releases the fetcher.
func (s *Scraper) Close() error {
	return s.fetcher.Close()
}
