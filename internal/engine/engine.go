// Package engine drives a scrape run: listing pages are scanned for ISINs,
// then each discovered certificate is enriched from its detail page, one at a
// time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/observability"
	"github.com/IshaanNene/CertGoat/internal/parser"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// Fetcher is the interface for all fetcher implementations.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
}

// Pipeline is the interface for the record processing pipeline.
type Pipeline interface {
	Process(rec *certificate.Record) (*certificate.Record, error)
}

// Result is the outcome of a run. Batch holds every discovered certificate
// that survived the pipeline.
type Result struct {
	Batch    *certificate.Batch
	Metadata certificate.Metadata
}

// Output renders the batch document.
func (r *Result) Output() *certificate.Output {
	return r.Batch.Output(r.Metadata)
}

// Engine is the scrape orchestrator. It is strictly sequential: a detail page
// is fetched and parsed completely before the next one is requested.
type Engine struct {
	cfg      *config.Config
	fetcher  Fetcher
	parser   *parser.Parser
	builder  *certificate.Builder
	pipeline Pipeline
	metrics  *observability.Metrics
	dedup    *Deduplicator
	logger   *slog.Logger

	fetches int
}

// New creates an Engine. A nil pipeline skips post-processing; a nil metrics
// gets a private instance.
func New(cfg *config.Config, f Fetcher, builder *certificate.Builder, p Pipeline, m *observability.Metrics, logger *slog.Logger) *Engine {
	if m == nil {
		m = observability.NewMetrics(logger)
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  f,
		parser:   parser.New(logger),
		builder:  builder,
		pipeline: p,
		metrics:  m,
		dedup:    NewDeduplicator(),
		logger:   logger.With("component", "engine"),
	}
}

// Metrics returns the run counters.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}

// Run scans the listing pages, enriches every discovered record and runs the
// pipeline. Individual page or record failures never abort the run; the only
// error returned is ctx's, and the partial result is returned with it.
func (e *Engine) Run(ctx context.Context, listingURLs []string) (*Result, error) {
	start := time.Now()
	batch := certificate.NewBatch().WithDerive(e.builder.Rederive)
	meta := certificate.Metadata{
		RulesVersion: e.builder.RulesVersion(),
		Sources:      []string{},
	}

	e.logger.Info("run starting",
		"listings", len(listingURLs),
		"skip_details", e.cfg.Scrape.SkipDetails,
		"delay", e.cfg.Scrape.Delay,
	)

	var runErr error
	for _, raw := range listingURLs {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if !e.dedup.Visit(raw) {
			e.logger.Debug("listing already scanned", "url", raw)
			continue
		}
		meta.Sources = append(meta.Sources, raw)
		meta.RejectedISINs += e.scanListing(ctx, raw, batch)
	}
	e.metrics.ISINsDuplicated.Store(int64(batch.Duplicates()))

	if runErr == nil && !e.cfg.Scrape.SkipDetails {
		runErr = e.enrichAll(ctx, batch)
	}

	meta.Excluded = e.process(batch)
	meta.Timestamp = time.Now().UTC()

	e.logger.Info("run finished",
		"certificates", batch.Len(),
		"rejected", meta.RejectedISINs,
		"excluded", meta.Excluded,
		"duration", time.Since(start),
	)

	return &Result{Batch: batch, Metadata: meta}, runErr
}

// scanListing adds one record per listing row and returns how many candidate
// ISINs were malformed.
func (e *Engine) scanListing(ctx context.Context, rawURL string, batch *certificate.Batch) int {
	logger := e.logger.With("listing", rawURL)

	req, err := types.NewRequest(rawURL)
	if err != nil {
		logger.Warn("invalid listing URL", "error", err)
		return 0
	}
	req.Tag = types.TagListing
	req.WaitSelector = e.cfg.Scrape.WaitSelector
	req.Timeout = e.cfg.Scrape.RequestTimeout

	resp, err := e.fetch(ctx, req)
	if err != nil {
		logger.Warn("listing fetch failed", "error", err)
		return 0
	}

	doc, err := e.parser.Parse(resp)
	if err != nil {
		logger.Warn("listing parse failed", "error", err)
		return 0
	}

	type candidate struct {
		isin   string
		fields map[string]string
		link   string
	}
	var candidates []candidate
	for _, row := range doc.ListingRows() {
		isin := row.ISIN()
		if isin == "" {
			continue
		}
		candidates = append(candidates, candidate{isin, row.ExtractFields(), row.DetailLink(isin)})
	}
	// Pages without a usable table still list ISINs in links or text.
	if len(candidates) == 0 {
		for _, isin := range doc.ISINs() {
			candidates = append(candidates, candidate{isin: isin})
		}
	}
	if len(candidates) == 0 {
		logger.Warn("no certificates on listing page", "error", types.ErrNoListing)
		return 0
	}

	rejected, added := 0, 0
	for _, c := range candidates {
		rec, err := e.builder.Build(c.isin, c.fields, nil)
		if err != nil {
			rejected++
			e.metrics.ISINsRejected.Add(1)
			logger.Debug("candidate discarded", "isin", c.isin, "error", err)
			continue
		}
		rec.Source = rawURL
		rec.DetailURL = certificate.NullString(c.link)

		if batch.Add(rec) {
			added++
			e.metrics.ISINsDiscovered.Add(1)
		}
	}

	logger.Info("listing scanned", "candidates", len(candidates), "new", added, "rejected", rejected)
	return rejected
}

// enrichAll visits the detail page of every record in discovery order.
func (e *Engine) enrichAll(ctx context.Context, batch *certificate.Batch) error {
	for _, rec := range batch.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.enrich(ctx, rec); err != nil {
			rec.Error = err.Error()
			e.metrics.RecordsFailed.Add(1)
			e.logger.Warn("detail enrichment failed", "isin", rec.ISIN, "error", err)
			continue
		}
		e.metrics.RecordsEnriched.Add(1)
	}
	return nil
}

// enrich fetches and applies the detail page of rec. On any failure rec is
// left exactly as it was.
func (e *Engine) enrich(ctx context.Context, rec *certificate.Record) error {
	detailURL := string(rec.DetailURL)
	if detailURL == "" || e.cfg.Scrape.PreferTemplate {
		if tmpl := e.cfg.Scrape.DetailURL(rec.ISIN); tmpl != "" {
			detailURL = tmpl
		}
	}
	if detailURL == "" {
		return types.ErrNoDetailURL
	}

	req, err := types.NewRequest(detailURL)
	if err != nil {
		return err
	}
	req.Tag = types.TagDetail
	req.ISIN = rec.ISIN
	req.WaitSelector = e.cfg.Scrape.WaitSelector

	if e.cfg.Scrape.DetailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Scrape.DetailTimeout)
		defer cancel()
	}

	resp, err := e.fetch(ctx, req)
	if err != nil {
		return err
	}

	enriched, err := e.applyDetail(rec, resp)
	if err != nil {
		return err
	}
	enriched.DetailURL = certificate.NullString(detailURL)
	*rec = *enriched
	return nil
}

// applyDetail builds the enriched copy of rec. A panic while reading the page
// is turned into an error.
func (e *Engine) applyDetail(rec *certificate.Record, resp *types.Response) (out *certificate.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &types.ParseError{URL: resp.FinalURL, ISIN: rec.ISIN, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	doc, err := e.parser.Parse(resp)
	if err != nil {
		return nil, err
	}

	barrier, _ := doc.Barrier()
	work := rec.Clone()
	e.builder.Enrich(work, doc.ExtractFields(), doc.Underlyings(), barrier)
	return work, nil
}

// process runs every record through the pipeline and returns how many were
// dropped. A record the pipeline rejects with an error is kept and annotated.
func (e *Engine) process(batch *certificate.Batch) int {
	if e.pipeline == nil {
		return 0
	}

	excluded := 0
	for _, rec := range batch.Records() {
		out, err := e.pipeline.Process(rec)
		switch {
		case err != nil:
			var perr *types.PipelineError
			if errors.As(err, &perr) {
				e.logger.Warn("pipeline rejected record", "isin", rec.ISIN, "stage", perr.Stage, "error", perr.Err)
			}
			if rec.Error == "" {
				rec.Error = err.Error()
				e.metrics.RecordsFailed.Add(1)
			}
		case out == nil:
			batch.Remove(rec.ISIN)
			excluded++
			e.metrics.RecordsExcluded.Add(1)
		}
	}
	return excluded
}

// fetch waits out the politeness delay and fetches req.
func (e *Engine) fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if e.fetches > 0 && e.cfg.Scrape.Delay > 0 {
		t := time.NewTimer(e.cfg.Scrape.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	e.fetches++

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.metrics.PagesFailed.Add(1)
		return nil, err
	}
	e.metrics.PagesFetched.Add(1)
	e.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	e.logger.Debug("page fetched",
		"url", req.URLString(),
		"tag", req.Tag,
		"status", resp.StatusCode,
		"duration", resp.FetchDuration,
	)
	return resp, nil
}
