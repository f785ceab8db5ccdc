package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/classify"
	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/locale"
	"github.com/IshaanNene/CertGoat/internal/pipeline"
	"github.com/IshaanNene/CertGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	listing1 = "https://certs.example/listing?page=1"
	listing2 = "https://certs.example/listing?page=2"
)

var pages = map[string]string{
	listing1: `<html><body><table>
<tr><th>ISIN</th><th>Nome</th><th>Emittente</th><th>Barriera</th><th>Cedola</th></tr>
<tr><td><a href="/scheda/IT0006771510">IT0006771510</a></td><td>Phoenix Memory su FTSE MIB</td><td>Intesa Sanpaolo</td><td>60%</td><td>5%</td></tr>
<tr><td>DE000VU5FFT5</td><td>Bonus Cap su Enel</td><td>Vontobel</td><td>-</td><td>n.d.</td></tr>
<tr><td>XX123</td><td>Broken row</td><td>Nobody</td><td></td><td></td></tr>
</table></body></html>`,

	listing2: `<html><body><table>
<tr><th>ISIN</th><th>Nome</th><th>Emittente</th></tr>
<tr><td>IT0006771510</td><td>Phoenix Memory su FTSE MIB</td><td>Altro Emittente</td></tr>
<tr><td><a href="https://certs.example/scheda/NL0011234567">NL0011234567</a></td><td>Cash Collect su Euro Stoxx 50</td><td></td></tr>
</table></body></html>`,

	"https://certs.example/scheda/IT0006771510": `<html><body><h1>Phoenix Memory su FTSE MIB</h1><table>
<tr><th>Emittente</th><td>Intesa Sanpaolo</td></tr>
<tr><th>Sottostante</th><td>FTSE MIB</td></tr>
<tr><th>Barriera</th><td>60 %</td></tr>
<tr><th>Cedola</th><td>1,25%</td></tr>
<tr><th>Denaro</th><td>98,50</td></tr>
<tr><th>Lettera</th><td>99,50</td></tr>
<tr><th>Scadenza</th><td>15/06/2027</td></tr>
</table></body></html>`,

	"https://certs.example/scheda/NL0011234567": `<html><body><table>
<tr><th>Emittente</th><td>BNP Paribas</td></tr>
</table></body></html>`,
}

type fakeFetcher struct {
	pages   map[string]string
	calls   []string
	onFetch func(n int)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	f.calls = append(f.calls, req.URLString())
	if f.onFetch != nil {
		f.onFetch(len(f.calls))
	}
	if err := ctx.Err(); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	body, ok := f.pages[req.URLString()]
	if !ok {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: 404, Err: errors.New("HTTP 404")}
	}
	return types.NewRenderedResponse(req, []byte(body), req.URLString(), time.Millisecond), nil
}

func newTestEngine(cfg *config.Config, f Fetcher) *Engine {
	classifier := classify.New(nil, testLogger)
	builder := certificate.NewBuilder(classifier, locale.Parser{}, testLogger)
	builder.Now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	p := pipeline.NewDefault(cfg.Scrape.ExcludeSingleStock, classifier, testLogger)
	return New(cfg, f, builder, p, nil, testLogger)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Scrape.Delay = 0
	cfg.Scrape.DetailURLTemplate = "https://certs.example/detail/{isin}"
	return cfg
}

// --- Run Tests ---

func TestRunListingAndDetails(t *testing.T) {
	f := &fakeFetcher{pages: pages}
	e := newTestEngine(testConfig(), f)

	res, err := e.Run(context.Background(), []string{listing1, listing2, listing1 + "#top"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.Batch.Len(); got != 3 {
		t.Fatalf("expected 3 certificates, got %d", got)
	}
	if res.Metadata.RejectedISINs != 1 {
		t.Errorf("expected 1 rejected ISIN, got %d", res.Metadata.RejectedISINs)
	}
	if len(res.Metadata.Sources) != 2 {
		t.Errorf("expected the repeated listing to be skipped, sources=%v", res.Metadata.Sources)
	}
	if res.Metadata.RulesVersion == "" {
		t.Error("expected rules version in metadata")
	}

	phoenix, _ := res.Batch.Get("IT0006771510")
	if phoenix.State != certificate.StateEnriched || phoenix.Failed() {
		t.Errorf("expected enriched record, got state=%s error=%q", phoenix.State, phoenix.Error)
	}
	if phoenix.Issuer != "Intesa Sanpaolo" {
		t.Errorf("expected first-seen issuer, got %q", phoenix.Issuer)
	}
	if phoenix.Type != "Phoenix Memory" || phoenix.UnderlyingCategory != classify.CategoryIndex {
		t.Errorf("unexpected classification %q/%q", phoenix.Type, phoenix.UnderlyingCategory)
	}
	if phoenix.BarrierDown == nil || *phoenix.BarrierDown != 60 {
		t.Errorf("expected barrier 60, got %v", phoenix.BarrierDown)
	}
	if phoenix.Coupon == nil || *phoenix.Coupon != 1.25 {
		t.Errorf("expected detail coupon 1.25 to replace listing value, got %v", phoenix.Coupon)
	}
	if phoenix.Price == nil || *phoenix.Price != 99 {
		t.Errorf("expected mid price 99, got %v", phoenix.Price)
	}
	if phoenix.MaturityDate != "2027-06-15" {
		t.Errorf("expected maturity 2027-06-15, got %q", phoenix.MaturityDate)
	}
	if phoenix.DetailURL != "https://certs.example/scheda/IT0006771510" {
		t.Errorf("unexpected detail URL %q", phoenix.DetailURL)
	}
	if phoenix.Source != listing1 {
		t.Errorf("expected source %q, got %q", listing1, phoenix.Source)
	}

	bonus, _ := res.Batch.Get("DE000VU5FFT5")
	if bonus.State != certificate.StateDiscovered || !bonus.Failed() {
		t.Errorf("expected failed discovered record, got state=%s error=%q", bonus.State, bonus.Error)
	}
	if bonus.Name != "Bonus Cap su Enel" || bonus.Issuer != "Vontobel" {
		t.Errorf("failed record must keep its listing values, got %q/%q", bonus.Name, bonus.Issuer)
	}

	cash, _ := res.Batch.Get("NL0011234567")
	if cash.Issuer != "BNP Paribas" || cash.State != certificate.StateEnriched {
		t.Errorf("expected enriched issuer, got %q (%s)", cash.Issuer, cash.State)
	}

	want := []string{listing1, listing2,
		"https://certs.example/scheda/IT0006771510",
		"https://certs.example/detail/DE000VU5FFT5",
		"https://certs.example/scheda/NL0011234567",
	}
	if len(f.calls) != len(want) {
		t.Fatalf("expected %d fetches, got %v", len(want), f.calls)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Errorf("fetch %d: expected %q, got %q", i, want[i], f.calls[i])
		}
	}

	snap := e.Metrics().Snapshot()
	if snap["pages_fetched"] != 4 || snap["pages_failed"] != 1 {
		t.Errorf("unexpected page counters %v", snap)
	}
	if snap["records_enriched"] != 2 || snap["records_failed"] != 1 || snap["isins_duplicated"] != 1 {
		t.Errorf("unexpected record counters %v", snap)
	}

	out := res.Output()
	if out.Metadata.Total != 3 || out.Metadata.Enriched != 2 || out.Metadata.Failed != 1 {
		t.Errorf("unexpected output metadata %+v", out.Metadata)
	}
}

func TestRunExcludesSingleStock(t *testing.T) {
	cfg := testConfig()
	cfg.Scrape.ExcludeSingleStock = true
	e := newTestEngine(cfg, &fakeFetcher{pages: pages})

	res, err := e.Run(context.Background(), []string{listing1, listing2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := res.Batch.Get("DE000VU5FFT5"); ok {
		t.Error("single-stock certificate should be excluded")
	}
	if res.Metadata.Excluded != 1 || res.Batch.Len() != 2 {
		t.Errorf("expected 1 excluded and 2 kept, got %d and %d", res.Metadata.Excluded, res.Batch.Len())
	}
}

func TestRunSkipDetails(t *testing.T) {
	cfg := testConfig()
	cfg.Scrape.SkipDetails = true
	f := &fakeFetcher{pages: pages}
	e := newTestEngine(cfg, f)

	res, err := e.Run(context.Background(), []string{listing1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected only the listing fetch, got %v", f.calls)
	}
	for _, rec := range res.Batch.Records() {
		if rec.State != certificate.StateDiscovered {
			t.Errorf("%s: expected discovered, got %s", rec.ISIN, rec.State)
		}
	}

	rec, _ := res.Batch.Get("IT0006771510")
	if rec.Coupon == nil || *rec.Coupon != 5 || rec.BarrierDown == nil || *rec.BarrierDown != 60 {
		t.Errorf("expected listing values coupon=5 barrier=60, got %v %v", rec.Coupon, rec.BarrierDown)
	}
}

func TestRunListingFailureContinues(t *testing.T) {
	cfg := testConfig()
	cfg.Scrape.SkipDetails = true
	e := newTestEngine(cfg, &fakeFetcher{pages: pages})

	res, err := e.Run(context.Background(), []string{"https://certs.example/missing", listing2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batch.Len() != 2 {
		t.Errorf("expected the second listing to be scanned, got %d records", res.Batch.Len())
	}
}

func TestRunNoDetailURL(t *testing.T) {
	cfg := testConfig()
	cfg.Scrape.DetailURLTemplate = ""
	e := newTestEngine(cfg, &fakeFetcher{pages: pages})

	res, err := e.Run(context.Background(), []string{listing1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec, _ := res.Batch.Get("DE000VU5FFT5")
	if rec.Error != types.ErrNoDetailURL.Error() {
		t.Errorf("expected ErrNoDetailURL annotation, got %q", rec.Error)
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	cfg := testConfig()
	cfg.Scrape.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{pages: pages, onFetch: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	e := newTestEngine(cfg, f)

	done := make(chan struct{})
	var (
		res *Result
		err error
	)
	go func() {
		res, err = e.Run(ctx, []string{listing1, listing2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.Batch == nil {
		t.Fatal("expected a partial result")
	}
}

// --- Deduplicator Tests ---

func TestDeduplicatorVisit(t *testing.T) {
	d := NewDeduplicator()

	if !d.Visit("https://example.com/listing?page=1") {
		t.Error("first visit should be new")
	}
	if d.Visit("https://example.com/listing?page=1") {
		t.Error("second visit should not be new")
	}
	if !d.Visit("https://example.com/listing?page=2") {
		t.Error("pagination parameter must stay significant")
	}
}

func TestDeduplicatorURLVariants(t *testing.T) {
	d := NewDeduplicator()

	d.Visit("https://Example.COM:443/Path/?b=2&a=1#results")

	for _, variant := range []string{
		"https://example.com/Path?b=2&a=1",
		"https://example.com/Path?a=1&b=2",
	} {
		if d.Visit(variant) {
			t.Errorf("expected %q to match the canonical URL", variant)
		}
	}
	if !d.Visit("https://example.com/Path") {
		t.Error("a URL without the query must not match")
	}
}

func TestCanonicalizeFilePath(t *testing.T) {
	if got := CanonicalizeURL("/tmp/listing.html"); got != "/tmp/listing.html" {
		t.Errorf("expected bare path to stay unchanged, got %q", got)
	}
}

// --- Benchmarks ---

func BenchmarkDeduplicator(b *testing.B) {
	d := NewDeduplicator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		url := "https://example.com/listing?page=" + string(rune(i%26+'a'))
		d.Visit(url)
	}
}
