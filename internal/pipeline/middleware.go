package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/classify"
	"github.com/IshaanNene/CertGoat/internal/locale"
)

// TrimMiddleware collapses whitespace in every text field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	for _, f := range []*certificate.NullString{
		&rec.Name, &rec.Issuer, &rec.Market, &rec.Currency, &rec.Description,
		&rec.UnderlyingName, &rec.BarrierType,
	} {
		*f = certificate.NullString(locale.Clean(string(*f)))
	}
	rec.Type = locale.Clean(rec.Type)
	for i := range rec.Underlyings {
		rec.Underlyings[i].Name = locale.Clean(rec.Underlyings[i].Name)
	}
	return rec, nil
}

// RequireISINMiddleware rejects records whose ISIN is not well formed.
type RequireISINMiddleware struct{}

func (m *RequireISINMiddleware) Name() string { return "require_isin" }

func (m *RequireISINMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	isin, err := certificate.ValidateISIN(rec.ISIN)
	if err != nil {
		return nil, err
	}
	rec.ISIN = isin
	return rec, nil
}

// DedupMiddleware drops records whose ISIN already went through the chain.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[rec.ISIN]; exists {
		return nil, nil
	}
	m.seen[rec.ISIN] = struct{}{}
	return rec, nil
}

// currencyAliases maps the spellings seen on Italian sites to ISO codes.
var currencyAliases = map[string]string{
	"€":                    "EUR",
	"euro":                 "EUR",
	"eur":                  "EUR",
	"$":                    "USD",
	"usd":                  "USD",
	"dollaro":              "USD",
	"dollaro usa":          "USD",
	"dollaro statunitense": "USD",
	"£":                    "GBP",
	"gbp":                  "GBP",
	"sterlina":             "GBP",
	"chf":                  "CHF",
	"franco svizzero":      "CHF",
	"jpy":                  "JPY",
	"yen":                  "JPY",
}

// CurrencyNormalizeMiddleware rewrites the currency field to an ISO code.
// Unknown values are kept as found.
type CurrencyNormalizeMiddleware struct{}

func (m *CurrencyNormalizeMiddleware) Name() string { return "currency_normalize" }

func (m *CurrencyNormalizeMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	key := strings.ToLower(locale.Clean(string(rec.Currency)))
	if code, ok := currencyAliases[key]; ok {
		rec.Currency = certificate.NullString(code)
	}
	return rec, nil
}

// StockClassifier decides which categories count as single-stock.
type StockClassifier interface {
	IsSingleStock(cat classify.Category) bool
}

// SingleStockFilterMiddleware drops certificates written on single equities.
type SingleStockFilterMiddleware struct {
	Classifier StockClassifier
}

func (m *SingleStockFilterMiddleware) Name() string { return "single_stock_filter" }

func (m *SingleStockFilterMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	if m.Classifier.IsSingleStock(rec.UnderlyingCategory) {
		return nil, nil
	}
	return rec, nil
}

// ValidateMiddleware checks record invariants that the builder guarantees.
// A violation is an error rather than a drop so it surfaces in the logs.
type ValidateMiddleware struct{}

func (m *ValidateMiddleware) Name() string { return "validate" }

func (m *ValidateMiddleware) Process(rec *certificate.Record) (*certificate.Record, error) {
	if rec.Type == "" {
		return nil, fmt.Errorf("record has no product type")
	}
	if len(rec.Underlyings) == 0 {
		return nil, fmt.Errorf("record has no underlyings")
	}
	if rec.State != certificate.StateDiscovered && rec.State != certificate.StateEnriched {
		return nil, fmt.Errorf("unknown state %q", rec.State)
	}
	for _, d := range []certificate.NullString{rec.IssueDate, rec.MaturityDate} {
		if d == "" {
			continue
		}
		if _, ok := locale.ParseDate(string(d)); !ok {
			return nil, fmt.Errorf("date %q is not YYYY-MM-DD", d)
		}
	}
	return rec, nil
}
