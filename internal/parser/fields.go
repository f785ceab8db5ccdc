package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/CertGoat/internal/locale"
)

// Logical field names shared by the extractor and the record builder.
const (
	FieldISIN              = "isin"
	FieldName              = "name"
	FieldIssuer            = "issuer"
	FieldMarket            = "market"
	FieldCurrency          = "currency"
	FieldDescription       = "description"
	FieldUnderlyingName    = "underlying_name"
	FieldBarrierDown       = "barrier_down"
	FieldBarrierLevel      = "barrier_level"
	FieldCoupon            = "coupon"
	FieldAnnualCouponYield = "annual_coupon_yield"
	FieldBidPrice          = "bid_price"
	FieldAskPrice          = "ask_price"
	FieldLastPrice         = "last_price"
	FieldStrike            = "strike"
	FieldTrigger           = "trigger"
	FieldNominal           = "nominal"
	FieldIssueDate         = "issue_date"
	FieldMaturityDate      = "maturity_date"
	FieldBarrierType       = "barrier_type"
	FieldIssuePrice        = "issue_price"
)

// FieldOrder is the order in which logical fields are extracted.
var FieldOrder = []string{
	FieldISIN, FieldName, FieldIssuer, FieldMarket, FieldCurrency, FieldDescription,
	FieldUnderlyingName, FieldBarrierDown, FieldBarrierLevel, FieldCoupon,
	FieldAnnualCouponYield, FieldBidPrice, FieldAskPrice, FieldLastPrice, FieldStrike,
	FieldTrigger, FieldNominal, FieldIssueDate, FieldMaturityDate, FieldBarrierType,
	FieldIssuePrice,
}

// Fields lists the page labels that carry each logical field, most specific
// first. Labels are compared case-insensitively after whitespace cleanup.
var Fields = map[string][]string{
	FieldISIN:              {"isin", "codice isin", "cod. isin"},
	FieldName:              {"nome", "denominazione", "nome prodotto", "nome strumento", "name"},
	FieldIssuer:            {"emittente", "issuer", "emittente/garante"},
	FieldMarket:            {"mercato", "mercato di quotazione", "borsa", "sede di negoziazione", "market"},
	FieldCurrency:          {"valuta", "divisa", "valuta di negoziazione", "currency"},
	FieldDescription:       {"tipologia", "tipo prodotto", "tipologia prodotto", "categoria", "product type"},
	FieldUnderlyingName:    {"sottostante", "sottostanti", "attività sottostante", "underlying"},
	FieldBarrierDown:       {"barriera", "barriera down", "barriera %", "livello barriera %", "barrier"},
	FieldBarrierLevel:      {"livello barriera", "barriera (livello)", "barrier level"},
	FieldCoupon:            {"cedola", "premio", "importo cedola", "cedola periodica", "coupon"},
	FieldAnnualCouponYield: {"rendimento annuo", "cedola annua", "rendimento p.a.", "cedola p.a.", "annual yield"},
	FieldBidPrice:          {"denaro", "prezzo denaro", "bid"},
	FieldAskPrice:          {"lettera", "prezzo lettera", "ask"},
	FieldLastPrice:         {"ultimo", "ultimo prezzo", "prezzo", "last"},
	FieldStrike:            {"strike", "prezzo di esercizio", "livello iniziale", "strike price"},
	FieldTrigger:           {"trigger", "livello trigger", "trigger cedola", "autocall trigger"},
	FieldNominal:           {"nominale", "valore nominale", "importo nominale", "nominal"},
	FieldIssueDate:         {"data emissione", "data di emissione", "emissione", "issue date"},
	FieldMaturityDate:      {"scadenza", "data scadenza", "data di scadenza", "maturity", "maturity date"},
	FieldBarrierType:       {"tipo barriera", "tipologia barriera", "barrier type"},
	FieldIssuePrice:        {"prezzo di emissione", "prezzo emissione", "issue price"},
}

// lenient accepts an explicit zero so that "0,00" still counts as a number.
var lenient = locale.Parser{KeepZero: true}

func numericValue(v string) bool {
	_, ok := lenient.Percent(v)
	return ok
}

func dateValue(v string) bool {
	_, ok := lenient.Date(v)
	return ok
}

// valueChecks rejects values that cannot be what the field holds. A row whose
// value fails the check is treated as a miss and the lookup moves on.
var valueChecks = map[string]func(string) bool{
	FieldBarrierDown:       numericValue,
	FieldBarrierLevel:      numericValue,
	FieldCoupon:            numericValue,
	FieldAnnualCouponYield: numericValue,
	FieldBidPrice:          numericValue,
	FieldAskPrice:          numericValue,
	FieldLastPrice:         numericValue,
	FieldStrike:            numericValue,
	FieldTrigger:           numericValue,
	FieldNominal:           numericValue,
	FieldIssuePrice:        numericValue,
	FieldIssueDate:         dateValue,
	FieldMaturityDate:      dateValue,
}

// fieldOfLabel maps every declared label to its logical field.
var fieldOfLabel = func() map[string]string {
	m := make(map[string]string)
	for name, labels := range Fields {
		for _, l := range labels {
			m[normalizeLabel(l)] = name
		}
	}
	return m
}()

// query describes one label lookup.
type query struct {
	want []string
	// skip drops a label during the substring pass.
	skip func(label string) bool
	// accept rejects values of the wrong shape in every pass.
	accept func(value string) bool
}

func (q query) takes(value string) bool {
	return usable(value) && (q.accept == nil || q.accept(value))
}

// labeled is anything that answers label lookups: a whole page or one listing row.
type labeled interface {
	lookup(q query) (string, bool)
}

// extractFields runs one independent lookup per logical field. During the
// substring pass a row whose label is declared for another field is skipped,
// so "Prezzo denaro" never answers for "prezzo" and "Tipo barriera" never
// answers for "barriera".
func extractFields(src labeled) map[string]string {
	out := make(map[string]string, len(FieldOrder))
	for _, name := range FieldOrder {
		q := query{
			want: normalizeLabels(Fields[name]),
			skip: func(label string) bool {
				owner, ok := fieldOfLabel[label]
				return ok && owner != name
			},
			accept: valueChecks[name],
		}
		if v, ok := src.lookup(q); ok {
			out[name] = v
		}
	}
	return out
}

// ExtractFields looks up every logical field on the page. Missing fields are
// absent from the map.
func (d *Document) ExtractFields() map[string]string {
	return extractFields(d)
}

// Field returns the value next to the first row labelled with one of labels.
//
// Label/value rows (tr with th/td cells, dt/dd pairs) are scanned in document
// order: an exact label match anywhere on the page wins over a substring match.
// When no row matches, a text node carrying the label is located by XPath and
// the following sibling element of its parent is read.
func (d *Document) Field(labels ...string) (string, bool) {
	return d.lookup(query{want: normalizeLabels(labels)})
}

func (d *Document) lookup(q query) (string, bool) {
	if len(q.want) == 0 {
		return "", false
	}

	pairs := d.labelPairs()
	if v, ok := matchPairs(pairs, q, true); ok {
		return v, true
	}
	if v, ok := matchPairs(pairs, q, false); ok {
		return v, true
	}
	return d.xpathField(q)
}

// matchLabel compares a normalized label against a wanted one.
func matchLabel(label, want string, exact bool) bool {
	if exact {
		return label == want
	}
	return strings.Contains(label, want)
}

func matchPairs(pairs []labelValue, q query, exact bool) (string, bool) {
	for _, p := range pairs {
		if !q.takes(p.value) || (!exact && q.skip != nil && q.skip(p.label)) {
			continue
		}
		for _, w := range q.want {
			if matchLabel(p.label, w, exact) {
				return p.value, true
			}
		}
	}
	return "", false
}

// labelPairs collects label/value rows once per document.
func (d *Document) labelPairs() []labelValue {
	if d.paired {
		return d.pairs
	}
	d.paired = true

	d.doc.Find("tr, dt").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "tr":
			cells := s.ChildrenFiltered("th, td")
			if cells.Length() < 2 {
				return
			}
			label := normalizeLabel(cells.First().Text())
			if label == "" {
				return
			}
			var value string
			cells.Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, c *goquery.Selection) bool {
				value = cleanText(c.Text())
				return value == ""
			})
			d.pairs = append(d.pairs, labelValue{label: label, value: value})

		case "dt":
			dd := s.NextFiltered("dd")
			if dd.Length() == 0 {
				return
			}
			d.pairs = append(d.pairs, labelValue{
				label: normalizeLabel(s.Text()),
				value: cleanText(dd.Text()),
			})
		}
	})
	return d.pairs
}
