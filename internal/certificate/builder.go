package certificate

import (
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/CertGoat/internal/classify"
	"github.com/IshaanNene/CertGoat/internal/locale"
	"github.com/IshaanNene/CertGoat/internal/parser"
)

// maxNameUnderlyings caps how many basket names go into a synthesized name.
const maxNameUnderlyings = 3

// Builder turns raw extracted strings into Records.
type Builder struct {
	classifier *classify.Classifier
	values     locale.Parser
	logger     *slog.Logger

	// Now stamps ScrapedAt. Tests pin it for reproducible output.
	Now func() time.Time
}

// NewBuilder creates a Builder. values controls number parsing (zero handling).
func NewBuilder(classifier *classify.Classifier, values locale.Parser, logger *slog.Logger) *Builder {
	return &Builder{
		classifier: classifier,
		values:     values,
		logger:     logger.With("component", "builder"),
		Now:        time.Now,
	}
}

// RulesVersion returns the version of the classification tables in use.
func (b *Builder) RulesVersion() string {
	return b.classifier.RulesVersion()
}

// Build creates a discovered record from listing-row values. A malformed ISIN
// fails fast and no record is produced.
func (b *Builder) Build(rawISIN string, fields map[string]string, underlyings []parser.UnderlyingRaw) (*Record, error) {
	isin, err := ValidateISIN(rawISIN)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ISIN:      isin,
		State:     StateDiscovered,
		ScrapedAt: b.Now().UTC(),
	}
	b.apply(rec, fields, underlyings)
	b.derive(rec)
	return rec, nil
}

// Enrich applies detail-page values to rec. A non-empty detail value replaces
// the listing value; an empty one never erases it. Script barrier metadata is
// used only where no table value exists.
func (b *Builder) Enrich(rec *Record, fields map[string]string, underlyings []parser.UnderlyingRaw, barrier parser.BarrierInfo) {
	b.apply(rec, fields, underlyings)

	if rec.BarrierDown == nil {
		rec.BarrierDown = b.percent(barrier.Percent)
	}
	if rec.BarrierLevel == nil {
		rec.BarrierLevel = b.number(barrier.Level)
	}
	if rec.BarrierType == "" {
		rec.BarrierType = b.text(barrier.Type)
	}
	if rec.BarrierReached == nil {
		rec.BarrierReached = parseFlag(barrier.Reached)
	}

	b.derive(rec)
	rec.State = StateEnriched
	rec.Error = ""
	rec.ScrapedAt = b.Now().UTC()

	b.logger.Debug("record enriched", "isin", rec.ISIN, "type", rec.Type, "category", rec.UnderlyingCategory)
}

// apply copies every usable value from fields into rec.
func (b *Builder) apply(rec *Record, fields map[string]string, underlyings []parser.UnderlyingRaw) {
	if name := b.text(fields[parser.FieldName]); name != "" {
		rec.Name, rec.NameSynthetic = name, false
	}
	setText(&rec.Issuer, b.text(fields[parser.FieldIssuer]))
	setText(&rec.Market, b.text(fields[parser.FieldMarket]))
	setText(&rec.Currency, b.text(fields[parser.FieldCurrency]))
	setText(&rec.Description, b.text(fields[parser.FieldDescription]))
	setText(&rec.UnderlyingName, b.text(fields[parser.FieldUnderlyingName]))
	setText(&rec.BarrierType, b.text(fields[parser.FieldBarrierType]))

	setFloat(&rec.BarrierDown, b.percent(fields[parser.FieldBarrierDown]))
	setFloat(&rec.BarrierLevel, b.number(fields[parser.FieldBarrierLevel]))
	setFloat(&rec.Coupon, b.percent(fields[parser.FieldCoupon]))
	setFloat(&rec.AnnualCouponYield, b.percent(fields[parser.FieldAnnualCouponYield]))
	setFloat(&rec.BidPrice, b.number(fields[parser.FieldBidPrice]))
	setFloat(&rec.AskPrice, b.number(fields[parser.FieldAskPrice]))
	setFloat(&rec.LastPrice, b.number(fields[parser.FieldLastPrice]))
	setFloat(&rec.Strike, b.number(fields[parser.FieldStrike]))
	setFloat(&rec.Trigger, b.percent(fields[parser.FieldTrigger]))
	setFloat(&rec.Nominal, b.number(fields[parser.FieldNominal]))

	setText(&rec.IssueDate, b.date(fields[parser.FieldIssueDate]))
	setText(&rec.MaturityDate, b.date(fields[parser.FieldMaturityDate]))

	if refs := b.underlyings(underlyings); len(refs) > 0 {
		rec.Underlyings = refs
	}
}

// Rederive recomputes the derived fields of rec from its current inputs. Use it
// after merging another sighting of the same ISIN into rec.
func (b *Builder) Rederive(rec *Record) {
	b.derive(rec)
}

// derive recomputes type, category, price, basket and name from the raw fields.
// It is idempotent.
func (b *Builder) derive(rec *Record) {
	realName := ""
	if !rec.NameSynthetic {
		realName = string(rec.Name)
	}

	fallback := b.classifier.FallbackType()
	if t := b.classifier.ProductType(join(realName, string(rec.Description))); t != fallback {
		rec.Type = t
	} else if rec.Type == "" {
		rec.Type = fallback
	}

	basket := rec.RealUnderlyings()
	text := join(string(rec.UnderlyingName), realName)
	if strings.TrimSpace(string(rec.UnderlyingName)) == "" {
		for _, u := range basket {
			text = join(text, u.Name)
		}
	}
	rec.UnderlyingCategory = b.classifier.Classify(text)

	rec.Price = price(rec)

	if len(basket) == 0 {
		label := string(rec.UnderlyingName)
		if label == "" {
			label = string(rec.UnderlyingCategory)
		}
		rec.Underlyings = []UnderlyingRef{{Name: label, Synthetic: true}}
	} else {
		rec.Underlyings = basket
	}

	if rec.Name == "" || rec.NameSynthetic {
		rec.Name = synthesizeName(rec, basket, fallback)
		rec.NameSynthetic = true
	}
}

// underlyings converts basket rows and flags the worst performer.
func (b *Builder) underlyings(raws []parser.UnderlyingRaw) []UnderlyingRef {
	if len(raws) == 0 {
		return nil
	}

	refs := make([]UnderlyingRef, 0, len(raws))
	explicit := false
	for _, raw := range raws {
		name := b.text(raw.Name)
		if name == "" {
			continue
		}
		ref := UnderlyingRef{
			Name:    string(name),
			Strike:  b.number(raw.Strike),
			Spot:    b.number(raw.Spot),
			Barrier: b.percent(raw.Barrier),
			WorstOf: isMarked(raw.WorstOf),
		}
		explicit = explicit || ref.WorstOf
		refs = append(refs, ref)
	}

	if !explicit {
		markWorstOf(refs)
	}
	return refs
}

// markWorstOf flags the underlying with the lowest spot/strike ratio when
// every entry of a multi-asset basket has both values.
func markWorstOf(refs []UnderlyingRef) {
	if len(refs) < 2 {
		return
	}
	worst := -1
	var lowest float64
	for i, r := range refs {
		if r.Spot == nil || r.Strike == nil || *r.Strike == 0 {
			return
		}
		ratio := *r.Spot / *r.Strike
		if worst < 0 || ratio < lowest {
			worst, lowest = i, ratio
		}
	}
	refs[worst].WorstOf = true
}

// price picks the bid/ask midpoint, then last, then ask, then bid.
func price(rec *Record) *float64 {
	switch {
	case rec.BidPrice != nil && rec.AskPrice != nil:
		mid := (*rec.BidPrice + *rec.AskPrice) / 2
		return &mid
	case rec.LastPrice != nil:
		return copyFloat(rec.LastPrice)
	case rec.AskPrice != nil:
		return copyFloat(rec.AskPrice)
	case rec.BidPrice != nil:
		return copyFloat(rec.BidPrice)
	}
	return nil
}

func synthesizeName(rec *Record, basket []UnderlyingRef, fallback string) NullString {
	if len(basket) > 0 {
		names := make([]string, 0, maxNameUnderlyings)
		for _, u := range basket {
			if len(names) == maxNameUnderlyings {
				break
			}
			names = append(names, u.Name)
		}
		return NullString(rec.Type + " su " + strings.Join(names, ", "))
	}
	if rec.Type != "" && rec.Type != fallback {
		return NullString(rec.Type + " " + rec.ISIN)
	}
	return NullString(rec.ISIN)
}

func (b *Builder) text(raw string) NullString {
	v := locale.Clean(raw)
	if locale.IsSentinel(v) {
		return ""
	}
	return NullString(v)
}

func (b *Builder) number(raw string) *float64 {
	if v, ok := b.values.Number(raw); ok {
		return &v
	}
	return nil
}

func (b *Builder) percent(raw string) *float64 {
	if v, ok := b.values.Percent(raw); ok {
		return &v
	}
	return nil
}

func (b *Builder) date(raw string) NullString {
	if v, ok := b.values.Date(raw); ok {
		return NullString(v)
	}
	return ""
}

func setText(dst *NullString, v NullString) {
	if v != "" {
		*dst = v
	}
}

func setFloat(dst **float64, v *float64) {
	if v != nil {
		*dst = v
	}
}

func copyFloat(v *float64) *float64 {
	c := *v
	return &c
}

func join(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}

var truthy = map[string]bool{
	"x": true, "si": true, "sì": true, "yes": true, "true": true, "1": true, "y": true, "*": true, "✓": true,
}

// isMarked reads a worst-of column cell.
func isMarked(raw string) bool {
	v := strings.ToLower(locale.Clean(raw))
	return truthy[v] || strings.Contains(v, "worst") || strings.Contains(v, "peggiore")
}

// parseFlag reads a boolean script value; unknown text is null.
func parseFlag(raw string) *bool {
	v := strings.ToLower(locale.Clean(raw))
	var out bool
	switch {
	case truthy[v]:
		out = true
	case v == "false" || v == "no" || v == "0" || v == "n":
		out = false
	default:
		return nil
	}
	return &out
}
