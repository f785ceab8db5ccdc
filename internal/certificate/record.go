// Package certificate holds the canonical certificate record, the builder that
// fills it from extracted page values, and the deduplicating batch.
package certificate

import (
	"encoding/json"
	"time"

	"github.com/IshaanNene/CertGoat/internal/classify"
)

// State is the processing stage a record reached.
type State string

const (
	StateDiscovered State = "discovered"
	StateEnriched   State = "enriched"
)

// NullString is a string that serializes to JSON null when empty.
type NullString string

// MarshalJSON implements json.Marshaler.
func (s NullString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NullString(v)
	return nil
}

func (s NullString) String() string { return string(s) }

// UnderlyingRef is one underlying asset of a certificate.
type UnderlyingRef struct {
	Name    string   `json:"name"    bson:"name"`
	Strike  *float64 `json:"strike"  bson:"strike"`
	Spot    *float64 `json:"spot"    bson:"spot"`
	Barrier *float64 `json:"barrier" bson:"barrier"`
	WorstOf bool     `json:"worst_of" bson:"worst_of"`
	// Synthetic marks the placeholder entry used when the page has no basket.
	Synthetic bool `json:"synthetic" bson:"synthetic"`
}

// Record is the canonical description of one certificate.
type Record struct {
	ISIN               string            `json:"isin"                bson:"isin"`
	Name               NullString        `json:"name"                bson:"name"`
	Issuer             NullString        `json:"issuer"              bson:"issuer"`
	Market             NullString        `json:"market"              bson:"market"`
	Currency           NullString        `json:"currency"            bson:"currency"`
	Description        NullString        `json:"description"         bson:"description"`
	Type               string            `json:"type"                bson:"type"`
	UnderlyingName     NullString        `json:"underlying_name"     bson:"underlying_name"`
	UnderlyingCategory classify.Category `json:"underlying_category" bson:"underlying_category"`
	Underlyings        []UnderlyingRef   `json:"underlyings"         bson:"underlyings"`

	BarrierDown       *float64   `json:"barrier_down"        bson:"barrier_down"`
	BarrierLevel      *float64   `json:"barrier_level"       bson:"barrier_level"`
	BarrierType       NullString `json:"barrier_type"        bson:"barrier_type"`
	BarrierReached    *bool      `json:"barrier_reached"     bson:"barrier_reached"`
	Coupon            *float64   `json:"coupon"              bson:"coupon"`
	AnnualCouponYield *float64   `json:"annual_coupon_yield" bson:"annual_coupon_yield"`
	BidPrice          *float64   `json:"bid_price"           bson:"bid_price"`
	AskPrice          *float64   `json:"ask_price"           bson:"ask_price"`
	LastPrice         *float64   `json:"last_price"          bson:"last_price"`
	Price             *float64   `json:"price"               bson:"price"`
	Strike            *float64   `json:"strike"              bson:"strike"`
	Trigger           *float64   `json:"trigger"             bson:"trigger"`
	Nominal           *float64   `json:"nominal"             bson:"nominal"`

	IssueDate    NullString `json:"issue_date"    bson:"issue_date"`
	MaturityDate NullString `json:"maturity_date" bson:"maturity_date"`

	State     State      `json:"state"            bson:"state"`
	Error     string     `json:"error,omitempty"  bson:"error,omitempty"`
	Source    string     `json:"source_url"       bson:"source_url"`
	DetailURL NullString `json:"detail_url"       bson:"detail_url"`
	ScrapedAt time.Time  `json:"scraped_at"       bson:"scraped_at"`

	// NameSynthetic is set when Name was composed from type and underlyings
	// rather than read from a page.
	NameSynthetic bool `json:"-" bson:"-"`
}

// Failed reports whether the record carries an error annotation.
func (r *Record) Failed() bool {
	return r.Error != ""
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Underlyings != nil {
		c.Underlyings = make([]UnderlyingRef, len(r.Underlyings))
		copy(c.Underlyings, r.Underlyings)
	}
	return &c
}

// RealUnderlyings returns the underlyings read from a basket table.
func (r *Record) RealUnderlyings() []UnderlyingRef {
	var out []UnderlyingRef
	for _, u := range r.Underlyings {
		if !u.Synthetic {
			out = append(out, u)
		}
	}
	return out
}

// Merge fills the empty fields of r from other. Populated fields of r are
// never changed, so the first sighting of an ISIN wins. The fallback type, a
// synthesized name and the "other" category count as empty.
func (r *Record) Merge(other *Record) {
	if other == nil || other == r {
		return
	}

	if r.Name == "" || (r.NameSynthetic && other.Name != "" && !other.NameSynthetic) {
		r.Name, r.NameSynthetic = other.Name, other.NameSynthetic
	}
	fillString(&r.Issuer, other.Issuer)
	fillString(&r.Market, other.Market)
	fillString(&r.Currency, other.Currency)
	fillString(&r.Description, other.Description)
	fillString(&r.UnderlyingName, other.UnderlyingName)
	fillString(&r.BarrierType, other.BarrierType)
	fillString(&r.IssueDate, other.IssueDate)
	fillString(&r.MaturityDate, other.MaturityDate)
	fillString(&r.DetailURL, other.DetailURL)

	if (r.Type == "" || r.Type == classify.FallbackType) && other.Type != "" {
		r.Type = other.Type
	}
	// "other" only means there was no text to classify.
	if (r.UnderlyingCategory == "" || r.UnderlyingCategory == classify.CategoryOther) && other.UnderlyingCategory != "" {
		r.UnderlyingCategory = other.UnderlyingCategory
	}
	if len(r.RealUnderlyings()) == 0 && len(other.RealUnderlyings()) > 0 {
		r.Underlyings = append([]UnderlyingRef(nil), other.Underlyings...)
	}

	fillFloat(&r.BarrierDown, other.BarrierDown)
	fillFloat(&r.BarrierLevel, other.BarrierLevel)
	fillFloat(&r.Coupon, other.Coupon)
	fillFloat(&r.AnnualCouponYield, other.AnnualCouponYield)
	fillFloat(&r.BidPrice, other.BidPrice)
	fillFloat(&r.AskPrice, other.AskPrice)
	fillFloat(&r.LastPrice, other.LastPrice)
	fillFloat(&r.Price, other.Price)
	fillFloat(&r.Strike, other.Strike)
	fillFloat(&r.Trigger, other.Trigger)
	fillFloat(&r.Nominal, other.Nominal)
	if r.BarrierReached == nil && other.BarrierReached != nil {
		v := *other.BarrierReached
		r.BarrierReached = &v
	}

	if r.Source == "" {
		r.Source = other.Source
	}
}

func fillString(dst *NullString, src NullString) {
	if *dst == "" {
		*dst = src
	}
}

func fillFloat(dst **float64, src *float64) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}

// Metadata describes a finished batch.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"      bson:"timestamp"`
	Total         int       `json:"total"          bson:"total"`
	Enriched      int       `json:"enriched"       bson:"enriched"`
	Failed        int       `json:"failed"         bson:"failed"`
	Excluded      int       `json:"excluded"       bson:"excluded"`
	RejectedISINs int       `json:"rejected_isins" bson:"rejected_isins"`
	RulesVersion  string    `json:"rules_version"  bson:"rules_version"`
	Sources       []string  `json:"sources"        bson:"sources"`
}

// Output is the serialized batch document.
type Output struct {
	Metadata     Metadata  `json:"metadata"`
	Certificates []*Record `json:"certificates"`
}
