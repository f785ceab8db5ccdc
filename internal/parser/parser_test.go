package parser

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/CertGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const detailHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Phoenix Memory su FTSE MIB</title>
    <script>
    var product = {
        isin: "IT0006771510",
        barrierType: "Europea",
        "barrier_level": "20.123,45",
        barrierReached: false
    };
    </script>
</head>
<body>
    <h1>Phoenix Memory su FTSE MIB</h1>
    <table class="scheda">
        <tr><th>Emittente</th><td>Intesa Sanpaolo</td></tr>
        <tr><th>Tipologia</th><td>Phoenix Memory</td></tr>
        <tr><th>Sottostante</th><td>FTSE MIB</td></tr>
        <tr><th>Prezzo denaro</th><td>98,50</td></tr>
        <tr><th>Lettera</th><td>99,10</td></tr>
        <tr><th>Cedola:</th><td>&nbsp;</td><td>1,25%</td></tr>
        <tr><th>Data di emissione</th><td>15/06/2023</td></tr>
        <tr><th>Barriera</th><td>60 %</td></tr>
    </table>
    <dl>
        <dt>Mercato</dt><dd>SeDeX</dd>
        <dt>Valuta</dt><dd>EUR</dd>
    </dl>
    <div class="info">
        <div><span>Scadenza</span></div>
        <div>15/06/2027</div>
    </div>
    <div><span>Nominale</span><span>-</span></div>
</body>
</html>`

const listingHTML = `<html><body>
<table id="results">
    <thead>
        <tr><th>ISIN</th><th>Nome</th><th>Emittente</th><th>Barriera</th><th>Cedola</th></tr>
    </thead>
    <tbody>
        <tr>
            <td><a href="/scheda/IT0006771510">IT0006771510</a></td>
            <td>Phoenix Memory su FTSE MIB</td>
            <td>Intesa Sanpaolo</td>
            <td>60%</td>
            <td>5%</td>
        </tr>
        <tr>
            <td>DE000VU5FFT5</td>
            <td>Bonus Cap su Enel</td>
            <td>Vontobel</td>
            <td>-</td>
            <td>n.d.</td>
        </tr>
        <tr>
            <td>XX123</td>
            <td>Broken row</td>
            <td>Nobody</td>
            <td></td>
            <td></td>
        </tr>
    </tbody>
</table>
</body></html>`

const basketHTML = `<html><body>
<table class="basket">
    <tr><th>Sottostante</th><th>Strike</th><th>Prezzo</th><th>Barriera</th><th>Worst of</th></tr>
    <tr><td>Eni</td><td>14,20</td><td>13,10</td><td>8,52</td><td></td></tr>
    <tr><td>Enel</td><td>6,10</td><td>6,40</td><td>3,66</td><td>X</td></tr>
</table>
<table class="related">
    <tr><th>ISIN</th><th>Sottostante</th><th>Barriera</th></tr>
    <tr><td>IT0005555555</td><td>Stellantis</td><td>50%</td></tr>
</table>
</body></html>`

func mustDoc(t testing.TB, body string) *Document {
	t.Helper()
	d, err := NewDocument([]byte(body), "https://www.example.it/certificati/")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return d
}

func makeResp(url, body string) *types.Response {
	req, _ := types.NewRequest(url)
	return &types.Response{
		Request:     req,
		StatusCode:  200,
		Body:        []byte(body),
		ContentType: "text/html",
		FinalURL:    url,
	}
}

// --- Field Extractor Tests ---

func TestExtractFields(t *testing.T) {
	d := mustDoc(t, detailHTML)

	got := d.ExtractFields()
	want := map[string]string{
		FieldIssuer:         "Intesa Sanpaolo",
		FieldDescription:    "Phoenix Memory",
		FieldUnderlyingName: "FTSE MIB",
		FieldBidPrice:       "98,50",
		FieldAskPrice:       "99,10",
		FieldCoupon:         "1,25%",
		FieldIssueDate:      "15/06/2023",
		FieldBarrierDown:    "60 %",
		FieldMarket:         "SeDeX",
		FieldCurrency:       "EUR",
		FieldMaturityDate:   "15/06/2027",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractFields mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldExactBeatsSubstring(t *testing.T) {
	d := mustDoc(t, `<table>
		<tr><td>Data scadenza cedola</td><td>01/02/2025</td></tr>
		<tr><td>Scadenza</td><td>15/06/2027</td></tr>
	</table>`)

	v, ok := d.Field("scadenza")
	if !ok || v != "15/06/2027" {
		t.Errorf("expected exact label to win, got %q ok=%v", v, ok)
	}

	v, ok = d.Field("scad")
	if !ok || v != "01/02/2025" {
		t.Errorf("expected first substring match in document order, got %q ok=%v", v, ok)
	}
}

func TestExtractFieldsOwnedLabels(t *testing.T) {
	d := mustDoc(t, `<table>
		<tr><td>Tipo barriera</td><td>Discreta</td></tr>
		<tr><td>Prezzo di emissione</td><td>100,00</td></tr>
		<tr><td>Barriera Down (%)</td><td>60%</td></tr>
	</table>`)

	got := d.ExtractFields()
	want := map[string]string{
		FieldBarrierType: "Discreta",
		FieldIssuePrice:  "100,00",
		FieldBarrierDown: "60%",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractFields mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFieldsOwnedLabelsOnly(t *testing.T) {
	// With no row of their own, barrier_down and last_price stay absent.
	d := mustDoc(t, `<table>
		<tr><td>Tipo barriera</td><td>Discreta</td></tr>
		<tr><td>Prezzo di emissione</td><td>100,00</td></tr>
	</table>`)

	got := d.ExtractFields()
	for _, name := range []string{FieldBarrierDown, FieldLastPrice, FieldIssueDate} {
		if v, ok := got[name]; ok {
			t.Errorf("%s taken from another field's row: %q", name, v)
		}
	}
	if got[FieldBarrierType] != "Discreta" || got[FieldIssuePrice] != "100,00" {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestExtractFieldsRejectsWrongShape(t *testing.T) {
	d := mustDoc(t, `<table>
		<tr><td>Barriera</td><td>Europea</td></tr>
		<tr><td>Barriera down</td><td>55%</td></tr>
		<tr><td>Scadenza</td><td>Open end</td></tr>
		<tr><td>Cedola</td><td>0,00</td></tr>
	</table>
	<div><span>Ultimo</span><span>sospeso</span></div>`)

	got := d.ExtractFields()
	want := map[string]string{
		FieldBarrierDown: "55%",
		FieldCoupon:      "0,00",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractFields mismatch (-want +got):\n%s", diff)
	}
}

func TestRowOwnedLabels(t *testing.T) {
	d := mustDoc(t, `<table>
		<tr><th>ISIN</th><th>Tipo barriera</th><th>Prezzo di emissione</th><th>Barriera Down (%)</th></tr>
		<tr><td>IT0006771510</td><td>Discreta</td><td>100,00</td><td>60%</td></tr>
	</table>`)

	rows := d.ListingRows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0].ExtractFields()
	want := map[string]string{
		FieldISIN:        "IT0006771510",
		FieldBarrierType: "Discreta",
		FieldIssuePrice:  "100,00",
		FieldBarrierDown: "60%",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row fields mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldMiss(t *testing.T) {
	d := mustDoc(t, detailHTML)

	if v, ok := d.Field("trigger"); ok {
		t.Errorf("expected miss, got %q", v)
	}
	if v, ok := d.Field("nominale"); ok {
		t.Errorf("expected sentinel value to be a miss, got %q", v)
	}
	if _, ok := d.Field(); ok {
		t.Error("expected miss with no labels")
	}
}

func TestFieldXPathFallback(t *testing.T) {
	d := mustDoc(t, `<div class="row"><span>Emittente</span><span>UniCredit</span></div>`)

	v, ok := d.Field("Emittente")
	if !ok || v != "UniCredit" {
		t.Errorf("expected UniCredit, got %q ok=%v", v, ok)
	}
}

// --- Script Metadata Tests ---

func TestScriptValues(t *testing.T) {
	d := mustDoc(t, detailHTML)

	values := d.ScriptValues()
	if values["isin"] != "IT0006771510" {
		t.Errorf("expected isin from script, got %q", values["isin"])
	}
	if values["barrierlevel"] != "20.123,45" {
		t.Errorf("expected normalized key barrierlevel, got %v", values)
	}
}

func TestBarrier(t *testing.T) {
	d := mustDoc(t, detailHTML)

	info, ok := d.Barrier()
	if !ok {
		t.Fatal("expected barrier metadata")
	}
	want := BarrierInfo{Level: "20.123,45", Type: "Europea", Reached: "false"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("Barrier mismatch (-want +got):\n%s", diff)
	}

	if _, ok := mustDoc(t, `<html><body><p>none</p></body></html>`).Barrier(); ok {
		t.Error("expected no barrier metadata")
	}
}

// --- Listing Tests ---

func TestListingRows(t *testing.T) {
	d := mustDoc(t, listingHTML)

	rows := d.ListingRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.ISIN() != "IT0006771510" {
		t.Errorf("expected ISIN IT0006771510, got %q", first.ISIN())
	}
	wantHeaders := []string{"isin", "nome", "emittente", "barriera", "cedola"}
	if diff := cmp.Diff(wantHeaders, first.Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if link := first.DetailLink("IT0006771510"); link != "https://www.example.it/scheda/IT0006771510" {
		t.Errorf("unexpected detail link %q", link)
	}

	fields := first.ExtractFields()
	want := map[string]string{
		FieldISIN:        "IT0006771510",
		FieldName:        "Phoenix Memory su FTSE MIB",
		FieldIssuer:      "Intesa Sanpaolo",
		FieldBarrierDown: "60%",
		FieldCoupon:      "5%",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("row fields mismatch (-want +got):\n%s", diff)
	}

	second := rows[1].ExtractFields()
	if _, ok := second[FieldBarrierDown]; ok {
		t.Error("sentinel barrier should be absent")
	}
	if rows[1].DetailLink("DE000VU5FFT5") != "" {
		t.Error("row without links should have no detail link")
	}

	if got := rows[2].ISIN(); got != "XX123" {
		t.Errorf("malformed ISIN should be returned raw, got %q", got)
	}
}

func TestRowISINFromText(t *testing.T) {
	d := mustDoc(t, `<table>
		<tr><th>Prodotto</th><th>Prezzo</th></tr>
		<tr><td><a href="/p/de000hv4bx00">Bonus DE000HV4BX00</a></td><td>101,2</td></tr>
	</table>`)

	rows := d.ListingRows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0].ISIN(); got != "DE000HV4BX00" {
		t.Errorf("expected ISIN from row text, got %q", got)
	}
}

func TestISINs(t *testing.T) {
	d := mustDoc(t, listingHTML)

	got := d.ISINs()
	want := []string{"IT0006771510", "DE000VU5FFT5"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ISINs mismatch (-want +got):\n%s", diff)
	}
}

// --- Basket Tests ---

func TestUnderlyings(t *testing.T) {
	d := mustDoc(t, basketHTML)

	got := d.Underlyings()
	want := []UnderlyingRaw{
		{Name: "Eni", Strike: "14,20", Spot: "13,10", Barrier: "8,52"},
		{Name: "Enel", Strike: "6,10", Spot: "6,40", Barrier: "3,66", WorstOf: "X"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Underlyings mismatch (-want +got):\n%s", diff)
	}

	if u := mustDoc(t, detailHTML).Underlyings(); u != nil {
		t.Errorf("expected no basket on a key/value page, got %v", u)
	}
}

func TestTable(t *testing.T) {
	d := mustDoc(t, basketHTML)

	table := d.Table("table.basket")
	if len(table) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table))
	}
	if table[1][0] != "Eni" || table[1][1] != "14,20" {
		t.Errorf("expected [Eni, 14,20], got %v", table[1])
	}
	if len(d.Table("#missing")) != 0 {
		t.Error("expected empty table for missing selector")
	}
}

func TestTables(t *testing.T) {
	tables := mustDoc(t, basketHTML).Tables()
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if len(tables[0]) != 3 || len(tables[1]) != 2 {
		t.Errorf("expected 3 and 2 rows, got %d and %d", len(tables[0]), len(tables[1]))
	}
	if len(mustDoc(t, "<p>no tables</p>").Tables()) != 0 {
		t.Error("expected no tables")
	}
}

// --- Parser Tests ---

func TestParse(t *testing.T) {
	p := New(testLogger)

	doc, err := p.Parse(makeResp("https://www.example.it/listing", listingHTML))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(doc.ListingRows()) == 0 {
		t.Error("expected rows from parsed document")
	}

	_, err = p.Parse(makeResp("https://www.example.it/empty", ""))
	if !errors.Is(err, types.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func BenchmarkExtractFields(b *testing.B) {
	for i := 0; i < b.N; i++ {
		d, _ := NewDocument([]byte(detailHTML), "")
		d.ExtractFields()
	}
}

func BenchmarkListingRows(b *testing.B) {
	d, _ := NewDocument([]byte(listingHTML), "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.ListingRows()
	}
}
