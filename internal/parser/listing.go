package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var isinTokenRe = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)

// Row is one data row of a listing table.
type Row struct {
	// Headers are the normalized column headers in column order.
	Headers []string
	// Cells maps a normalized header to the cell text. Duplicate headers keep
	// the first column.
	Cells map[string]string
	// Links are the absolute hrefs found in the row.
	Links []string
	// Text is the whitespace-normalized text of the whole row.
	Text string
}

// Field returns the cell under the first header matching one of labels,
// trying exact header equality before substring containment.
func (r Row) Field(labels ...string) (string, bool) {
	return r.lookup(query{want: normalizeLabels(labels)})
}

func (r Row) lookup(q query) (string, bool) {
	for _, exact := range []bool{true, false} {
		for _, h := range r.Headers {
			v := r.Cells[h]
			if !q.takes(v) || (!exact && q.skip != nil && q.skip(h)) {
				continue
			}
			for _, w := range q.want {
				if matchLabel(h, w, exact) {
					return v, true
				}
			}
		}
	}
	return "", false
}

// ExtractFields looks up every logical field in the row.
func (r Row) ExtractFields() map[string]string {
	return extractFields(r)
}

// ISIN returns the raw ISIN of the row: the ISIN column when there is one,
// else the first ISIN-shaped token in the row text or links. The value is not
// validated.
func (r Row) ISIN() string {
	if v, ok := r.Field(Fields[FieldISIN]...); ok {
		if m := isinTokenRe.FindString(v); m != "" {
			return m
		}
		return strings.TrimSpace(v)
	}
	if m := isinTokenRe.FindString(r.Text); m != "" {
		return m
	}
	for _, link := range r.Links {
		if m := isinTokenRe.FindString(link); m != "" {
			return m
		}
	}
	return ""
}

// DetailLink returns the row link that mentions isin. A row with a single
// link returns that link.
func (r Row) DetailLink(isin string) string {
	if isin != "" {
		for _, link := range r.Links {
			if strings.Contains(strings.ToUpper(link), strings.ToUpper(isin)) {
				return link
			}
		}
	}
	if len(r.Links) == 1 {
		return r.Links[0]
	}
	return ""
}

// ListingRows returns the data rows of every table that has a header row. The
// header row is the first row made of th cells, or the first row of the table
// when no th cells exist.
func (d *Document) ListingRows() []Row {
	var rows []Row

	d.doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		// Nested tables are handled on their own.
		trs := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(table)
		})
		if trs.Length() < 2 {
			return
		}

		headerIdx := 0
		trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
			if tr.ChildrenFiltered("th").Length() > 0 {
				headerIdx = i
				return false
			}
			return true
		})

		var headers []string
		trs.Eq(headerIdx).ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, normalizeLabel(c.Text()))
		})

		trs.Slice(headerIdx+1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
			if row, ok := d.buildRow(headers, tr); ok {
				rows = append(rows, row)
			}
		})
	})
	return rows
}

func (d *Document) buildRow(headers []string, tr *goquery.Selection) (Row, bool) {
	cells := tr.ChildrenFiltered("td, th")
	if cells.Length() == 0 {
		return Row{}, false
	}

	row := Row{
		Cells: make(map[string]string, len(headers)),
		Text:  cleanText(tr.Text()),
	}
	cells.Each(func(i int, c *goquery.Selection) {
		if i >= len(headers) || headers[i] == "" {
			return
		}
		h := headers[i]
		if _, dup := row.Cells[h]; dup {
			return
		}
		row.Headers = append(row.Headers, h)
		row.Cells[h] = cleanText(c.Text())
	})

	seen := make(map[string]bool)
	tr.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link := d.resolve(href); link != "" && !seen[link] {
			seen[link] = true
			row.Links = append(row.Links, link)
		}
	})

	if row.Text == "" {
		return Row{}, false
	}
	return row, true
}

// ISINs returns every distinct ISIN-shaped token in the page text and links,
// in document order.
func (d *Document) ISINs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		for _, m := range isinTokenRe.FindAllString(s, -1) {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}

	d.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if skipText(s.Get(0)) {
			return
		}
		for _, n := range s.Contents().Nodes {
			if n.Type == html.TextNode {
				add(n.Data)
			}
		}
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})
	return out
}
