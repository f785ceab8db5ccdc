package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UnderlyingRaw is one row of a basket table, as text.
type UnderlyingRaw struct {
	Name    string
	Strike  string
	Spot    string
	Barrier string
	WorstOf string
}

var (
	basketNameHeaders    = []string{"sottostante", "underlying"}
	basketStrikeHeaders  = []string{"strike", "livello iniziale", "prezzo iniziale", "initial"}
	basketSpotHeaders    = []string{"spot", "ultimo", "prezzo", "valore corrente", "last"}
	basketBarrierHeaders = []string{"barriera", "barrier", "livello barriera"}
	basketWorstHeaders   = []string{"worst", "peggiore"}
)

// Underlyings reads the first basket table on the page: a table whose header
// names an underlying column and at least one strike, spot, barrier or
// worst-of column, and no ISIN column. It returns nil when the page has no
// such table.
func (d *Document) Underlyings() []UnderlyingRaw {
	var out []UnderlyingRaw

	d.doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		trs := table.Find("tr")
		var headers []string
		trs.First().ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, normalizeLabel(c.Text()))
		})

		// Listing tables of related products are not baskets.
		if columnIndex(headers, []string{"isin"}, map[int]bool{}) >= 0 {
			return true
		}

		taken := make(map[int]bool)
		nameCol := columnIndex(headers, basketNameHeaders, taken)
		if nameCol < 0 {
			return true
		}
		strikeCol := columnIndex(headers, basketStrikeHeaders, taken)
		barrierCol := columnIndex(headers, basketBarrierHeaders, taken)
		worstCol := columnIndex(headers, basketWorstHeaders, taken)
		spotCol := columnIndex(headers, basketSpotHeaders, taken)
		if strikeCol < 0 && spotCol < 0 && barrierCol < 0 && worstCol < 0 {
			return true
		}

		trs.Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, cleanText(c.Text()))
			})
			name := cellAt(cells, nameCol)
			if !usable(name) {
				return
			}
			out = append(out, UnderlyingRaw{
				Name:    name,
				Strike:  cellAt(cells, strikeCol),
				Spot:    cellAt(cells, spotCol),
				Barrier: cellAt(cells, barrierCol),
				WorstOf: cellAt(cells, worstCol),
			})
		})
		return len(out) == 0
	})
	return out
}

// columnIndex returns the first free column whose header contains one of
// names, and marks it as taken.
func columnIndex(headers []string, names []string, taken map[int]bool) int {
	for i, h := range headers {
		if taken[i] {
			continue
		}
		for _, n := range names {
			if strings.Contains(h, n) {
				taken[i] = true
				return i
			}
		}
	}
	return -1
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// Table parses the first table matching selector into rows of cell text.
func (d *Document) Table(selector string) [][]string {
	return tableRows(d.doc.Find(selector).First())
}

// Tables parses every table in the page, outermost first.
func (d *Document) Tables() [][][]string {
	var tables [][][]string
	d.doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if rows := tableRows(t); len(rows) > 0 {
			tables = append(tables, rows)
		}
	})
	return tables
}

func tableRows(t *goquery.Selection) [][]string {
	var table [][]string

	t.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cleanText(cell.Text()))
		})
		if len(cells) > 0 {
			table = append(table, cells)
		}
	})

	return table
}
