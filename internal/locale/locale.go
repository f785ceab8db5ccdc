// Package locale converts Italian-formatted strings scraped from certificate pages
// (numbers, percentages, DD/MM/YYYY dates) into typed values.
//
// Every function reports absence with a false second return value; callers store
// absent values as null, never as zero.
package locale

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the output layout of ParseDate.
const ISODate = "2006-01-02"

// PivotYear splits two-digit years: below it maps to 20xx, otherwise to 19xx.
const PivotYear = 50

var sentinels = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"---":  true,
	"—":    true,
	"–":    true,
	"n/a":  true,
	"na":   true,
	"n.a.": true,
	"n.d.": true,
	"nd":   true,
	"n.d":  true,
	"null": true,
	"nan":  true,
}

var (
	spaceReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&#160;", " ",
		"\u00a0", " ",
		"\u202f", " ",
		"\u2009", " ",
	)
	currencyRe  = regexp.MustCompile(`(?i)\b(eur|usd|gbp|chf|jpy)\b`)
	nonNumberRe = regexp.MustCompile(`[^0-9,.\-+]`)
	dmyRe       = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	isoRe       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
)

// Parser holds the parsing policy. The zero value reproduces the historical
// behavior where a literal zero is treated as absent data.
type Parser struct {
	// KeepZero makes an exact zero a valid value instead of "absent".
	KeepZero bool
}

var defaultParser = Parser{}

// ParseNumber parses an Italian-formatted number ("1.234,56" -> 1234.56).
func ParseNumber(raw string) (float64, bool) { return defaultParser.Number(raw) }

// ParsePercent parses a percentage such as "70 %" or "70&nbsp;%" into 70.
func ParsePercent(raw string) (float64, bool) { return defaultParser.Percent(raw) }

// ParseDate parses DD/MM/YY or DD/MM/YYYY into YYYY-MM-DD.
func ParseDate(raw string) (string, bool) { return defaultParser.Date(raw) }

// IsSentinel reports whether raw is one of the "no data" placeholders.
func IsSentinel(raw string) bool {
	return sentinels[strings.ToLower(strings.TrimSpace(Clean(raw)))]
}

// Clean replaces HTML and Unicode non-breaking spaces with plain spaces and
// collapses runs of whitespace.
func Clean(raw string) string {
	return strings.Join(strings.Fields(spaceReplacer.Replace(raw)), " ")
}

// Number parses a number using the Italian separator convention.
//
// If both ',' and '.' appear, '.' is a thousands separator and ',' the decimal
// point. A lone ',' is the decimal point. US-style "1,234.56" is not recognised.
func (p Parser) Number(raw string) (float64, bool) {
	s := Clean(raw)
	if sentinels[strings.ToLower(s)] {
		return 0, false
	}

	s = currencyRe.ReplaceAllString(s, "")
	s = nonNumberRe.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "+")
	if s == "" || s == "-" {
		return 0, false
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if v == 0 && !p.KeepZero {
		return 0, false
	}
	return v, true
}

// Percent parses a percentage value. The '%' sign is optional.
func (p Parser) Percent(raw string) (float64, bool) {
	return p.Number(strings.ReplaceAll(raw, "%", ""))
}

// Date parses a day-first date and returns it as YYYY-MM-DD.
// The "01/01/1900" placeholder used by the source sites for "no maturity" is null.
func (p Parser) Date(raw string) (string, bool) {
	s := Clean(raw)
	if sentinels[strings.ToLower(s)] {
		return "", false
	}

	if m := isoRe.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3])
	}

	// Dates are often followed by a time or prefixed with a weekday.
	for _, tok := range strings.Fields(s) {
		m := dmyRe.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		year := m[3]
		if len(year) == 2 {
			yy, _ := strconv.Atoi(year)
			if yy < PivotYear {
				year = fmt.Sprintf("20%02d", yy)
			} else {
				year = fmt.Sprintf("19%02d", yy)
			}
		}
		return buildDate(year, m[2], m[1])
	}
	return "", false
}

func buildDate(year, month, day string) (string, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	mo, err := strconv.Atoi(month)
	if err != nil {
		return "", false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	if y == 1900 && mo == 1 && d == 1 {
		return "", false
	}

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/02 into March; reject anything that moved.
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return "", false
	}
	return t.Format(ISODate), true
}
