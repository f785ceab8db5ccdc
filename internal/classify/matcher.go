package classify

import "strings"

// Rule pairs a substring pattern with the value it selects.
type Rule[T any] struct {
	Pattern string
	Value   T
}

// FirstMatch scans rules in declared order and returns the value of the first
// rule whose pattern occurs in text, ignoring case. Declaration order is the
// tie-break when several patterns match.
func FirstMatch[T any](text string, rules []Rule[T]) (T, string, bool) {
	haystack := normalize(text)
	for _, r := range rules {
		p := strings.ToLower(wordBreaks.Replace(r.Pattern))
		if p == "" {
			continue
		}
		if strings.Contains(haystack, p) {
			return r.Value, r.Pattern, true
		}
	}
	var zero T
	return zero, "", false
}

// wordBreaks turns punctuation that separates names into spaces. It is applied
// to patterns as well, so "eur/usd" still matches "EUR/USD".
var wordBreaks = strings.NewReplacer(",", " ", ";", " ", ":", " ", "(", " ", ")", " ", "-", " ", "/", " / ")

// normalize lower-cases text and pads it with spaces so that patterns with a
// trailing or leading space also match at the edges.
func normalize(text string) string {
	return " " + strings.ToLower(strings.Join(strings.Fields(wordBreaks.Replace(text)), " ")) + " "
}
