package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scriptPairRe matches `key: "value"`, `"key": 'value'`, `key = 12,5` and
// `key: true` inside inline scripts.
var scriptPairRe = regexp.MustCompile(
	`["']?([A-Za-z_][\w\-]*)["']?\s*[:=]\s*(?:"([^"\n]*)"|'([^'\n]*)'|(-?\d[\d.,]*|true|false))`)

// BarrierInfo is the barrier metadata embedded in a page's scripts.
type BarrierInfo struct {
	Percent string
	Level   string
	Type    string
	Reached string
}

// Empty reports whether no barrier key was found.
func (b BarrierInfo) Empty() bool {
	return b.Percent == "" && b.Level == "" && b.Type == "" && b.Reached == ""
}

var (
	barrierPercentKeys = []string{"barrierpercentage", "barrierpercent", "barrierpct", "barrierdown", "barriera", "barrier"}
	barrierLevelKeys   = []string{"barrierlevel", "livellobarriera", "barriervalue"}
	barrierTypeKeys    = []string{"barriertype", "tipobarriera", "tipologiabarriera"}
	barrierReachedKeys = []string{"barrierreached", "barrierhit", "barrierbreached", "barrieratoccata", "eventobarriera"}
)

// ScriptValues returns key/value pairs found in inline <script> blocks. Keys
// are lower-cased with '_' and '-' removed; the first occurrence of a key wins.
func (d *Document) ScriptValues() map[string]string {
	values := make(map[string]string)

	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			return
		}
		for _, m := range scriptPairRe.FindAllStringSubmatch(s.Text(), -1) {
			key := scriptKey(m[1])
			if _, seen := values[key]; seen {
				continue
			}
			var v string
			switch {
			case m[2] != "":
				v = m[2]
			case m[3] != "":
				v = m[3]
			default:
				v = m[4]
			}
			if v = cleanText(v); v != "" {
				values[key] = v
			}
		}
	})
	return values
}

// Barrier reads barrier metadata from inline scripts. It is meant as a
// fallback for pages that do not show the barrier in a table.
func (d *Document) Barrier() (BarrierInfo, bool) {
	values := d.ScriptValues()
	info := BarrierInfo{
		Percent: firstKey(values, barrierPercentKeys),
		Level:   firstKey(values, barrierLevelKeys),
		Type:    firstKey(values, barrierTypeKeys),
		Reached: firstKey(values, barrierReachedKeys),
	}
	return info, !info.Empty()
}

func scriptKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}

func firstKey(values map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := values[k]; ok && usable(v) {
			return v
		}
	}
	return ""
}
