// Package monitor compares two batch documents and reports what changed per
// ISIN between runs.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/IshaanNene/CertGoat/internal/certificate"
)

// ChangeType identifies what kind of change occurred.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one difference between two runs.
type Change struct {
	ISIN     string     `json:"isin"`
	Type     ChangeType `json:"type"`
	Field    string     `json:"field,omitempty"`
	OldValue any        `json:"old_value,omitempty"`
	NewValue any        `json:"new_value,omitempty"`
}

func (c Change) String() string {
	switch c.Type {
	case ChangeModified:
		return fmt.Sprintf("%s %s: %v -> %v", c.ISIN, c.Field, display(c.OldValue), display(c.NewValue))
	default:
		return fmt.Sprintf("%s %s", c.ISIN, c.Type)
	}
}

// ignored fields change on every run.
var ignored = map[string]bool{
	"scraped_at": true,
}

// LoadOutput reads a JSON batch document written by the json backend.
func LoadOutput(path string) (*certificate.Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out certificate.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &out, nil
}

// Diff returns the changes from old to cur. Added and modified ISINs follow
// cur order, removed ones follow old order at the end. Modified fields are
// sorted by name within an ISIN.
func Diff(old, cur *certificate.Output) ([]Change, error) {
	before, err := index(old)
	if err != nil {
		return nil, err
	}
	after, err := index(cur)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, rec := range cur.Certificates {
		prev, ok := before[rec.ISIN]
		if !ok {
			changes = append(changes, Change{ISIN: rec.ISIN, Type: ChangeAdded})
			continue
		}
		changes = append(changes, compare(rec.ISIN, prev, after[rec.ISIN])...)
	}
	for _, rec := range old.Certificates {
		if _, ok := after[rec.ISIN]; !ok {
			changes = append(changes, Change{ISIN: rec.ISIN, Type: ChangeRemoved})
		}
	}
	return changes, nil
}

// index flattens every record to its JSON field map.
func index(out *certificate.Output) (map[string]map[string]any, error) {
	m := make(map[string]map[string]any, len(out.Certificates))
	for _, rec := range out.Certificates {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", rec.ISIN, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		m[rec.ISIN] = fields
	}
	return m, nil
}

func compare(isin string, old, cur map[string]any) []Change {
	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var changes []Change
	for _, k := range keys {
		if ignored[k] || reflect.DeepEqual(old[k], cur[k]) {
			continue
		}
		changes = append(changes, Change{
			ISIN:     isin,
			Type:     ChangeModified,
			Field:    k,
			OldValue: old[k],
			NewValue: cur[k],
		})
	}
	return changes
}

func display(v any) any {
	if v == nil {
		return "null"
	}
	return v
}
