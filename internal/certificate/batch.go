package certificate

import (
	"sync"
	"time"
)

// Batch is an insertion-ordered collection of records keyed by ISIN. A record
// added for an ISIN already present is merged into the first one.
type Batch struct {
	mu         sync.RWMutex
	order      []string
	records    map[string]*Record
	duplicates int
	derive     func(*Record)
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{
		records: make(map[string]*Record),
	}
}

// WithDerive sets fn to run on a stored record after another sighting of its
// ISIN was merged into it, so derived fields follow the merged inputs.
func (b *Batch) WithDerive(fn func(*Record)) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.derive = fn
	return b
}

// Add inserts rec and reports whether its ISIN was new. For a known ISIN the
// stored record's empty fields are filled from rec.
func (b *Batch) Add(rec *Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.records[rec.ISIN]; ok {
		existing.Merge(rec)
		if b.derive != nil {
			b.derive(existing)
		}
		b.duplicates++
		return false
	}
	b.records[rec.ISIN] = rec
	b.order = append(b.order, rec.ISIN)
	return true
}

// Get returns the record for isin.
func (b *Batch) Get(isin string) (*Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[isin]
	return rec, ok
}

// Records returns the records in discovery order.
func (b *Batch) Records() []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Record, 0, len(b.order))
	for _, isin := range b.order {
		out = append(out, b.records[isin])
	}
	return out
}

// Remove drops isin from the batch and reports whether it was present.
func (b *Batch) Remove(isin string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[isin]; !ok {
		return false
	}
	delete(b.records, isin)
	for i, v := range b.order {
		if v == isin {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of distinct ISINs.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Duplicates returns how many Add calls hit an existing ISIN.
func (b *Batch) Duplicates() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duplicates
}

// Output renders the batch document. Totals are counted from the records;
// the remaining metadata is taken from meta. A zero timestamp is set to now.
func (b *Batch) Output(meta Metadata) *Output {
	records := b.Records()

	meta.Total = len(records)
	meta.Enriched, meta.Failed = 0, 0
	for _, rec := range records {
		if rec.State == StateEnriched {
			meta.Enriched++
		}
		if rec.Failed() {
			meta.Failed++
		}
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if meta.Sources == nil {
		meta.Sources = []string{}
	}

	return &Output{
		Metadata:     meta,
		Certificates: records,
	}
}
