package similarity

import (
	"sort"
	"sync"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// BruteForceIndex ranks by exhaustive cosine comparison over fingerprints.
// Retrieval cost is linear in the number of stored entries, which is the
// contract; no sub-linear indexing is required. Thread-safe.
type BruteForceIndex struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
	dims    int
}

// NewBruteForceIndex creates an empty index; dims <= 0 uses DefaultDims.
func NewBruteForceIndex(dims int) *BruteForceIndex {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &BruteForceIndex{byID: make(map[string]int), dims: dims}
}

// Store appends a fingerprint entry for the record.
func (b *BruteForceIndex) Store(rec *models.DisasterRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := newEntry(rec, b.dims, len(b.entries))
	b.byID[e.id] = len(b.entries)
	b.entries = append(b.entries, e)
	return nil
}

// Query ranks every stored entry by cosine similarity to the query text,
// descending, with insertion order as the stable tie-break.
func (b *BruteForceIndex) Query(text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return nil, nil
	}

	q := Fingerprint(text, b.dims)
	type scored struct {
		e     *entry
		score float64
	}
	ranked := make([]scored, 0, len(b.entries))
	for i := range b.entries {
		e := &b.entries[i]
		if e.id == "" {
			continue // tombstone from Remove
		}
		ranked = append(ranked, scored{e: e, score: dot(q, e.fingerprint)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].e.order < ranked[j].e.order
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	results := make([]Result, 0, k)
	for _, s := range ranked[:k] {
		results = append(results, Result{
			RequestID: s.e.id,
			Score:     s.score,
			Document:  s.e.document,
			Metadata:  s.e.meta,
		})
	}
	return results, nil
}

// Remove tombstones the entry for the request id. No-op if absent.
func (b *BruteForceIndex) Remove(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.byID[requestID]; ok {
		b.entries[i].id = ""
		delete(b.byID, requestID)
	}
}

// Len returns the number of live entries.
func (b *BruteForceIndex) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
