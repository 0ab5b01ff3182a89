package similarity

import (
	"sort"
	"strings"
	"sync"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// minKeywordLen filters out short tokens ("the", "at", "and") from queries.
const minKeywordLen = 4

// KeywordIndex is the fallback ranking: no fingerprints, just counting how
// many query tokens appear as substrings of each record's serialized text.
// Records that match nothing are filtered out entirely.
type KeywordIndex struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
}

// NewKeywordIndex creates an empty keyword index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{byID: make(map[string]int)}
}

// Store appends an entry for the record.
func (x *KeywordIndex) Store(rec *models.DisasterRequest) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	e := newEntry(rec, DefaultDims, len(x.entries))
	x.byID[e.id] = len(x.entries)
	x.entries = append(x.entries, e)
	return nil
}

// Query tokenizes on whitespace, keeps tokens longer than 3 characters, and
// scores each record by the number of tokens contained in its text. Only
// positive scores are returned, descending, insertion order breaking ties.
func (x *KeywordIndex) Query(text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if len(tok) >= minKeywordLen {
			keywords = append(keywords, tok)
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		e     *entry
		score int
	}
	var ranked []scored
	for i := range x.entries {
		e := &x.entries[i]
		if e.id == "" {
			continue
		}
		doc := strings.ToLower(e.document)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(doc, kw) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{e: e, score: score})
		}
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
			Score:     float64(s.score),
			Document:  s.e.document,
			Metadata:  s.e.meta,
		})
	}
	return results, nil
}

// Remove tombstones the entry for the request id. No-op if absent.
func (x *KeywordIndex) Remove(requestID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if i, ok := x.byID[requestID]; ok {
		x.entries[i].id = ""
		delete(x.byID, requestID)
	}
}

// Len returns the number of live entries.
func (x *KeywordIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}
