package similarity

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// HNSWIndex ranks fingerprints with a Hierarchical Navigable Small World
// graph backed by github.com/coder/hnsw. Worth it only for large indexes;
// the brute-force backend is the default and keeps stricter determinism.
//
// The underlying hnsw.Graph.Delete can leave dangling neighbor pointers that
// panic during Search, so the index keeps a shadow map of entries and
// rebuilds the graph on removal.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	entries map[string]entry
	dims    int
	m       int
	ef      int
}

// HNSWConfig holds the graph parameters.
type HNSWConfig struct {
	// Dims is the fingerprint length. Default: DefaultDims.
	Dims int

	// M is the maximum number of neighbors per node. Default: 16.
	M int

	// EfSearch is the number of candidates considered during search.
	// Default: 100.
	EfSearch int
}

// NewHNSWIndex creates an empty HNSW-backed index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.Dims <= 0 {
		cfg.Dims = DefaultDims
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 100
	}
	x := &HNSWIndex{
		entries: make(map[string]entry),
		dims:    cfg.Dims,
		m:       cfg.M,
		ef:      cfg.EfSearch,
	}
	x.graph = x.newGraph(nil)
	return x
}

func (x *HNSWIndex) newGraph(nodes []hnsw.Node[string]) *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = x.m
	g.EfSearch = x.ef
	g.Distance = hnsw.CosineDistance
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return g
}

// Store appends an entry for the record.
func (x *HNSWIndex) Store(rec *models.DisasterRequest) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	e := newEntry(rec, x.dims, len(x.entries))
	x.entries[e.id] = e
	x.graph.Add(hnsw.MakeNode(e.id, e.fingerprint))
	return nil
}

// Query returns up to k entries ranked by cosine similarity, descending.
func (x *HNSWIndex) Query(text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph.Len() == 0 {
		return nil, nil
	}

	q := Fingerprint(text, x.dims)
	nodes := x.graph.Search(q, k)

	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		e, ok := x.entries[n.Key]
		if !ok {
			continue
		}
		results = append(results, Result{
			RequestID: e.id,
			Score:     1.0 - float64(hnsw.CosineDistance(q, n.Value)),
			Document:  e.document,
			Metadata:  e.meta,
		})
	}
	return results, nil
}

// Remove deletes the entry and rebuilds the graph to avoid dangling
// neighbor pointers. No-op if absent.
func (x *HNSWIndex) Remove(requestID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[requestID]; !ok {
		return
	}
	delete(x.entries, requestID)

	nodes := make([]hnsw.Node[string], 0, len(x.entries))
	for _, e := range x.entries {
		nodes = append(nodes, hnsw.MakeNode(e.id, e.fingerprint))
	}
	x.graph = x.newGraph(nodes)
}

// Len returns the number of stored entries.
func (x *HNSWIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
