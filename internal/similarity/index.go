package similarity

import (
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// Metadata is the denormalized view of a request kept alongside its
// fingerprint, so query results are useful without a store round trip.
type Metadata struct {
	RequestID   string    `json:"request_id"`
	Priority    string    `json:"priority,omitempty"`
	Location    string    `json:"location,omitempty"`
	Items       []string  `json:"items,omitempty"`
	VictimCount int       `json:"victim_count,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result is one ranked match.
type Result struct {
	RequestID string   `json:"request_id"`
	Score     float64  `json:"similarity_score"`
	Document  string   `json:"document"`
	Metadata  Metadata `json:"metadata"`
}

// Index stores one entry per committed request and answers ranked queries by
// content. Entries are never mutated; they are removed only when the request
// is deleted. Implementations must be safe for concurrent use and
// deterministic: the same query against the same contents yields the same
// ranked output.
type Index interface {
	// Store appends an entry for the record. Called exactly once per
	// committed request.
	Store(rec *models.DisasterRequest) error

	// Query returns up to k entries ranked most similar first. An empty
	// index yields an empty result, not an error.
	Query(text string, k int) ([]Result, error)

	// Remove deletes the entry for the request id. No-op if absent.
	Remove(requestID string)

	// Len returns the number of stored entries.
	Len() int
}

// entry is what every in-memory backend keeps per request.
type entry struct {
	id          string
	fingerprint []float32
	document    string
	meta        Metadata
	order       int // insertion order, used as the stable tie-break
}

func newEntry(rec *models.DisasterRequest, dims, order int) entry {
	doc := rec.SearchableText()
	return entry{
		id:          rec.RequestID,
		fingerprint: Fingerprint(doc, dims),
		document:    doc,
		meta: Metadata{
			RequestID:   rec.RequestID,
			Priority:    rec.Priority,
			Location:    rec.Location,
			Items:       rec.Items,
			VictimCount: rec.VictimCount,
			Timestamp:   rec.Timestamp,
		},
		order: order,
	}
}
