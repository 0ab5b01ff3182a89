// Package requeststore is the canonical collection of committed requests and
// the append-only log of agent updates against them.
package requeststore

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// ErrNotFound is returned when a request id is unknown.
var ErrNotFound = errors.New("request not found")

// ErrExists is returned when a request id is committed twice. A record is
// inserted exactly once, at the moment it is judged complete.
var ErrExists = errors.New("request already stored")

// Update is the input for ApplyUpdate. Status is accepted verbatim: agents
// integrate with their own vocabularies, and only the canonical terminal
// states carry cleanup semantics.
type Update struct {
	RequestID       string                  `json:"request_id"`
	AgentID         string                  `json:"agent_id"`
	Status          string                  `json:"status"`
	MatchedSupplier *models.MatchedSupplier `json:"matched_supplier,omitempty"`
	ETA             string                  `json:"eta,omitempty"`
}

// Store holds committed requests keyed by id plus the update log.
// Thread-safe.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*models.DisasterRequest
	order    []string // commit order, for stable listings
	updates  []models.AgentUpdate
	entropy  *rand.Rand
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		requests: make(map[string]*models.DisasterRequest),
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Add commits a request. The record must already carry its id; committing
// the same id twice is an error. The store keeps its own copy, so the
// caller's record never aliases what Claim and ApplyUpdate later mutate.
func (s *Store) Add(rec *models.DisasterRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[rec.RequestID]; ok {
		return ErrExists
	}
	cp := rec.Clone()
	if cp.Status == "" {
		cp.Status = models.StatusPending
	}
	s.requests[cp.RequestID] = cp
	s.order = append(s.order, cp.RequestID)
	return nil
}

// Get returns a copy of the request for id. Read paths never hand out the
// live record; the copy is stable while agents keep updating the original.
func (s *Store) Get(id string) (*models.DisasterRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns every stored request in commit order.
func (s *Store) List() []*models.DisasterRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(*models.DisasterRequest) bool { return true })
}

// ListPending returns requests still awaiting an agent claim.
func (s *Store) ListPending() []*models.DisasterRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(r *models.DisasterRequest) bool {
		return r.Status == models.StatusPending
	})
}

// ByPriority returns requests with the given priority, commit order.
func (s *Store) ByPriority(priority string) []*models.DisasterRequest {
	p := strings.ToLower(priority)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(func(r *models.DisasterRequest) bool {
		return strings.ToLower(r.Priority) == p
	})
}

// snapshot returns copies of matching requests in commit order. Caller
// holds s.mu.
func (s *Store) snapshot(keep func(*models.DisasterRequest) bool) []*models.DisasterRequest {
	var out []*models.DisasterRequest
	for _, id := range s.order {
		if rec, ok := s.requests[id]; ok && keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Claim transitions a pending request to processing on behalf of an agent,
// recording who claimed it and when.
func (s *Store) Claim(id, agentID, agentAddress string) (*models.DisasterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	rec.Status = models.StatusProcessing
	rec.AgentID = agentID
	rec.AgentAddress = agentAddress
	rec.ProcessedAt = &now
	return rec.Clone(), nil
}

// ApplyUpdate records an agent status update. The request's status takes the
// update's value verbatim, and the update is appended to the log; log
// entries are never deduplicated or mutated. Updates for unknown requests
// are still logged.
func (s *Store) ApplyUpdate(u Update) models.AgentUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.requests[u.RequestID]; ok {
		rec.Status = u.Status
		rec.LastUpdated = &now
		if u.MatchedSupplier != nil {
			rec.Matched = u.MatchedSupplier
		}
		if u.ETA != "" {
			rec.ETA = u.ETA
		}
	}

	entry := models.AgentUpdate{
		ID:              ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		RequestID:       u.RequestID,
		AgentID:         u.AgentID,
		Status:          u.Status,
		MatchedSupplier: u.MatchedSupplier,
		ETA:             u.ETA,
		ReceivedAt:      now,
	}
	s.updates = append(s.updates, entry)
	return entry
}

// Updates returns the full update log in arrival order.
func (s *Store) Updates() []models.AgentUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

// Cleanup removes requests whose status is exactly fulfilled or cancelled
// and returns the removed ids. Pending and processing records are never
// purged implicitly.
func (s *Store) Cleanup() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, rec := range s.requests {
		if rec.Status == models.StatusFulfilled || rec.Status == models.StatusCancelled {
			delete(s.requests, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.compactOrder()
		sort.Strings(removed)
	}
	return removed
}

// Delete removes a single request by id.
func (s *Store) Delete(id string) (*models.DisasterRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.requests, id)
	s.compactOrder()
	return rec, nil
}

// compactOrder drops ids no longer present. Caller holds s.mu.
func (s *Store) compactOrder() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.requests[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// Stats summarizes the store for the stats surface.
type Stats struct {
	Total      int            `json:"total_requests"`
	ByPriority map[string]int `json:"by_priority"`
	Geocoded   int            `json:"geocoded"`
	Updates    int            `json:"updates"`
}

// Stats computes store-level counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{ByPriority: make(map[string]int), Updates: len(s.updates)}
	for _, rec := range s.requests {
		st.Total++
		p := strings.ToLower(rec.Priority)
		if p == "" {
			p = "unknown"
		}
		st.ByPriority[p]++
		if rec.Coordinates != nil {
			st.Geocoded++
		}
	}
	return st
}
