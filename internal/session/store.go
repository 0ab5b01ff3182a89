// Package session tracks in-flight clarification dialogues. Each session
// captures the partial record from an incomplete intake and survives until a
// follow-up consumes it or its TTL lapses.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// ErrNotFound is returned when a session id is unknown or expired. The two
// cases are deliberately indistinguishable: an expired session behaves as if
// it never existed.
var ErrNotFound = errors.New("session not found or expired")

// DefaultTTL is the clarification window.
const DefaultTTL = 30 * time.Minute

// Store holds clarification sessions with TTL expiry. Safe for concurrent
// use. Expiry on read is authoritative; Sweep only garbage-collects.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.ClarificationSession
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a Store with the given TTL; ttl <= 0 uses DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*models.ClarificationSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new session for the partial record and returns it. Session
// ids never collide: the id carries a millisecond timestamp plus random hex.
func (s *Store) Create(data *models.DisasterRequest, originalInput, source string) *models.ClarificationSession {
	now := s.now()
	sess := &models.ClarificationSession{
		SessionID:     models.NewSessionID(now),
		OriginalData:  data,
		OriginalInput: originalInput,
		Source:        source,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.SessionID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session for id, or ErrNotFound if it is unknown or past
// its expiry. An expired session is removed on the spot.
func (s *Store) Get(id string) (*models.ClarificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions, counting out expired ones that
// have not been swept yet.
func (s *Store) Len() int {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
