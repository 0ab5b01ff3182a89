// Package models defines the core data types shared across the intake
// pipeline: disaster requests, clarification sessions, and agent updates.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request status lifecycle. A request is created as StatusPending, moves to
// StatusProcessing when an agent claims it, and reaches a terminal state via
// agent updates. Updates carry arbitrary status strings from third-party
// agents; only the constants below have lifecycle semantics (Cleanup removes
// exactly fulfilled and cancelled records).
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFulfilled  = "fulfilled"
	StatusCancelled  = "cancelled"
)

// Priority levels accepted on a DisasterRequest.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Coordinates is the result of a successful geocoding call. A request whose
// address could not be geocoded simply has no Coordinates.
type Coordinates struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	City             string  `json:"city,omitempty"`
	State            string  `json:"state,omitempty"`
	Country          string  `json:"country,omitempty"`
	Postcode         string  `json:"postcode,omitempty"`
}

// MatchedSupplier identifies the supplier an agent matched to a request.
type MatchedSupplier struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Contact  string `json:"contact,omitempty"`
	Distance string `json:"distance,omitempty"`
}

// DisasterRequest is a committed relief request. RequestID is assigned at
// first commit and never changes; the record is inserted into the stores
// exactly once, at the moment it is judged complete or its follow-up round
// is exhausted.
type DisasterRequest struct {
	RequestID       string       `json:"request_id"`
	Items           []string     `json:"items"`
	QuantityNeeded  string       `json:"quantity_needed,omitempty"`
	Location        string       `json:"location,omitempty"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	Priority        string       `json:"priority,omitempty"`
	Contact         string       `json:"contact,omitempty"`
	VictimCount     int          `json:"victim_count,omitempty"`
	AdditionalNotes string       `json:"additional_notes,omitempty"`

	// RawInput accumulates every turn that produced this record: the
	// original report, then one "\n[Follow-up]: <text>" suffix per round.
	RawInput  string    `json:"raw_input,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Status       string           `json:"status"`
	AgentID      string           `json:"agent_id,omitempty"`
	AgentAddress string           `json:"agent_address,omitempty"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
	LastUpdated  *time.Time       `json:"last_updated,omitempty"`
	Matched      *MatchedSupplier `json:"matched_supplier,omitempty"`
	ETA          string           `json:"eta,omitempty"`

	FollowUpCompleted bool `json:"follow_up_completed,omitempty"`
}

// Clone returns a shallow copy of the request. Pointer fields stay shared:
// writers replace those pointers wholesale rather than mutating the values
// behind them, so a clone taken under the owning store's lock is safe to
// read without further synchronization.
func (r *DisasterRequest) Clone() *DisasterRequest {
	cp := *r
	return &cp
}

// SearchableText serializes the request into the flat text the similarity
// index fingerprints and the keyword scorer scans.
func (r *DisasterRequest) SearchableText() string {
	var parts []string
	if len(r.Items) > 0 {
		parts = append(parts, "Items: "+strings.Join(r.Items, ", "))
	}
	if r.Location != "" {
		parts = append(parts, "Location: "+r.Location)
	}
	if r.Priority != "" {
		parts = append(parts, "Priority: "+r.Priority)
	}
	if r.AdditionalNotes != "" {
		parts = append(parts, "Notes: "+r.AdditionalNotes)
	}
	if r.VictimCount > 0 {
		parts = append(parts, fmt.Sprintf("Victim Count: %d", r.VictimCount))
	}
	if r.RawInput != "" {
		parts = append(parts, "Raw Input: "+r.RawInput)
	}
	return strings.Join(parts, " ")
}

// UrgencyLevel maps priority to the 1-4 score agents use for triage.
func (r *DisasterRequest) UrgencyLevel() int {
	switch strings.ToLower(r.Priority) {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// NewRequestID generates an id of the form REQ-<unix ms>-<8 hex chars>.
func NewRequestID(now time.Time) string {
	return fmt.Sprintf("REQ-%d-%s", now.UnixMilli(), shortHex())
}

// NewSessionID generates an id of the form SESSION-<unix ms>-<8 hex chars>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("SESSION-%d-%s", now.UnixMilli(), shortHex())
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AgentUpdate is one entry in the append-only update log. Entries are keyed
// by arrival order and never deduplicated or mutated.
type AgentUpdate struct {
	ID              string           `json:"id"`
	RequestID       string           `json:"request_id"`
	AgentID         string           `json:"agent_id"`
	Status          string           `json:"status"`
	MatchedSupplier *MatchedSupplier `json:"matched_supplier,omitempty"`
	ETA             string           `json:"eta,omitempty"`
	ReceivedAt      time.Time        `json:"received_at"`
}

// ClarificationSession holds the partial record captured when the checker
// found the intake incomplete. A session is consumed (read then deleted) by
// the follow-up that resumes it; it is never mutated in place.
type ClarificationSession struct {
	SessionID     string           `json:"session_id"`
	OriginalData  *DisasterRequest `json:"original_data"`
	OriginalInput string           `json:"original_input"`
	Source        string           `json:"source,omitempty"`
	Rounds        int              `json:"rounds"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Expired reports whether the session is past its TTL. The boundary
// now == ExpiresAt counts as expired so the lazy check and the sweep agree.
func (s *ClarificationSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
