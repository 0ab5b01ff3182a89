package models

import (
	"strings"
	"testing"
	"time"
)

func TestSearchableText(t *testing.T) {
	r := &DisasterRequest{
		Items:           []string{"tents", "water"},
		Location:        "123 Main Street",
		Priority:        PriorityHigh,
		AdditionalNotes: "collapsed roof",
		VictimCount:     75,
		RawInput:        "need tents and water",
	}

	text := r.SearchableText()

	for _, want := range []string{
		"Items: tents, water",
		"Location: 123 Main Street",
		"Priority: high",
		"Notes: collapsed roof",
		"Victim Count: 75",
		"Raw Input: need tents and water",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("SearchableText missing %q in %q", want, text)
		}
	}
}

func TestSearchableText_EmptyRequest(t *testing.T) {
	r := &DisasterRequest{}
	if got := r.SearchableText(); got != "" {
		t.Errorf("empty request should serialize to empty text, got %q", got)
	}
}

func TestUrgencyLevel(t *testing.T) {
	cases := []struct {
		priority string
		want     int
	}{
		{PriorityCritical, 4},
		{"CRITICAL", 4},
		{PriorityHigh, 3},
		{PriorityMedium, 2},
		{PriorityLow, 1},
		{"", 2},
		{"unknown", 2},
	}
	for _, tc := range cases {
		r := &DisasterRequest{Priority: tc.priority}
		if got := r.UrgencyLevel(); got != tc.want {
			t.Errorf("UrgencyLevel(%q) = %d, want %d", tc.priority, got, tc.want)
		}
	}
}

func TestNewRequestID_Format(t *testing.T) {
	now := time.Now()
	id := NewRequestID(now)

	if !strings.HasPrefix(id, "REQ-") {
		t.Errorf("expected REQ- prefix, got %q", id)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 3 || len(parts[2]) != 8 {
		t.Errorf("expected REQ-<ms>-<8 hex>, got %q", id)
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID(now)
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestSessionExpiredBoundary(t *testing.T) {
	now := time.Now()
	s := &ClarificationSession{ExpiresAt: now}

	if !s.Expired(now) {
		t.Error("now == expiresAt must count as expired")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Error("session should not be expired before expiresAt")
	}
	if !s.Expired(now.Add(time.Second)) {
		t.Error("session should be expired after expiresAt")
	}
}
