package similarity

import (
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

func request(id string, items []string, location string) *models.DisasterRequest {
	return &models.DisasterRequest{
		RequestID: id,
		Items:     items,
		Location:  location,
		Priority:  models.PriorityMedium,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestFingerprint_UnitNorm(t *testing.T) {
	v := Fingerprint("need tents and bottled water downtown", DefaultDims)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("fingerprint norm^2 = %f, want 1", sum)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("insulin and bandages at the clinic", DefaultDims)
	b := Fingerprint("insulin and bandages at the clinic", DefaultDims)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical text must produce identical fingerprints")
	}
}

func TestFingerprint_EmptyText(t *testing.T) {
	v := Fingerprint("", DefaultDims)
	for i, x := range v {
		if x != 0 {
			t.Fatalf("empty text slot %d = %f, want 0", i, x)
		}
	}
}

// backends drives the shared contract tests over every Index implementation.
func backends() map[string]func() Index {
	return map[string]func() Index{
		"bruteforce": func() Index { return NewBruteForceIndex(DefaultDims) },
		"keyword":    func() Index { return NewKeywordIndex() },
		"hnsw":       func() Index { return NewHNSWIndex(HNSWConfig{}) },
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			results, err := mk().Query("water", 5)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != 0 {
				t.Errorf("empty index returned %d results", len(results))
			}
		})
	}
}

func TestQuery_SelfMatchRanksFirst(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := mk()
			a := request("REQ-1-a", []string{"insulin", "bandages"}, "123 Main Street clinic")
			b := request("REQ-2-b", []string{"tents", "blankets"}, "riverside campground area")
			if err := idx.Store(a); err != nil {
				t.Fatal(err)
			}
			if err := idx.Store(b); err != nil {
				t.Fatal(err)
			}

			results, err := idx.Query(a.SearchableText(), 2)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) == 0 {
				t.Fatal("expected results")
			}
			if results[0].RequestID != "REQ-1-a" {
				t.Errorf("self match ranked %q first, want REQ-1-a", results[0].RequestID)
			}
		})
	}
}

func TestQuery_TruncatesToK(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := mk()
			for i := 0; i < 10; i++ {
				r := request(fmt.Sprintf("REQ-%d-x", i), []string{"water", "food"}, "downtown shelter zone")
				if err := idx.Store(r); err != nil {
					t.Fatal(err)
				}
			}
			results, err := idx.Query("water food shelter", 3)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) > 3 {
				t.Errorf("got %d results, want <= 3", len(results))
			}
		})
	}
}

func TestQuery_Deterministic(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := mk()
			for i := 0; i < 5; i++ {
				r := request(fmt.Sprintf("REQ-%d-x", i), []string{"water"}, "central square fountain")
				if err := idx.Store(r); err != nil {
					t.Fatal(err)
				}
			}
			first, err := idx.Query("water central", 5)
			if err != nil {
				t.Fatal(err)
			}
			second, err := idx.Query("water central", 5)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Error("repeated identical queries must return identical rankings")
			}
		})
	}
}

func TestRemove(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := mk()
			r := request("REQ-1-a", []string{"water"}, "downtown shelter zone")
			if err := idx.Store(r); err != nil {
				t.Fatal(err)
			}
			idx.Remove("REQ-1-a")
			idx.Remove("REQ-1-a") // idempotent

			if idx.Len() != 0 {
				t.Errorf("Len = %d after remove, want 0", idx.Len())
			}
			results, err := idx.Query("water downtown", 5)
			if err != nil {
				t.Fatal(err)
			}
			for _, res := range results {
				if res.RequestID == "REQ-1-a" {
					t.Error("removed entry still returned")
				}
			}
		})
	}
}

func TestKeywordIndex_FiltersAndTieBreaks(t *testing.T) {
	idx := NewKeywordIndex()
	a := request("REQ-1-a", []string{"water", "blankets"}, "north district")
	b := request("REQ-2-b", []string{"water"}, "south district")
	c := request("REQ-3-c", []string{"generators"}, "east district")
	for _, r := range []*models.DisasterRequest{a, b, c} {
		if err := idx.Store(r); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Query("water blankets", 5)
	if err != nil {
		t.Fatal(err)
	}

	// c matches nothing and must be filtered; a matches both keywords.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].RequestID != "REQ-1-a" || results[0].Score != 2 {
		t.Errorf("top result = %+v, want REQ-1-a with score 2", results[0])
	}
	if results[1].RequestID != "REQ-2-b" {
		t.Errorf("second result = %+v, want REQ-2-b", results[1])
	}

	// Short query tokens are dropped entirely.
	none, err := idx.Query("at on in", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("short tokens should match nothing, got %+v", none)
	}
}

func TestBruteForce_StableTieBreakByInsertion(t *testing.T) {
	idx := NewBruteForceIndex(DefaultDims)
	// Identical documents score identically; insertion order must decide.
	for i := 0; i < 3; i++ {
		r := request(fmt.Sprintf("REQ-%d-x", i), []string{"water"}, "downtown shelter zone")
		if err := idx.Store(r); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Query("water downtown", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"REQ-0-x", "REQ-1-x", "REQ-2-x"}
	for i, w := range want {
		if results[i].RequestID != w {
			t.Errorf("result %d = %q, want %q", i, results[i].RequestID, w)
		}
	}
}
