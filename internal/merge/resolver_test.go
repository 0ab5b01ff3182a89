package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

func TestMerge_PreservesIdentity(t *testing.T) {
	client := &extract.FakeClient{
		MergeFunc: func(original *models.DisasterRequest, followup string) (*models.DisasterRequest, error) {
			// Collaborator tries to return a record with its own id.
			return &models.DisasterRequest{
				RequestID:      "REQ-9999-hacked",
				Items:          []string{"insulin", "bandages"},
				QuantityNeeded: "20 vials",
				Location:       original.Location,
				Contact:        "555-9999",
			}, nil
		},
	}
	r := NewResolver(client)

	original := &models.DisasterRequest{
		RequestID: "REQ-1-abc",
		Items:     []string{"medicine"},
		Location:  "123 Main Street",
	}

	merged, err := r.Merge(context.Background(), original, "we need medicine at 123 Main Street", "20 vials of insulin and bandages, call 555-9999")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if merged.RequestID != "REQ-1-abc" {
		t.Errorf("RequestID = %q, merge must never mint a new id", merged.RequestID)
	}
	if !strings.HasPrefix(merged.RawInput, "we need medicine at 123 Main Street") {
		t.Errorf("RawInput lost the original input: %q", merged.RawInput)
	}
	if !strings.HasSuffix(merged.RawInput, "[Follow-up]: 20 vials of insulin and bandages, call 555-9999") {
		t.Errorf("RawInput missing follow-up suffix: %q", merged.RawInput)
	}
	if merged.Timestamp.IsZero() {
		t.Error("expected fresh timestamp")
	}
	if !merged.FollowUpCompleted {
		t.Error("expected FollowUpCompleted")
	}
	if merged.Status != models.StatusPending {
		t.Errorf("Status = %q, want pending", merged.Status)
	}
}

func TestMerge_FailurePropagates(t *testing.T) {
	client := &extract.FakeClient{
		MergeFunc: func(*models.DisasterRequest, string) (*models.DisasterRequest, error) {
			return nil, extract.ErrExtractionFailed
		},
	}
	r := NewResolver(client)

	_, err := r.Merge(context.Background(), &models.DisasterRequest{RequestID: "REQ-1-abc"}, "orig", "followup")
	if !errors.Is(err, ErrMergeFailed) {
		t.Errorf("expected ErrMergeFailed, got %v", err)
	}
}
