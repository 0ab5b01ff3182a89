package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSaveRequestAndLoad(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	rec := &models.DisasterRequest{
		RequestID: "REQ-1-a",
		Items:     []string{"water", "blankets"},
		Location:  "742 Evergreen Terrace, Springfield",
		Priority:  models.PriorityHigh,
		Status:    models.StatusPending,
		Source:    "api",
		Timestamp: time.Now(),
	}
	if err := a.SaveRequest(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := a.Requests(ctx, 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 archived request, got %d", len(got))
	}
	if got[0].RequestID != "REQ-1-a" || len(got[0].Items) != 2 {
		t.Errorf("round trip lost fields: %+v", got[0])
	}
}

func TestSaveRequest_UpsertKeepsLatestStatus(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	rec := &models.DisasterRequest{
		RequestID: "REQ-1-a",
		Status:    models.StatusPending,
		Priority:  models.PriorityMedium,
		Timestamp: time.Now(),
	}
	if err := a.SaveRequest(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Status = models.StatusFulfilled
	if err := a.SaveRequest(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := a.Requests(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("upsert created %d rows, want 1", len(got))
	}
	if got[0].Status != models.StatusFulfilled {
		t.Errorf("Status = %q, want fulfilled", got[0].Status)
	}
}

func TestSaveUpdateAndQuery(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	for i, u := range []models.AgentUpdate{
		{ID: "01A", RequestID: "REQ-1-a", AgentID: "a1", Status: "processing"},
		{ID: "01B", RequestID: "REQ-1-a", AgentID: "a1", Status: "fulfilled"},
		{ID: "01C", RequestID: "REQ-2-b", AgentID: "a2", Status: "processing"},
	} {
		u.ReceivedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := a.SaveUpdate(ctx, u); err != nil {
			t.Fatalf("save update %d: %v", i, err)
		}
	}

	forReq, err := a.Updates(ctx, "REQ-1-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(forReq) != 2 || forReq[0].Status != "processing" || forReq[1].Status != "fulfilled" {
		t.Errorf("per-request log wrong: %+v", forReq)
	}

	all, err := a.Updates(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("full log has %d entries, want 3", len(all))
	}

	// Replaying the same id must not duplicate the entry.
	if err := a.SaveUpdate(ctx, models.AgentUpdate{ID: "01A", RequestID: "REQ-1-a", AgentID: "a1", Status: "processing", ReceivedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	all, _ = a.Updates(ctx, "")
	if len(all) != 3 {
		t.Errorf("replay duplicated the log: %d entries", len(all))
	}
}
