package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	snap := &ports.GraphSnapshot{
		GraphID:  "g1",
		Name:     "demo",
		Status:   "running",
		Progress: 50,
		Steps: []ports.StepSummary{
			{ID: "s1", Name: "A", Status: "completed", Result: "a"},
			{ID: "s2", Name: "B", Status: "running"},
		},
		UpdatedAt: time.Now(),
	}

	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Name != "demo" || loaded.Progress != 50 {
		t.Errorf("loaded snapshot differs: %+v", loaded)
	}
	if len(loaded.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(loaded.Steps))
	}

	// Later saves replace, not append
	snap.Status = "completed"
	snap.Progress = 100
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	loaded, _ = store.LoadSnapshot(ctx, "g1")
	if loaded.Status != "completed" {
		t.Errorf("expected replaced snapshot, got status %s", loaded.Status)
	}
}

func TestSnapshotValidation(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, nil); err == nil {
		t.Error("nil snapshot should be rejected")
	}
	if err := store.SaveSnapshot(ctx, &ports.GraphSnapshot{}); err == nil {
		t.Error("snapshot without graph id should be rejected")
	}
	if _, err := store.LoadSnapshot(ctx, "missing"); err == nil {
		t.Error("loading a missing snapshot should fail")
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	_ = store.SaveSnapshot(ctx, &ports.GraphSnapshot{GraphID: "g1"})
	_ = store.AppendEvent(ctx, "g1", ports.Event{Type: ports.EventGraphStart})

	if err := store.DeleteSnapshot(ctx, "g1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.LoadSnapshot(ctx, "g1"); err == nil {
		t.Error("snapshot should be gone")
	}
	events, _ := store.ListEvents(ctx, "g1")
	if len(events) != 0 {
		t.Error("event log should be gone with the snapshot")
	}
}

func TestListSnapshots(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		_ = store.SaveSnapshot(ctx, &ports.GraphSnapshot{GraphID: id})
	}

	snaps, err := store.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(snaps))
	}
}

func TestEventLogOrder(t *testing.T) {
	store := NewInMemoryStateStore()
	ctx := context.Background()

	types := []ports.EventType{
		ports.EventGraphStart,
		ports.EventStepStart,
		ports.EventStepComplete,
		ports.EventGraphComplete,
	}
	for _, et := range types {
		if err := store.AppendEvent(ctx, "g1", ports.Event{Type: et}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "g1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(events))
	}
	for i, et := range types {
		if events[i].Type != et {
			t.Errorf("event %d: expected %s, got %s", i, et, events[i].Type)
		}
	}
}
