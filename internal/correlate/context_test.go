package correlate

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestRecordSnapshotDerivesDelta(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	prompt := savePrompt(t, store, "wire up the uploader", "/r", base)

	first := &types.ContextSnapshot{
		PromptID:     &prompt.ID,
		Timestamp:    base,
		ContextFiles: []string{"a.go", "b.go", "c.go"},
	}
	change, err := engine.RecordSnapshot(ctx, first)
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if change != nil {
		t.Errorf("Expected no delta for the first snapshot, got %+v", change)
	}
	if first.FileCount != 3 {
		t.Errorf("Expected file count filled from the list, got %d", first.FileCount)
	}

	second := &types.ContextSnapshot{
		PromptID:     &prompt.ID,
		Timestamp:    base.Add(time.Minute),
		ContextFiles: []string{"b.go", "c.go", "d.go", "e.go"},
	}
	change, err = engine.RecordSnapshot(ctx, second)
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if change == nil {
		t.Fatal("Expected a delta for the second snapshot")
	}
	if !reflect.DeepEqual(change.Added, []string{"d.go", "e.go"}) {
		t.Errorf("Unexpected added: %v", change.Added)
	}
	if !reflect.DeepEqual(change.Removed, []string{"a.go"}) {
		t.Errorf("Unexpected removed: %v", change.Removed)
	}
	if !reflect.DeepEqual(change.Unchanged, []string{"b.go", "c.go"}) {
		t.Errorf("Unexpected unchanged: %v", change.Unchanged)
	}
	if change.PrevFileCount != 3 || change.CurrFileCount != 4 || change.NetChange != 1 {
		t.Errorf("Unexpected counts: prev %d curr %d net %d",
			change.PrevFileCount, change.CurrFileCount, change.NetChange)
	}
	if change.PromptID == nil || *change.PromptID != prompt.ID {
		t.Errorf("Expected delta tied to prompt %d, got %v", prompt.ID, change.PromptID)
	}

	stored, err := store.RecentContextChanges(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentContextChanges failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected one persisted delta, got %d", len(stored))
	}
	if stored[0].NetChange != 1 || len(stored[0].Added) != 2 {
		t.Errorf("Unexpected stored delta: %+v", stored[0])
	}
}

func TestRecordSnapshotSessionScope(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	first := &types.ContextSnapshot{Timestamp: base, ContextFiles: []string{"a.go"}}
	if _, err := engine.RecordSnapshot(ctx, first); err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if first.SessionID != types.SessionIDFor(base) {
		t.Errorf("Expected session id derived from timestamp, got %q", first.SessionID)
	}

	// A snapshot in a different session scope must not diff against the
	// first one.
	otherDay := base.Add(48 * time.Hour)
	foreign := &types.ContextSnapshot{Timestamp: otherDay, ContextFiles: []string{"z.go"}}
	change, err := engine.RecordSnapshot(ctx, foreign)
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if change != nil {
		t.Errorf("Expected no cross-session delta, got %+v", change)
	}

	second := &types.ContextSnapshot{Timestamp: base.Add(time.Minute), ContextFiles: []string{"a.go", "b.go"}}
	change, err = engine.RecordSnapshot(ctx, second)
	if err != nil {
		t.Fatalf("RecordSnapshot failed: %v", err)
	}
	if change == nil {
		t.Fatal("Expected a same-session delta")
	}
	if len(change.Added) != 1 || change.Added[0] != "b.go" {
		t.Errorf("Unexpected added: %v", change.Added)
	}
	if change.SessionID != types.SessionIDFor(base) {
		t.Errorf("Expected delta in the session scope, got %q", change.SessionID)
	}
}

func TestRecordSnapshotIdenticalFiles(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	prompt := savePrompt(t, store, "same context twice", "/r", base)

	files := []string{"a.go", "b.go"}
	for i := 0; i < 2; i++ {
		snap := &types.ContextSnapshot{
			PromptID:     &prompt.ID,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			ContextFiles: files,
		}
		if _, err := engine.RecordSnapshot(ctx, snap); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	stored, err := store.RecentContextChanges(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentContextChanges failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected one delta, got %d", len(stored))
	}
	delta := stored[0]
	if len(delta.Added) != 0 || len(delta.Removed) != 0 {
		t.Errorf("Expected a no-op delta, got added %v removed %v", delta.Added, delta.Removed)
	}
	if len(delta.Unchanged) != 2 || delta.NetChange != 0 {
		t.Errorf("Unexpected delta: %+v", delta)
	}
}

func TestDiffFilesOrderPreserved(t *testing.T) {
	added, removed, unchanged := diffFiles(
		[]string{"one.go", "two.go", "three.go"},
		[]string{"three.go", "four.go", "one.go"},
	)
	if !reflect.DeepEqual(added, []string{"four.go"}) {
		t.Errorf("Unexpected added: %v", added)
	}
	if !reflect.DeepEqual(removed, []string{"two.go"}) {
		t.Errorf("Unexpected removed: %v", removed)
	}
	if !reflect.DeepEqual(unchanged, []string{"three.go", "one.go"}) {
		t.Errorf("Unexpected unchanged: %v", unchanged)
	}
}
