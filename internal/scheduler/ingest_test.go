package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/correlate"
	"github.com/untoldecay/LoomLog/internal/normalize"
	"github.com/untoldecay/LoomLog/internal/storage/sqlite"
	"github.com/untoldecay/LoomLog/internal/types"
)

func newTestIngestor(t *testing.T) (*Ingestor, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	norm := normalize.New(store)
	engine := correlate.New(store, correlate.Config{})
	return NewIngestor(store, norm, engine), store
}

func TestIngestEntryLinksToPrompt(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	promptAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	prompt := &types.Prompt{
		Text:          "refactor util.go to return errors",
		WorkspacePath: "/r",
		Source:        types.SourceEditorDB,
		Status:        types.PromptCaptured,
		Timestamp:     promptAt,
	}
	if err := store.SavePrompt(ctx, prompt); err != nil {
		t.Fatalf("SavePrompt failed: %v", err)
	}

	err := in.Ingest(ctx, adapters.Record{
		Kind:   adapters.KindEntry,
		Source: types.SourceFileWatcher,
		Payload: map[string]any{
			"file_path":      "/r/util.go",
			"workspace_path": "/r",
			"timestamp":      promptAt.Add(15 * time.Second),
		},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	entries, err := store.RecentEntries(ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Source != types.SourceFileWatcher {
		t.Errorf("Expected source %q, got %q", types.SourceFileWatcher, got.Source)
	}
	if got.PromptID == nil || *got.PromptID != prompt.ID {
		t.Errorf("Expected entry linked to prompt %d, got %v", prompt.ID, got.PromptID)
	}

	counts, dropped := in.Counts()
	if counts[adapters.KindEntry] != 1 {
		t.Errorf("Expected 1 ingested entry, got %d", counts[adapters.KindEntry])
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped, got %d", dropped)
	}
}

func TestIngestEntryDuplicateSavedOnce(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	rec := adapters.Record{
		Kind:   adapters.KindEntry,
		Source: types.SourceFileWatcher,
		Payload: map[string]any{
			"file_path":      "/r/main.go",
			"workspace_path": "/r",
			"timestamp":      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
	for i := 0; i < 3; i++ {
		if err := in.Ingest(ctx, rec); err != nil {
			t.Fatalf("Ingest %d failed: %v", i, err)
		}
	}

	entries, err := store.RecentEntries(ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry after re-ingest, got %d", len(entries))
	}
	counts, _ := in.Counts()
	if counts[adapters.KindEntry] != 1 {
		t.Errorf("Expected 1 ingested entry, got %d", counts[adapters.KindEntry])
	}
}

func TestIngestMalformedDropped(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	var warnings []string
	in.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, format)
	})

	// Entry without a file path cannot be mapped.
	err := in.Ingest(ctx, adapters.Record{
		Kind:    adapters.KindEntry,
		Payload: map[string]any{"notes": "orphan"},
	})
	if err != nil {
		t.Fatalf("Expected malformed record to be dropped, got error: %v", err)
	}
	// Unknown kinds are dropped too.
	err = in.Ingest(ctx, adapters.Record{Kind: adapters.Kind("bogus")})
	if err != nil {
		t.Fatalf("Expected unknown kind to be dropped, got error: %v", err)
	}

	_, dropped := in.Counts()
	if dropped != 2 {
		t.Errorf("Expected 2 dropped records, got %d", dropped)
	}
	if len(warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %d", len(warnings))
	}
	entries, err := store.RecentEntries(ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries persisted, got %d", len(entries))
	}
}

func TestIngestPromptGroupsAndSnapshots(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	err := in.Ingest(ctx, adapters.Record{
		Kind:   adapters.KindPrompt,
		Source: types.SourceEditorDB,
		Payload: map[string]any{
			"text":           "add retry logic to the fetcher",
			"workspace_path": "/r",
			"composer_id":    "comp-77",
			"timestamp":      time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
			"context_files":  []string{"fetcher.go", "retry.go"},
		},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	prompts, err := store.RecentPrompts(ctx, 10, 0, "")
	if err != nil {
		t.Fatalf("RecentPrompts failed: %v", err)
	}
	if len(prompts) != 1 {
		t.Fatalf("Expected 1 prompt, got %d", len(prompts))
	}
	got := prompts[0]
	if got.ConversationID == "" {
		t.Error("Expected prompt to be assigned a conversation")
	}
	if got.Source != types.SourceEditorDB {
		t.Errorf("Expected source %q, got %q", types.SourceEditorDB, got.Source)
	}

	snap, err := store.LatestContextSnapshot(ctx, &got.ID, "")
	if err != nil {
		t.Fatalf("LatestContextSnapshot failed: %v", err)
	}
	if snap == nil {
		t.Fatal("Expected a context snapshot for the prompt")
	}
	if snap.FileCount != 2 {
		t.Errorf("Expected snapshot file count 2, got %d", snap.FileCount)
	}
}

func TestIngestTodoRecordsLifecycleEvents(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	ingestTodo := func(status string) {
		t.Helper()
		err := in.Ingest(ctx, adapters.Record{
			Kind: adapters.KindTodo,
			Payload: map[string]any{
				"id":      "todo-1",
				"content": "write the parser",
				"status":  status,
			},
		})
		if err != nil {
			t.Fatalf("Ingest todo (%s) failed: %v", status, err)
		}
	}

	ingestTodo("pending")
	events, err := store.ListTodoEvents(ctx, "todo-1")
	if err != nil {
		t.Fatalf("ListTodoEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event after creation, got %d", len(events))
	}
	if events[0].Type != "created" {
		t.Errorf("Expected created event, got %q", events[0].Type)
	}
	if events[0].Details["status"] != "pending" {
		t.Errorf("Expected status pending in details, got %v", events[0].Details["status"])
	}

	// Same observation again: no transition, no new event.
	ingestTodo("pending")
	events, err = store.ListTodoEvents(ctx, "todo-1")
	if err != nil {
		t.Fatalf("ListTodoEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected still 1 event, got %d", len(events))
	}

	ingestTodo("in_progress")
	events, err = store.ListTodoEvents(ctx, "todo-1")
	if err != nil {
		t.Fatalf("ListTodoEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events after transition, got %d", len(events))
	}
	var change *types.TodoEvent
	for _, ev := range events {
		if ev.Type == "status_change" {
			change = ev
		}
	}
	if change == nil {
		t.Fatal("Expected a status_change event")
	}
	if change.Details["from"] != "pending" || change.Details["status"] != "in_progress" {
		t.Errorf("Expected pending -> in_progress, got %v", change.Details)
	}

	// A stale pending observation must not regress the todo or add events.
	ingestTodo("pending")
	todo, err := store.GetTodo(ctx, "todo-1")
	if err != nil {
		t.Fatalf("GetTodo failed: %v", err)
	}
	if todo.Status != types.TodoInProgress {
		t.Errorf("Expected status to stay in_progress, got %q", todo.Status)
	}
	events, err = store.ListTodoEvents(ctx, "todo-1")
	if err != nil {
		t.Fatalf("ListTodoEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected still 2 events after stale observation, got %d", len(events))
	}
}

func TestIngestCommandStatusAndEvent(t *testing.T) {
	in, store := newTestIngestor(t)
	ctx := context.Background()

	records := []adapters.Record{
		{
			Kind:   adapters.KindCommand,
			Source: types.SourceImport,
			Payload: map[string]any{
				"command":   "make test",
				"shell":     "zsh",
				"timestamp": time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		{
			Kind:    adapters.KindStatus,
			Payload: map[string]any{"text": "Reading files..."},
		},
		{
			Kind:    adapters.KindEvent,
			Payload: map[string]any{"type": "daemon_start"},
		},
	}
	for _, rec := range records {
		if err := in.Ingest(ctx, rec); err != nil {
			t.Fatalf("Ingest %s failed: %v", rec.Kind, err)
		}
	}

	cmds, err := store.RecentTerminalCommands(ctx, 10, 0)
	if err != nil {
		t.Fatalf("RecentTerminalCommands failed: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != "make test" {
		t.Fatalf("Expected the saved command, got %v", cmds)
	}
	if cmds[0].Source != types.SourceImport {
		t.Errorf("Expected source %q, got %q", types.SourceImport, cmds[0].Source)
	}

	msgs, err := store.RecentStatusMessages(ctx, 10, 0)
	if err != nil {
		t.Fatalf("RecentStatusMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "Reading files..." {
		t.Fatalf("Expected the saved status message, got %v", msgs)
	}

	events, err := store.RecentEvents(ctx, 10, 0)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != "daemon_start" {
		t.Fatalf("Expected the saved event, got %v", events)
	}

	counts, dropped := in.Counts()
	if dropped != 0 {
		t.Errorf("Expected 0 dropped, got %d", dropped)
	}
	for _, kind := range []adapters.Kind{adapters.KindCommand, adapters.KindStatus, adapters.KindEvent} {
		if counts[kind] != 1 {
			t.Errorf("Expected 1 ingested %s, got %d", kind, counts[kind])
		}
	}
}
