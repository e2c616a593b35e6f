package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// testBase is the fixed wall-clock anchor for store tests. Offsets from it
// keep ordering assertions independent of the machine clock.
var testBase = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *SQLiteStorage
	Ctx   context.Context
}

// newTestEnv creates a new test environment with a configured store.
// The store is automatically cleaned up when the test completes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t, "")
	return &testEnv{
		t:     t,
		Store: store,
		Ctx:   context.Background(),
	}
}

// CreateEntry saves a filewatcher entry for filePath at ts and returns it
// with its assigned id.
func (e *testEnv) CreateEntry(filePath string, ts time.Time) *types.Entry {
	e.t.Helper()
	entry := &types.Entry{
		SessionID:     "2026-03-14",
		WorkspacePath: "/work/demo",
		FilePath:      filePath,
		Source:        types.SourceFileWatcher,
		Timestamp:     ts,
		Type:          "code_change",
	}
	if err := e.Store.SaveEntry(e.Ctx, entry); err != nil {
		e.t.Fatalf("SaveEntry(%q) failed: %v", filePath, err)
	}
	return entry
}

// CreatePrompt saves a captured prompt with the given text at ts and returns
// it with its assigned id.
func (e *testEnv) CreatePrompt(text string, ts time.Time) *types.Prompt {
	e.t.Helper()
	prompt := &types.Prompt{
		WorkspacePath: "/work/demo",
		Text:          text,
		Source:        types.SourceEditorDB,
		Status:        types.PromptCaptured,
		Timestamp:     ts,
	}
	if err := e.Store.SavePrompt(e.Ctx, prompt); err != nil {
		e.t.Fatalf("SavePrompt(%q) failed: %v", text, err)
	}
	return prompt
}

// CreatePromptComposer saves a prompt carrying an editor composer id.
func (e *testEnv) CreatePromptComposer(text, composerID string, ts time.Time) *types.Prompt {
	e.t.Helper()
	prompt := &types.Prompt{
		WorkspacePath: "/work/demo",
		Text:          text,
		Source:        types.SourceEditorDB,
		Status:        types.PromptCaptured,
		Timestamp:     ts,
		ComposerID:    composerID,
	}
	if err := e.Store.SavePrompt(e.Ctx, prompt); err != nil {
		e.t.Fatalf("SavePrompt(%q) failed: %v", text, err)
	}
	return prompt
}

// MustGetEntry reloads an entry by id.
func (e *testEnv) MustGetEntry(id int64) *types.Entry {
	e.t.Helper()
	entry, err := e.Store.GetEntry(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetEntry(%d) failed: %v", id, err)
	}
	return entry
}

// MustGetPrompt reloads a prompt by id.
func (e *testEnv) MustGetPrompt(id int64) *types.Prompt {
	e.t.Helper()
	prompt, err := e.Store.GetPrompt(e.Ctx, id)
	if err != nil {
		e.t.Fatalf("GetPrompt(%d) failed: %v", id, err)
	}
	return prompt
}

// Link records a correlation between an entry and a prompt.
func (e *testEnv) Link(entryID, promptID int64, confidence types.Confidence) {
	e.t.Helper()
	if err := e.Store.LinkEntryPrompt(e.Ctx, entryID, promptID, confidence); err != nil {
		e.t.Fatalf("LinkEntryPrompt(%d, %d) failed: %v", entryID, promptID, err)
	}
}

// AssertLinked asserts that both sides of an entry/prompt link are recorded
// with the given confidence.
func (e *testEnv) AssertLinked(entryID, promptID int64, confidence types.Confidence) {
	e.t.Helper()
	entry := e.MustGetEntry(entryID)
	if entry.PromptID == nil || *entry.PromptID != promptID {
		e.t.Errorf("expected entry %d linked to prompt %d, got %v", entryID, promptID, entry.PromptID)
	}
	if entry.LinkConfidence != confidence {
		e.t.Errorf("expected entry %d confidence %s, got %s", entryID, confidence, entry.LinkConfidence)
	}
	prompt := e.MustGetPrompt(promptID)
	if prompt.LinkedEntryID == nil || *prompt.LinkedEntryID != entryID {
		e.t.Errorf("expected prompt %d linked to entry %d, got %v", promptID, entryID, prompt.LinkedEntryID)
	}
}

// newTestStore creates a SQLiteStorage backed by a throwaway database file.
//
// File-based databases are more reliable than in-memory for connection pool
// scenarios: the store opens a separate read-only pool, and ":memory:" would
// give each pool its own empty database. Pass a custom dbPath to exercise
// reopen behavior against the same file.
func newTestStore(t *testing.T, dbPath string) *SQLiteStorage {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}
