package sqlite

import (
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestSaveEntryAssignsSequentialIDs(t *testing.T) {
	env := newTestEnv(t)

	first := env.CreateEntry("main.go", testBase)
	second := env.CreateEntry("util.go", testBase.Add(time.Minute))
	third := env.CreateEntry("api.go", testBase.Add(2*time.Minute))

	if first.ID != 1 || second.ID != 2 || third.ID != 3 {
		t.Errorf("Expected ids 1, 2, 3, got %d, %d, %d", first.ID, second.ID, third.ID)
	}

	maxID, err := env.Store.MaxEntryID(env.Ctx)
	if err != nil {
		t.Fatalf("MaxEntryID failed: %v", err)
	}
	if maxID != 3 {
		t.Errorf("Expected max id 3, got %d", maxID)
	}
}

func TestSaveEntryContinuesFromExplicitID(t *testing.T) {
	env := newTestEnv(t)

	// An imported entry claims a high id; the next assigned id follows it.
	imported := &types.Entry{
		ID:        40,
		SessionID: "2026-03-14",
		FilePath:  "imported.go",
		Source:    types.SourceImport,
		Timestamp: testBase,
	}
	if err := env.Store.SaveEntry(env.Ctx, imported); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	next := env.CreateEntry("next.go", testBase.Add(time.Minute))
	if next.ID != 41 {
		t.Errorf("Expected id 41 after explicit id 40, got %d", next.ID)
	}
}

func TestSaveEntryUpsertByID(t *testing.T) {
	env := newTestEnv(t)

	entry := env.CreateEntry("main.go", testBase)

	update := &types.Entry{
		ID:        entry.ID,
		SessionID: entry.SessionID,
		FilePath:  "main.go",
		Source:    types.SourceFileWatcher,
		Notes:     "second observation",
		Timestamp: testBase,
	}
	if err := env.Store.SaveEntry(env.Ctx, update); err != nil {
		t.Fatalf("SaveEntry (update) failed: %v", err)
	}

	entries, err := env.Store.RecentEntries(env.Ctx, 10, 0, "", true)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry after upsert, got %d", len(entries))
	}
	if entries[0].Notes != "second observation" {
		t.Errorf("Expected updated notes, got %q", entries[0].Notes)
	}
}

func TestSaveEntryResaveKeepsLink(t *testing.T) {
	env := newTestEnv(t)

	entry := env.CreateEntry("main.go", testBase)
	prompt := env.CreatePrompt("add retries", testBase.Add(-time.Minute))
	env.Link(entry.ID, prompt.ID, types.ConfidenceHigh)

	// A later re-observation of the same entry carries no correlation state.
	resave := &types.Entry{
		ID:        entry.ID,
		FilePath:  "main.go",
		Source:    types.SourceFileWatcher,
		Timestamp: testBase,
	}
	if err := env.Store.SaveEntry(env.Ctx, resave); err != nil {
		t.Fatalf("SaveEntry (resave) failed: %v", err)
	}

	env.AssertLinked(entry.ID, prompt.ID, types.ConfidenceHigh)
}

func TestSaveEntryFingerprintDedup(t *testing.T) {
	env := newTestEnv(t)

	first := &types.Entry{
		FilePath:    "main.go",
		Source:      types.SourceFileWatcher,
		Timestamp:   testBase,
		Fingerprint: "fw|main.go|1757840",
	}
	if err := env.Store.SaveEntry(env.Ctx, first); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	duplicate := &types.Entry{
		FilePath:    "main.go",
		Source:      types.SourceFileWatcher,
		Timestamp:   testBase,
		Fingerprint: "fw|main.go|1757840",
	}
	if err := env.Store.SaveEntry(env.Ctx, duplicate); err != nil {
		t.Fatalf("SaveEntry (duplicate) failed: %v", err)
	}

	// The duplicate resolves to the stored row instead of creating one.
	if duplicate.ID != first.ID {
		t.Errorf("Expected duplicate to resolve to id %d, got %d", first.ID, duplicate.ID)
	}

	entries, err := env.Store.RecentEntries(env.Ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after duplicate save, got %d", len(entries))
	}

	id, found, err := env.Store.FindEntryIDByFingerprint(env.Ctx, "fw|main.go|1757840")
	if err != nil {
		t.Fatalf("FindEntryIDByFingerprint failed: %v", err)
	}
	if !found || id != first.ID {
		t.Errorf("Expected fingerprint to resolve to %d, got %d (found=%v)", first.ID, id, found)
	}
}

func TestRecentEntriesOrderAndWorkspaceFilter(t *testing.T) {
	env := newTestEnv(t)

	env.CreateEntry("a.go", testBase)
	env.CreateEntry("b.go", testBase.Add(time.Minute))
	other := &types.Entry{
		WorkspacePath: "/work/other",
		FilePath:      "c.go",
		Source:        types.SourceFileWatcher,
		Timestamp:     testBase.Add(2 * time.Minute),
	}
	if err := env.Store.SaveEntry(env.Ctx, other); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	all, err := env.Store.RecentEntries(env.Ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].FilePath != "c.go" || all[1].FilePath != "b.go" || all[2].FilePath != "a.go" {
		t.Errorf("Expected newest-first order, got %s, %s, %s", all[0].FilePath, all[1].FilePath, all[2].FilePath)
	}

	filtered, err := env.Store.RecentEntries(env.Ctx, 10, 0, "/work/demo", false)
	if err != nil {
		t.Fatalf("RecentEntries (filtered) failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("Expected 2 entries for /work/demo, got %d", len(filtered))
	}

	paged, err := env.Store.RecentEntries(env.Ctx, 1, 1, "", false)
	if err != nil {
		t.Fatalf("RecentEntries (paged) failed: %v", err)
	}
	if len(paged) != 1 || paged[0].FilePath != "b.go" {
		t.Errorf("Expected page of 1 starting at b.go, got %v", paged)
	}
}

func TestRecentEntriesOmitsCodeBodies(t *testing.T) {
	env := newTestEnv(t)

	entry := &types.Entry{
		FilePath:   "main.go",
		Source:     types.SourceClipboard,
		BeforeCode: "old body",
		AfterCode:  "new body",
		Timestamp:  testBase,
	}
	if err := env.Store.SaveEntry(env.Ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	without, err := env.Store.RecentEntries(env.Ctx, 10, 0, "", false)
	if err != nil {
		t.Fatalf("RecentEntries failed: %v", err)
	}
	if without[0].BeforeCode != "" || without[0].AfterCode != "" {
		t.Errorf("Expected code bodies omitted, got %q / %q", without[0].BeforeCode, without[0].AfterCode)
	}

	with, err := env.Store.RecentEntries(env.Ctx, 10, 0, "", true)
	if err != nil {
		t.Fatalf("RecentEntries (includeCode) failed: %v", err)
	}
	if with[0].BeforeCode != "old body" || with[0].AfterCode != "new body" {
		t.Errorf("Expected code bodies included, got %q / %q", with[0].BeforeCode, with[0].AfterCode)
	}

	// GetEntry always carries the bodies.
	got := env.MustGetEntry(entry.ID)
	if got.BeforeCode != "old body" || got.AfterCode != "new body" {
		t.Errorf("Expected GetEntry to include code bodies, got %q / %q", got.BeforeCode, got.AfterCode)
	}
}

func TestEntriesInTimeRangeInclusiveBounds(t *testing.T) {
	env := newTestEnv(t)

	env.CreateEntry("a.go", testBase)
	env.CreateEntry("b.go", testBase.Add(time.Minute))
	env.CreateEntry("c.go", testBase.Add(2*time.Minute))

	entries, err := env.Store.EntriesInTimeRange(env.Ctx, testBase, testBase.Add(time.Minute), "", 10)
	if err != nil {
		t.Fatalf("EntriesInTimeRange failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries in range, got %d", len(entries))
	}
	if entries[0].FilePath != "a.go" || entries[1].FilePath != "b.go" {
		t.Errorf("Expected oldest-first order, got %s, %s", entries[0].FilePath, entries[1].FilePath)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Store.GetEntry(env.Ctx, 999)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "entry not found") {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	entry := &types.Entry{
		SessionID:     "2026-03-14",
		WorkspacePath: "/work/demo",
		FilePath:      "pkg/server/server.go",
		Source:        types.SourceEditorDB,
		BeforeCode:    "func main() {}",
		AfterCode:     "func main() { run() }",
		Notes:         "wired the run loop",
		Timestamp:     testBase,
		Tags:          []string{"refactor", "server"},
		Model:         &types.ModelInfo{Type: "chat", Name: "gpt-4.1"},
		Type:          "code_change",
	}
	if err := env.Store.SaveEntry(env.Ctx, entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	got := env.MustGetEntry(entry.ID)
	if got.SessionID != entry.SessionID || got.WorkspacePath != entry.WorkspacePath {
		t.Errorf("Session/workspace mismatch: got %q / %q", got.SessionID, got.WorkspacePath)
	}
	if got.Source != types.SourceEditorDB || got.Type != "code_change" {
		t.Errorf("Source/type mismatch: got %q / %q", got.Source, got.Type)
	}
	if !got.Timestamp.Equal(testBase) {
		t.Errorf("Expected timestamp %v, got %v", testBase, got.Timestamp)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "refactor" || got.Tags[1] != "server" {
		t.Errorf("Tags mismatch: got %v", got.Tags)
	}
	if got.Model == nil || got.Model.Name != "gpt-4.1" || got.Model.Type != "chat" {
		t.Errorf("Model mismatch: got %+v", got.Model)
	}
	if got.LinkConfidence != types.ConfidenceNone {
		t.Errorf("Expected default confidence none, got %q", got.LinkConfidence)
	}
}

func TestSaveEntriesBatch(t *testing.T) {
	env := newTestEnv(t)

	batch := []*types.Entry{
		{FilePath: "a.go", Source: types.SourceImport, Timestamp: testBase},
		{FilePath: "b.go", Source: types.SourceImport, Timestamp: testBase.Add(time.Second)},
		{FilePath: "c.go", Source: types.SourceImport, Timestamp: testBase.Add(2 * time.Second)},
	}
	if err := env.Store.SaveEntries(env.Ctx, batch); err != nil {
		t.Fatalf("SaveEntries failed: %v", err)
	}

	for i, entry := range batch {
		if entry.ID != int64(i+1) {
			t.Errorf("Expected batch id %d, got %d", i+1, entry.ID)
		}
	}

	maxID, err := env.Store.MaxEntryID(env.Ctx)
	if err != nil {
		t.Fatalf("MaxEntryID failed: %v", err)
	}
	if maxID != 3 {
		t.Errorf("Expected max id 3 after batch, got %d", maxID)
	}
}

func TestSetEntryConfidence(t *testing.T) {
	env := newTestEnv(t)

	entry := env.CreateEntry("main.go", testBase)
	if err := env.Store.SetEntryConfidence(env.Ctx, entry.ID, types.ConfidenceLow); err != nil {
		t.Fatalf("SetEntryConfidence failed: %v", err)
	}

	got := env.MustGetEntry(entry.ID)
	if got.LinkConfidence != types.ConfidenceLow {
		t.Errorf("Expected confidence low, got %q", got.LinkConfidence)
	}
	if got.PromptID != nil {
		t.Errorf("Expected no link, got prompt id %v", got.PromptID)
	}

	prompt := env.CreatePrompt("make it faster", testBase)
	env.Link(entry.ID, prompt.ID, types.ConfidenceHigh)
	if err := env.Store.SetEntryConfidence(env.Ctx, entry.ID, types.ConfidenceLow); err != nil {
		t.Fatalf("SetEntryConfidence failed: %v", err)
	}
	got = env.MustGetEntry(entry.ID)
	if got.LinkConfidence != types.ConfidenceHigh {
		t.Errorf("Expected high confidence to survive, got %q", got.LinkConfidence)
	}
}
