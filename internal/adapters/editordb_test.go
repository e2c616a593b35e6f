package adapters

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// newSidecarDB builds a throwaway editor store and returns its path.
func newSidecarDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("Failed to open sidecar db: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
	return path
}

func execSidecar(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("Failed to open sidecar db: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}

func TestEditorDBPollAdvancesCursor(t *testing.T) {
	path := newSidecarDB(t,
		`CREATE TABLE prompts (id INTEGER PRIMARY KEY, text TEXT, composerId TEXT, createdAt INTEGER, workspacePath TEXT)`,
		`INSERT INTO prompts VALUES (1, 'refactor the widget', 'c-1', 1735725600000, '/w/alpha')`,
		`INSERT INTO prompts VALUES (2, 'add tests for the parser', 'c-2', 1735725700000, '/w/alpha')`,
	)
	e := NewEditorDB(path, "")
	defer e.Stop()
	ctx := context.Background()

	records, cursor, err := e.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.Kind != KindPrompt {
		t.Errorf("Expected kind %q, got %q", KindPrompt, first.Kind)
	}
	if first.Source != types.SourceEditorDB {
		t.Errorf("Expected source %q, got %q", types.SourceEditorDB, first.Source)
	}
	if got := payloadString(t, first, "text"); got != "refactor the widget" {
		t.Errorf("Expected first row ordered by timestamp, got %q", got)
	}
	if got := payloadString(t, first, "composerId"); got != "c-1" {
		t.Errorf("Expected composerId to ride along, got %q", got)
	}
	if got, ok := first.Payload["createdAt"].(int64); !ok || got != 1735725600000 {
		t.Errorf("Expected raw createdAt value, got %v", first.Payload["createdAt"])
	}
	if want := time.UnixMilli(1735725700000); !cursor.Since.Equal(want) {
		t.Errorf("Expected cursor since %v, got %v", want, cursor.Since)
	}

	// New rows appear between polls; only they come back.
	execSidecar(t, path,
		`INSERT INTO prompts VALUES (3, 'explain the failing test', 'c-2', 1735725800000, '/w/beta')`,
	)
	records, cursor, err = e.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 new record, got %d", len(records))
	}
	if got := payloadString(t, records[0], "text"); got != "explain the failing test" {
		t.Errorf("Expected the new row, got %q", got)
	}

	records, _, err = e.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records past the cursor, got %d", len(records))
	}
}

func TestEditorDBTextTimestamps(t *testing.T) {
	path := newSidecarDB(t,
		`CREATE TABLE prompts (id INTEGER PRIMARY KEY, text TEXT, timestamp TEXT)`,
		`INSERT INTO prompts VALUES (1, 'first prompt', '2026-02-10T09:00:00Z')`,
		`INSERT INTO prompts VALUES (2, 'second prompt', '2026-02-10T09:05:00Z')`,
	)
	e := NewEditorDB(path, "")
	defer e.Stop()
	ctx := context.Background()

	records, cursor, err := e.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	want := time.Date(2026, 2, 10, 9, 5, 0, 0, time.UTC)
	if !cursor.Since.Equal(want) {
		t.Fatalf("Expected cursor since %v, got %v", want, cursor.Since)
	}

	execSidecar(t, path, `INSERT INTO prompts VALUES (3, 'third prompt', '2026-02-10T09:10:00Z')`)
	records, _, err = e.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if got := payloadString(t, records[0], "text"); got != "third prompt" {
		t.Errorf("Expected the new row, got %q", got)
	}
}

func TestEditorDBMissingFileIsQuiet(t *testing.T) {
	e := NewEditorDB(filepath.Join(t.TempDir(), "absent.db"), "")
	var warnings int
	e.SetWarnFunc(func(string, ...any) { warnings++ })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		records, cursor, err := e.Poll(ctx, Cursor{})
		if err != nil {
			t.Fatalf("Expected a missing store to be non-fatal, got %v", err)
		}
		if len(records) != 0 || !cursor.Since.IsZero() {
			t.Fatalf("Expected no progress against a missing store, got %d records", len(records))
		}
	}
	if warnings != 1 {
		t.Errorf("Expected exactly one warning, got %d", warnings)
	}
}

func TestEditorDBMissingTableThenMigration(t *testing.T) {
	path := newSidecarDB(t, `CREATE TABLE settings (k TEXT, v TEXT)`)
	e := NewEditorDB(path, "")
	defer e.Stop()
	var warnings int
	e.SetWarnFunc(func(string, ...any) { warnings++ })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		records, _, err := e.Poll(ctx, Cursor{})
		if err != nil {
			t.Fatalf("Expected a missing table to be non-fatal, got %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("Expected no records, got %d", len(records))
		}
	}
	if warnings != 1 {
		t.Errorf("Expected exactly one warning, got %d", warnings)
	}

	// The editor creates the table later; the next poll picks it up.
	execSidecar(t, path,
		`CREATE TABLE prompts (id INTEGER PRIMARY KEY, text TEXT, createdAt INTEGER)`,
		`INSERT INTO prompts VALUES (1, 'hello there', 1735725600)`,
	)
	records, cursor, err := e.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after migration, got %d", len(records))
	}
	if want := time.Unix(1735725600, 0); !cursor.Since.Equal(want) {
		t.Errorf("Expected cursor since %v, got %v", want, cursor.Since)
	}
}

func TestEditorDBNoTimestampColumn(t *testing.T) {
	path := newSidecarDB(t,
		`CREATE TABLE prompts (id INTEGER PRIMARY KEY, text TEXT, epoch_when INTEGER)`,
		`INSERT INTO prompts VALUES (1, 'untracked prompt', 42)`,
	)
	e := NewEditorDB(path, "")
	defer e.Stop()
	var warnings int
	e.SetWarnFunc(func(string, ...any) { warnings++ })
	ctx := context.Background()

	records, cursor, err := e.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected a full scan to return the row, got %d records", len(records))
	}
	if !cursor.Since.IsZero() {
		t.Errorf("Expected the cursor to stay put without a timestamp column, got %v", cursor.Since)
	}
	if warnings != 1 {
		t.Errorf("Expected one warning, got %d", warnings)
	}

	// Without a timestamp column every poll is a full scan.
	records, _, err = e.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the row again on the next scan, got %d records", len(records))
	}
	if warnings != 1 {
		t.Errorf("Expected the warning to fire once, got %d", warnings)
	}
}
