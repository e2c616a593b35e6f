package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestParseZshHistory(t *testing.T) {
	text := `: 1735725600:0;git status
: 1735725605:2;make build
: 1735725610:0;printf one \
two
`
	entries := ParseHistory(text, "zsh")
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Command != "git status" {
		t.Errorf("Expected command 'git status', got %q", entries[0].Command)
	}
	if want := time.Unix(1735725600, 0).UTC(); !entries[0].Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, entries[0].Timestamp)
	}
	if entries[0].LineNo != 1 {
		t.Errorf("Expected line 1, got %d", entries[0].LineNo)
	}
	if entries[1].DurationMS != 2000 {
		t.Errorf("Expected duration 2000ms, got %d", entries[1].DurationMS)
	}
	if want := "printf one \ntwo"; entries[2].Command != want {
		t.Errorf("Expected multi-line command %q, got %q", want, entries[2].Command)
	}
	if entries[2].Shell != "zsh" {
		t.Errorf("Expected shell zsh, got %q", entries[2].Shell)
	}
}

func TestParseZshFallsBackToPlain(t *testing.T) {
	entries := ParseHistory("git status\nmake build\n", "zsh")
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Command != "git status" {
		t.Errorf("Expected command 'git status', got %q", entries[0].Command)
	}
	if !entries[0].Timestamp.IsZero() {
		t.Errorf("Expected zero timestamp, got %v", entries[0].Timestamp)
	}
	if entries[1].Shell != "zsh" {
		t.Errorf("Expected shell zsh, got %q", entries[1].Shell)
	}
}

func TestParseBashHistory(t *testing.T) {
	text := `#1735725600
git status
ls -la
#1735725700
make test
`
	entries := ParseHistory(text, "bash")
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if want := time.Unix(1735725600, 0).UTC(); !entries[0].Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, entries[0].Timestamp)
	}
	if !entries[1].Timestamp.IsZero() {
		t.Errorf("Expected unstamped command to have zero timestamp, got %v", entries[1].Timestamp)
	}
	if entries[2].Command != "make test" {
		t.Errorf("Expected command 'make test', got %q", entries[2].Command)
	}
	if entries[2].LineNo != 5 {
		t.Errorf("Expected line 5, got %d", entries[2].LineNo)
	}
}

func TestParsePlainHistory(t *testing.T) {
	entries := ParseHistory("cd /tmp\n\nvim notes.txt\n", "")
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Shell != "sh" {
		t.Errorf("Expected default shell sh, got %q", entries[0].Shell)
	}
	if entries[1].LineNo != 3 {
		t.Errorf("Expected line 3, got %d", entries[1].LineNo)
	}
}

func TestShellHistoryPollPrimesThenTails(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".zsh_history")
	if err := os.WriteFile(path, []byte(": 1735725600:0;git status\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sh := NewShellHistory([]HistoryFile{{Path: path, Shell: "zsh"}})
	ctx := context.Background()

	records, cursor, err := sh.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Expected first poll to prime without records, got %d", len(records))
	}
	if cursor.Marks[path] != 1 {
		t.Fatalf("Expected mark 1 after priming, got %d", cursor.Marks[path])
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := f.WriteString(": 1735725700:1;make build\n: 1735725710:0;make test\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	f.Close()

	records, cursor, err = sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	rec := records[0]
	if rec.Kind != KindCommand {
		t.Errorf("Expected kind %q, got %q", KindCommand, rec.Kind)
	}
	if rec.Source != types.SourceImport {
		t.Errorf("Expected source %q, got %q", types.SourceImport, rec.Source)
	}
	if got := payloadString(t, rec, "command"); got != "make build" {
		t.Errorf("Expected command 'make build', got %q", got)
	}
	if got := payloadString(t, rec, "shell"); got != "zsh" {
		t.Errorf("Expected shell zsh, got %q", got)
	}
	if got, ok := rec.Payload["duration_ms"].(int64); !ok || got != 1000 {
		t.Errorf("Expected duration_ms 1000, got %v", rec.Payload["duration_ms"])
	}
	if want := time.Unix(1735725700, 0).UTC(); !payloadTime(t, rec, "timestamp").Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, rec.Payload["timestamp"])
	}
	if want := time.Unix(1735725710, 0).UTC(); !cursor.Since.Equal(want) {
		t.Errorf("Expected cursor since %v, got %v", want, cursor.Since)
	}
	if cursor.Marks[path] != 3 {
		t.Errorf("Expected mark 3, got %d", cursor.Marks[path])
	}

	records, _, err = sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records without new history, got %d", len(records))
	}
}

func TestShellHistoryPollReprimesShrunkenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".sh_history")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sh := NewShellHistory([]HistoryFile{{Path: path, Shell: "sh"}})
	var warnings []string
	sh.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})
	ctx := context.Background()

	_, cursor, err := sh.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if cursor.Marks[path] != 3 {
		t.Fatalf("Expected mark 3, got %d", cursor.Marks[path])
	}

	// Simulate history rewrite: the file shrinks below the mark.
	if err := os.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	records, cursor, err := sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Expected no records after shrink, got %d", len(records))
	}
	if cursor.Marks[path] != 1 {
		t.Fatalf("Expected re-primed mark 1, got %d", cursor.Marks[path])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "shrank") {
		t.Errorf("Expected one shrink warning, got %v", warnings)
	}

	if err := os.WriteFile(path, []byte("one\nfour\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	records, _, err = sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after append, got %d", len(records))
	}
	if got := payloadString(t, records[0], "command"); got != "four" {
		t.Errorf("Expected command 'four', got %q", got)
	}
}

func TestShellHistoryPollMissingFileWarnsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no_such_history")
	sh := NewShellHistory([]HistoryFile{{Path: path, Shell: "bash"}})
	var warnings int
	sh.SetWarnFunc(func(string, ...any) { warnings++ })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		records, cursor, err := sh.Poll(ctx, Cursor{})
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("Expected no records for a missing file, got %d", len(records))
		}
		if len(cursor.Marks) != 0 {
			t.Fatalf("Expected no mark for a missing file, got %v", cursor.Marks)
		}
	}
	if warnings != 1 {
		t.Errorf("Expected exactly one warning, got %d", warnings)
	}
}

func TestShellHistoryPollBatchCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".sh_history")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	sh := NewShellHistory([]HistoryFile{{Path: path, Shell: "sh"}})
	ctx := context.Background()

	_, cursor, err := sh.Poll(ctx, Cursor{})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	var sb strings.Builder
	for i := 0; i < maxHistoryBatch+200; i++ {
		fmt.Fprintf(&sb, "cmd-%d\n", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	records, cursor, err := sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != maxHistoryBatch {
		t.Fatalf("Expected %d records, got %d", maxHistoryBatch, len(records))
	}
	if cursor.Marks[path] != int64(maxHistoryBatch) {
		t.Fatalf("Expected mark %d, got %d", maxHistoryBatch, cursor.Marks[path])
	}

	records, cursor, err = sh.Poll(ctx, cursor)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(records) != 200 {
		t.Fatalf("Expected 200 carried-over records, got %d", len(records))
	}
	if got := payloadString(t, records[0], "command"); got != fmt.Sprintf("cmd-%d", maxHistoryBatch) {
		t.Errorf("Expected carry-over to resume at cmd-%d, got %q", maxHistoryBatch, got)
	}
	if cursor.Marks[path] != int64(maxHistoryBatch+200) {
		t.Errorf("Expected mark %d, got %d", maxHistoryBatch+200, cursor.Marks[path])
	}
}
