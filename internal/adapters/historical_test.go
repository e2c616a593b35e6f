package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseGitHeader(t *testing.T) {
	hash := "aaaa111122223333aaaa111122223333aaaa1111"
	tests := []struct {
		name    string
		line    string
		epoch   int64
		subject string
		ok      bool
	}{
		{"full header", hash + "\t1735725600\tFix parser edge case", 1735725600, "Fix parser edge case", true},
		{"tab in subject", hash + "\t1735725600\tfeat: add\tthing", 1735725600, "feat: add\tthing", true},
		{"file path line", "src/parser.go", 0, "", false},
		{"short hash", "abc\t1735725600\tmsg", 0, "", false},
		{"bad epoch", hash + "\tnotanumber\tmsg", 0, "", false},
		{"uppercase hash", strings.ToUpper(hash) + "\t1735725600\tmsg", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			epoch, subject, ok := parseGitHeader(tt.line)
			if ok != tt.ok {
				t.Fatalf("parseGitHeader(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if epoch != tt.epoch || subject != tt.subject {
				t.Errorf("parseGitHeader(%q) = (%d, %q), want (%d, %q)", tt.line, epoch, subject, tt.epoch, tt.subject)
			}
		})
	}
}

func TestMinerGit(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	m := NewMiner([]string{root}, nil)
	m.SetLogDirs(nil)

	var gotDir string
	var gotArgs []string
	m.runGit = func(_ context.Context, dir string, args ...string) ([]byte, error) {
		gotDir = dir
		gotArgs = args
		out := "aaaa111122223333aaaa111122223333aaaa1111\t1735725600\tFix parser edge case\n" +
			"src/parser.go\nsrc/lexer.go\n\n" +
			"bbbb111122223333aaaa111122223333aaaa1111\t1735720000\tInitial import\nREADME.md\n"
		return []byte(out), nil
	}
	rec := newRecorder()

	if err := m.Run(context.Background(), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotDir != root {
		t.Errorf("Expected git to run in %s, got %s", root, gotDir)
	}
	if len(gotArgs) == 0 || gotArgs[0] != "log" {
		t.Errorf("Expected a git log invocation, got %v", gotArgs)
	}

	records := rec.all()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	first := records[0]
	if first.Kind != KindEntry {
		t.Errorf("Expected kind %q, got %q", KindEntry, first.Kind)
	}
	if got, want := payloadString(t, first, "file_path"), filepath.Join(root, "src", "parser.go"); got != want {
		t.Errorf("Expected file path %q, got %q", want, got)
	}
	if got := payloadString(t, first, "type"); got != "git" {
		t.Errorf("Expected type git, got %q", got)
	}
	if got := payloadString(t, first, "notes"); got != "Fix parser edge case" {
		t.Errorf("Expected commit subject in notes, got %q", got)
	}
	if want := time.Unix(1735725600, 0).UTC(); !payloadTime(t, first, "timestamp").Equal(want) {
		t.Errorf("Expected commit timestamp %v, got %v", want, first.Payload["timestamp"])
	}
	if got := payloadString(t, records[2], "notes"); got != "Initial import" {
		t.Errorf("Expected second commit subject, got %q", got)
	}
}

func TestMinerSkipsNonGitRoots(t *testing.T) {
	root := t.TempDir()
	m := NewMiner([]string{root}, nil)
	m.SetLogDirs(nil)
	called := false
	m.runGit = func(context.Context, string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	}
	if err := m.Run(context.Background(), func(Record) {}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if called {
		t.Error("Expected git mining to be skipped without a .git directory")
	}
}

func TestMinerGitFailureWarnsAndContinues(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	m := NewMiner([]string{root}, nil)
	m.SetLogDirs(nil)
	m.runGit = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("not a git repository")
	}
	var warnings int
	m.SetWarnFunc(func(string, ...any) { warnings++ })

	if err := m.Run(context.Background(), func(Record) {}); err != nil {
		t.Fatalf("Expected a git failure to be non-fatal, got %v", err)
	}
	if warnings != 1 {
		t.Errorf("Expected one warning, got %d", warnings)
	}
}

func TestMinerHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".zsh_history")
	if err := os.WriteFile(path, []byte(": 1735725600:0;git status\n: 1735725700:3;make build\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	m := NewMiner(nil, []HistoryFile{{Path: path, Shell: "zsh"}})
	m.SetLogDirs(nil)
	rec := newRecorder()

	if err := m.Run(context.Background(), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	records := rec.all()
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Kind != KindCommand {
		t.Errorf("Expected kind %q, got %q", KindCommand, records[0].Kind)
	}
	if got := payloadString(t, records[1], "command"); got != "make build" {
		t.Errorf("Expected command 'make build', got %q", got)
	}
	if got, ok := records[1].Payload["duration_ms"].(int64); !ok || got != 3000 {
		t.Errorf("Expected duration_ms 3000, got %v", records[1].Payload["duration_ms"])
	}
}

func TestMinerLogs(t *testing.T) {
	base := t.TempDir()
	logDir := filepath.Join(base, "editorx", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	fresh := filepath.Join(logDir, "main.log")
	if err := os.WriteFile(fresh, []byte("log line\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	stale := filepath.Join(logDir, "old.log")
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	past := time.Now().Add(-90 * 24 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(logDir, "notes.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := NewMiner(nil, nil)
	m.SetLogDirs([]string{filepath.Join(base, "*", "logs")})
	rec := newRecorder()

	if err := m.Run(context.Background(), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Kind != KindEvent {
		t.Errorf("Expected kind %q, got %q", KindEvent, r.Kind)
	}
	if got := payloadString(t, r, "type"); got != "editor_log" {
		t.Errorf("Expected type editor_log, got %q", got)
	}
	details, ok := r.Payload["details"].(map[string]any)
	if !ok {
		t.Fatalf("Expected a details map, got %T", r.Payload["details"])
	}
	if details["path"] != fresh {
		t.Errorf("Expected log path %q, got %v", fresh, details["path"])
	}
	if size, ok := details["size"].(int64); !ok || size != int64(len("log line\n")) {
		t.Errorf("Expected size %d, got %v", len("log line\n"), details["size"])
	}
}

func TestMinerModTimes(t *testing.T) {
	root := t.TempDir()
	recent := filepath.Join(root, "recent.go")
	if err := os.WriteFile(recent, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	stale := filepath.Join(root, "stale.go")
	if err := os.WriteFile(stale, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	past := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "scratch.swp"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	hidden := filepath.Join(root, ".cache")
	if err := os.Mkdir(hidden, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hidden, "blob"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := NewMiner([]string{root}, nil)
	m.SetLogDirs(nil)
	rec := newRecorder()

	if err := m.Run(context.Background(), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if got := payloadString(t, r, "file_path"); got != recent {
		t.Errorf("Expected file path %q, got %q", recent, got)
	}
	if got := payloadString(t, r, "type"); got != "snapshot" {
		t.Errorf("Expected type snapshot, got %q", got)
	}
	if got := payloadString(t, r, "workspace_path"); got != root {
		t.Errorf("Expected workspace %q, got %q", root, got)
	}
}

func TestMinerModTimesRespectsFileCap(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("package main\n"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	m := NewMiner([]string{root}, nil)
	m.SetLogDirs(nil)
	m.fileCap = 2
	var warnings []string
	m.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, format)
	})
	rec := newRecorder()

	if err := m.Run(context.Background(), rec.emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := len(rec.all()); got != 2 {
		t.Fatalf("Expected the cap to hold at 2 records, got %d", got)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "truncated") {
		t.Errorf("Expected a truncation warning, got %v", warnings)
	}
}

func TestMinerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMiner([]string{t.TempDir()}, nil)
	m.SetLogDirs(nil)
	if err := m.Run(ctx, func(Record) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
