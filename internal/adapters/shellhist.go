package adapters

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// maxHistoryBatch caps how many history entries one poll returns; the rest
// carry over through the cursor marks.
const maxHistoryBatch = 1000

// HistoryFile names one shell history file and the dialect it is written in.
type HistoryFile struct {
	Path  string
	Shell string
}

// HistoryEntry is one parsed history line. A zero Timestamp means the format
// carries none.
type HistoryEntry struct {
	Command    string
	Timestamp  time.Time
	DurationMS int64
	LineNo     int
	Shell      string
}

// zsh extended history: `: <epoch>:<duration>;<command>`.
var zshHeader = regexp.MustCompile(`^: (\d+):(\d+);(.*)$`)

// bash HISTTIMEFORMAT stamp: `#<epoch>` on its own line before the command.
var bashStamp = regexp.MustCompile(`^#(\d{9,11})$`)

// ParseHistory parses a history file's text in the given shell dialect.
// Unknown dialects fall back to plain line-per-command parsing.
func ParseHistory(text, shell string) []HistoryEntry {
	switch strings.ToLower(shell) {
	case "zsh":
		entries := parseZsh(text)
		if len(entries) == 0 {
			// EXTENDED_HISTORY off: the file is plain lines.
			return parsePlain(text, "zsh")
		}
		return entries
	case "bash":
		return parseBash(text)
	default:
		if shell == "" {
			shell = "sh"
		}
		return parsePlain(text, shell)
	}
}

// parseZsh handles the extended format. Lines that do not open a new entry
// continue the previous command; zsh writes multi-line commands that way.
func parseZsh(text string) []HistoryEntry {
	var entries []HistoryEntry
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == len(lines)-1 && line == "" {
			break
		}
		if m := zshHeader.FindStringSubmatch(line); m != nil {
			epoch, _ := strconv.ParseInt(m[1], 10, 64)
			duration, _ := strconv.ParseInt(m[2], 10, 64)
			entries = append(entries, HistoryEntry{
				Command:    m[3],
				Timestamp:  time.Unix(epoch, 0).UTC(),
				DurationMS: duration * 1000,
				LineNo:     i + 1,
				Shell:      "zsh",
			})
			continue
		}
		if len(entries) == 0 {
			continue
		}
		last := &entries[len(entries)-1]
		last.Command = strings.TrimSuffix(last.Command, "\\") + "\n" + line
	}
	return entries
}

func parseBash(text string) []HistoryEntry {
	var entries []HistoryEntry
	var pending time.Time
	for i, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if m := bashStamp.FindStringSubmatch(line); m != nil {
			epoch, _ := strconv.ParseInt(m[1], 10, 64)
			pending = time.Unix(epoch, 0).UTC()
			continue
		}
		entries = append(entries, HistoryEntry{
			Command:   line,
			Timestamp: pending,
			LineNo:    i + 1,
			Shell:     "bash",
		})
		pending = time.Time{}
	}
	return entries
}

func parsePlain(text, shell string) []HistoryEntry {
	var entries []HistoryEntry
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, HistoryEntry{Command: line, LineNo: i + 1, Shell: shell})
	}
	return entries
}

// ShellHistory polls configured history files for appended commands. The
// first sight of a file records its current length without emitting; the
// full backfill belongs to the historical miner.
type ShellHistory struct {
	files []HistoryFile

	mu     sync.Mutex
	warned map[string]bool

	warnf func(format string, args ...any)
}

// NewShellHistory creates a poller over the given history files.
func NewShellHistory(files []HistoryFile) *ShellHistory {
	return &ShellHistory{
		files:  files,
		warned: make(map[string]bool),
		warnf:  func(string, ...any) {},
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (sh *ShellHistory) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		sh.warnf = warnf
	}
}

// ID implements Adapter.
func (sh *ShellHistory) ID() string { return "shellhist" }

// Capabilities implements Adapter.
func (sh *ShellHistory) Capabilities() CapabilitySet { return CapabilitySet{Pull: true} }

// Start implements Adapter.
func (sh *ShellHistory) Start(context.Context, func(Record)) error { return ErrUnsupported }

// Stop implements Adapter.
func (sh *ShellHistory) Stop() error { return nil }

// Poll reads each history file and returns commands appended past the
// cursor's per-file marks.
func (sh *ShellHistory) Poll(ctx context.Context, cursor Cursor) ([]Record, Cursor, error) {
	next := Cursor{Since: cursor.Since, Marks: make(map[string]int64, len(sh.files))}
	for path, mark := range cursor.Marks {
		next.Marks[path] = mark
	}

	var records []Record
	for _, hf := range sh.files {
		if err := ctx.Err(); err != nil {
			return nil, cursor, err
		}
		data, err := os.ReadFile(hf.Path)
		if err != nil {
			if os.IsNotExist(err) {
				sh.warnOnce(hf.Path, "history file %s does not exist", hf.Path)
			} else {
				sh.warnf("failed to read history file %s: %v", hf.Path, err)
			}
			continue
		}
		text := string(data)
		lineCount := int64(countLines(text))

		mark, seen := next.Marks[hf.Path]
		if !seen {
			next.Marks[hf.Path] = lineCount
			continue
		}
		if lineCount < mark {
			// Rewritten (deduped or trimmed) history; old content is
			// dominated by commands already captured.
			sh.warnf("history file %s shrank, resuming from its end", hf.Path)
			next.Marks[hf.Path] = lineCount
			continue
		}

		consumed := lineCount
		for _, entry := range ParseHistory(text, hf.Shell) {
			if int64(entry.LineNo) <= mark {
				continue
			}
			if len(records) >= maxHistoryBatch {
				consumed = int64(entry.LineNo) - 1
				break
			}
			records = append(records, commandRecord(entry))
			if entry.Timestamp.After(next.Since) {
				next.Since = entry.Timestamp
			}
		}
		next.Marks[hf.Path] = consumed
	}
	return records, next, nil
}

func (sh *ShellHistory) warnOnce(key, format string, args ...any) {
	sh.mu.Lock()
	already := sh.warned[key]
	sh.warned[key] = true
	sh.mu.Unlock()
	if !already {
		sh.warnf(format, args...)
	}
}

func commandRecord(entry HistoryEntry) Record {
	payload := map[string]any{
		"command": entry.Command,
		"shell":   entry.Shell,
		"source":  string(types.SourceImport),
	}
	if !entry.Timestamp.IsZero() {
		payload["timestamp"] = entry.Timestamp
	}
	if entry.DurationMS > 0 {
		payload["duration_ms"] = entry.DurationMS
	}
	return Record{Kind: KindCommand, Source: types.SourceImport, Payload: payload}
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
