package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

func TestEntryFingerprintComponents(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 15, 0, time.UTC)
	base := &types.Entry{Source: types.SourceFileWatcher, Timestamp: ts, FilePath: "util.js"}

	if got := EntryFingerprint(base); got != EntryFingerprint(base) {
		t.Error("Expected fingerprint to be deterministic")
	}

	otherFile := &types.Entry{Source: types.SourceFileWatcher, Timestamp: ts, FilePath: "main.js"}
	otherTime := &types.Entry{Source: types.SourceFileWatcher, Timestamp: ts.Add(time.Second), FilePath: "util.js"}
	otherSource := &types.Entry{Source: types.SourceClipboard, Timestamp: ts, FilePath: "util.js"}

	fp := EntryFingerprint(base)
	for name, other := range map[string]*types.Entry{
		"file":   otherFile,
		"time":   otherTime,
		"source": otherSource,
	} {
		if EntryFingerprint(other) == fp {
			t.Errorf("Expected different %s to change the fingerprint", name)
		}
	}
}

func TestPromptFingerprintComposerWins(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := &types.Prompt{ComposerID: "c77", Text: "first wording", Timestamp: ts}
	b := &types.Prompt{ComposerID: "c77", Text: "second wording entirely", Timestamp: ts.Add(time.Hour)}

	if PromptFingerprint(a) != PromptFingerprint(b) {
		t.Error("Expected composer id to dominate text and time")
	}

	zero, one := 0, 1
	withZero := &types.Prompt{ComposerID: "c77", ConversationIndex: &zero}
	withOne := &types.Prompt{ComposerID: "c77", ConversationIndex: &one}
	if PromptFingerprint(withZero) == PromptFingerprint(withOne) {
		t.Error("Expected message index to split a composer's fingerprint")
	}
	if PromptFingerprint(withZero) == PromptFingerprint(a) {
		t.Error("Expected indexed and unindexed fingerprints to differ")
	}
}

func TestPromptFingerprintTextFallback(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 5, 0, time.UTC)
	a := &types.Prompt{Text: "refactor the parser", Timestamp: ts}
	sameMinute := &types.Prompt{Text: "refactor the parser", Timestamp: ts.Add(40 * time.Second)}
	nextMinute := &types.Prompt{Text: "refactor the parser", Timestamp: ts.Add(70 * time.Second)}

	if PromptFingerprint(a) != PromptFingerprint(sameMinute) {
		t.Error("Expected same text within a minute to share a fingerprint")
	}
	if PromptFingerprint(a) == PromptFingerprint(nextMinute) {
		t.Error("Expected a later minute to change the fingerprint")
	}

	long := &types.Prompt{Text: strings.Repeat("x", 50) + " tail one", Timestamp: ts}
	longOther := &types.Prompt{Text: strings.Repeat("x", 50) + " tail two", Timestamp: ts}
	if PromptFingerprint(long) != PromptFingerprint(longOther) {
		t.Error("Expected only the text prefix to feed the fingerprint")
	}
	short := &types.Prompt{Text: strings.Repeat("x", 49) + "y", Timestamp: ts}
	if PromptFingerprint(long) == PromptFingerprint(short) {
		t.Error("Expected differing prefixes to differ")
	}
}

func TestCommandAndTodoTokens(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cmd := &types.TerminalCommand{Shell: "zsh", Timestamp: ts, Command: "git status"}
	same := &types.TerminalCommand{Shell: "zsh", Timestamp: ts, Command: "git status"}
	other := &types.TerminalCommand{Shell: "zsh", Timestamp: ts, Command: "git diff"}

	if CommandToken(cmd) != CommandToken(same) {
		t.Error("Expected identical commands to share a token")
	}
	if CommandToken(cmd) == CommandToken(other) {
		t.Error("Expected different command text to change the token")
	}

	todo := &types.Todo{SessionID: "2026-03-14", Content: "wire the scheduler"}
	sameTodo := &types.Todo{SessionID: "2026-03-14", Content: "wire the scheduler"}
	otherSession := &types.Todo{SessionID: "2026-03-15", Content: "wire the scheduler"}

	if TodoToken(todo) != TodoToken(sameTodo) {
		t.Error("Expected identical todos to share a token")
	}
	if TodoToken(todo) == TodoToken(otherSession) {
		t.Error("Expected a different session to change the token")
	}
}
