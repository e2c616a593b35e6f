// Package normalize is the gate between adapters and the store. Every
// captured record passes through here to pick up defaults, a canonical
// timestamp, and a dedup fingerprint before it is handed to the writer.
// Records that cannot be mapped are rejected so malformed input never
// reaches persistence.
package normalize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// Normalizer fills defaults and deduplicates by fingerprint. It keeps an
// in-process seen set so a polling adapter re-reading the same source rows
// does not hit the store once per duplicate, and falls through to the
// store's fingerprint index for anything observed before this process
// started.
type Normalizer struct {
	store storage.Storage
	warnf func(format string, args ...any)
	now   func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// New returns a Normalizer backed by store.
func New(store storage.Storage) *Normalizer {
	return &Normalizer{
		store: store,
		warnf: func(string, ...any) {},
		now:   time.Now,
		seen:  make(map[string]struct{}),
	}
}

// SetWarnFunc routes warnings about dropped or duplicate records.
func (n *Normalizer) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		n.warnf = warnf
	}
}

// PrepareEntry fills defaults and the dedup fingerprint, then reports
// whether the entry is new. Known duplicates get the stored row's id written
// back so the caller's save becomes an upsert; fresh entries keep a zero id
// for the writer to assign.
func (n *Normalizer) PrepareEntry(ctx context.Context, entry *types.Entry) (bool, error) {
	if entry == nil {
		return false, fmt.Errorf("nil entry")
	}
	if entry.FilePath == "" {
		return false, fmt.Errorf("entry requires a file path")
	}
	n.fillTimestamp(&entry.Timestamp, &entry.Source)
	if entry.SessionID == "" {
		entry.SessionID = types.SessionIDFor(entry.Timestamp)
	}
	if entry.LinkConfidence == "" {
		entry.LinkConfidence = types.ConfidenceNone
	}
	if entry.Fingerprint == "" {
		entry.Fingerprint = EntryFingerprint(entry)
	}

	fresh := n.remember(entry.Fingerprint)
	id, ok, err := n.store.FindEntryIDByFingerprint(ctx, entry.Fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to check entry fingerprint: %w", err)
	}
	if ok {
		if !fresh {
			n.warnf("duplicate entry for %s ignored (id %d)", entry.FilePath, id)
		}
		entry.ID = id
		return false, nil
	}
	return fresh, nil
}

// PreparePrompt fills defaults and the dedup fingerprint, then reports
// whether the prompt is new. The same editor conversation row re-read on a
// later poll resolves to the row it produced the first time.
func (n *Normalizer) PreparePrompt(ctx context.Context, prompt *types.Prompt) (bool, error) {
	if prompt == nil {
		return false, fmt.Errorf("nil prompt")
	}
	if prompt.Text == "" && prompt.ComposerID == "" {
		return false, fmt.Errorf("prompt requires text or a composer id")
	}
	n.fillTimestamp(&prompt.Timestamp, &prompt.Source)
	if prompt.Status == "" {
		prompt.Status = types.PromptCaptured
	}
	if prompt.Confidence == "" {
		prompt.Confidence = types.ConfidenceNone
	}
	if prompt.Fingerprint == "" {
		prompt.Fingerprint = PromptFingerprint(prompt)
	}

	fresh := n.remember(prompt.Fingerprint)
	id, ok, err := n.store.FindPromptIDByFingerprint(ctx, prompt.Fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to check prompt fingerprint: %w", err)
	}
	if ok {
		prompt.ID = id
		return false, nil
	}
	return fresh, nil
}

// PrepareTerminalCommand fills defaults and derives a deterministic id for
// commands mined without one, so re-reading the same history lines maps onto
// the same rows.
func (n *Normalizer) PrepareTerminalCommand(cmd *types.TerminalCommand) error {
	if cmd == nil {
		return fmt.Errorf("nil terminal command")
	}
	if cmd.Command == "" {
		return fmt.Errorf("terminal command requires command text")
	}
	n.fillTimestamp(&cmd.Timestamp, &cmd.Source)
	if cmd.SessionID == "" {
		cmd.SessionID = types.SessionIDFor(cmd.Timestamp)
	}
	if cmd.ID == "" {
		cmd.ID = CommandToken(cmd)
	}
	return nil
}

// PrepareTodo fills defaults and derives a deterministic id for todos
// observed without one, so repeated reads of the same task list merge into
// one row per item.
func (n *Normalizer) PrepareTodo(todo *types.Todo) error {
	if todo == nil {
		return fmt.Errorf("nil todo")
	}
	if todo.Content == "" {
		return fmt.Errorf("todo requires content")
	}
	if todo.Status == "" {
		todo.Status = types.TodoPending
	}
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = n.now().UTC()
	}
	if todo.UpdatedAt.IsZero() {
		todo.UpdatedAt = todo.CreatedAt
	}
	if todo.SessionID == "" {
		todo.SessionID = types.SessionIDFor(todo.CreatedAt)
	}
	if todo.ID == "" {
		todo.ID = TodoToken(todo)
	}
	return nil
}

// PrepareStatusMessage fills defaults and derives a deterministic id so a
// re-sampled status line maps onto the same row.
func (n *Normalizer) PrepareStatusMessage(msg *types.StatusMessage) error {
	if msg == nil {
		return fmt.Errorf("nil status message")
	}
	if msg.Text == "" {
		return fmt.Errorf("status message requires text")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = n.now().UTC()
	}
	if msg.SessionID == "" {
		msg.SessionID = types.SessionIDFor(msg.Timestamp)
	}
	if msg.Action == "" {
		msg.Action = types.ActionStatus
	}
	if msg.ID == "" {
		msg.ID = StatusToken(msg)
	}
	return nil
}

// PrepareEvent fills defaults and derives a deterministic id for events
// recorded without one.
func (n *Normalizer) PrepareEvent(event *types.Event) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	if event.Type == "" {
		return fmt.Errorf("event requires a type")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = n.now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = types.SessionIDFor(event.Timestamp)
	}
	if event.ID == "" {
		event.ID = EventToken(event)
	}
	return nil
}

// fillTimestamp assigns now() to records that arrived without a timestamp
// and marks their provenance as import.
func (n *Normalizer) fillTimestamp(ts *time.Time, source *types.Source) {
	if ts.IsZero() {
		*ts = n.now().UTC()
		*source = types.SourceImport
	}
}

// remember adds fingerprint to the seen set and reports whether it was new
// to this process.
func (n *Normalizer) remember(fingerprint string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.seen[fingerprint]; ok {
		return false
	}
	n.seen[fingerprint] = struct{}{}
	return true
}
