package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/correlate"
	"github.com/untoldecay/LoomLog/internal/normalize"
	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// Ingestor routes adapter records through normalization and correlation into
// the store. Malformed records are warned about and dropped so one bad row
// never stalls a batch; store failures surface to the caller, who decides
// whether to retry the poll.
type Ingestor struct {
	store  storage.Storage
	norm   *normalize.Normalizer
	engine *correlate.Engine
	warnf  func(format string, args ...any)

	mu       sync.Mutex
	ingested map[adapters.Kind]int64
	dropped  int64
}

// NewIngestor returns an Ingestor writing through store.
func NewIngestor(store storage.Storage, norm *normalize.Normalizer, engine *correlate.Engine) *Ingestor {
	return &Ingestor{
		store:    store,
		norm:     norm,
		engine:   engine,
		warnf:    func(string, ...any) {},
		ingested: make(map[adapters.Kind]int64),
	}
}

// SetWarnFunc routes warnings about dropped records and failed links.
func (in *Ingestor) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		in.warnf = warnf
	}
}

// Counts reports per-kind ingested totals and the number of records dropped
// as malformed since startup.
func (in *Ingestor) Counts() (map[adapters.Kind]int64, int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[adapters.Kind]int64, len(in.ingested))
	for k, v := range in.ingested {
		out[k] = v
	}
	return out, in.dropped
}

func (in *Ingestor) count(kind adapters.Kind) {
	in.mu.Lock()
	in.ingested[kind]++
	in.mu.Unlock()
}

func (in *Ingestor) drop(format string, args ...any) {
	in.mu.Lock()
	in.dropped++
	in.mu.Unlock()
	in.warnf(format, args...)
}

// Ingest routes one record to the store by kind. Unknown kinds and records
// that cannot be mapped are dropped with a warning and a nil return.
func (in *Ingestor) Ingest(ctx context.Context, rec adapters.Record) error {
	switch rec.Kind {
	case adapters.KindEntry:
		return in.ingestEntry(ctx, rec)
	case adapters.KindPrompt:
		return in.ingestPrompt(ctx, rec)
	case adapters.KindCommand:
		return in.ingestCommand(ctx, rec)
	case adapters.KindTodo:
		return in.ingestTodo(ctx, rec)
	case adapters.KindStatus:
		return in.ingestStatus(ctx, rec)
	case adapters.KindEvent:
		return in.ingestEvent(ctx, rec)
	default:
		in.drop("record with unknown kind %q dropped", rec.Kind)
		return nil
	}
}

func (in *Ingestor) ingestEntry(ctx context.Context, rec adapters.Record) error {
	entry, err := normalize.EntryFromRecord(rec.Payload)
	if err != nil {
		in.drop("entry record dropped: %v", err)
		return nil
	}
	if entry.Source == "" {
		entry.Source = rec.Source
	}
	fresh, err := in.norm.PrepareEntry(ctx, entry)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	if err := in.store.SaveEntry(ctx, entry); err != nil {
		return err
	}
	in.count(adapters.KindEntry)
	if _, err := in.engine.LinkEntry(ctx, entry); err != nil {
		in.warnf("correlation failed for entry %d: %v", entry.ID, err)
	}
	return nil
}

func (in *Ingestor) ingestPrompt(ctx context.Context, rec adapters.Record) error {
	prompt, err := normalize.PromptFromRecord(rec.Payload)
	if err != nil {
		in.drop("prompt record dropped: %v", err)
		return nil
	}
	if prompt.Source == "" {
		prompt.Source = rec.Source
	}
	fresh, err := in.norm.PreparePrompt(ctx, prompt)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	if err := in.store.SavePrompt(ctx, prompt); err != nil {
		return err
	}
	in.count(adapters.KindPrompt)
	if _, err := in.engine.AssignConversation(ctx, prompt); err != nil {
		in.warnf("conversation grouping failed for prompt %d: %v", prompt.ID, err)
	}
	if len(prompt.ContextFiles) > 0 {
		snap := &types.ContextSnapshot{
			PromptID:     &prompt.ID,
			SessionID:    types.SessionIDFor(prompt.Timestamp),
			Timestamp:    prompt.Timestamp,
			ContextFiles: prompt.ContextFiles,
		}
		if _, err := in.engine.RecordSnapshot(ctx, snap); err != nil {
			in.warnf("context snapshot failed for prompt %d: %v", prompt.ID, err)
		}
	}
	return nil
}

func (in *Ingestor) ingestCommand(ctx context.Context, rec adapters.Record) error {
	cmd, err := normalize.TerminalCommandFromRecord(rec.Payload)
	if err != nil {
		in.drop("terminal command record dropped: %v", err)
		return nil
	}
	if cmd.Source == "" {
		cmd.Source = rec.Source
	}
	if err := in.norm.PrepareTerminalCommand(cmd); err != nil {
		return err
	}
	if err := in.store.SaveTerminalCommand(ctx, cmd); err != nil {
		return err
	}
	in.count(adapters.KindCommand)
	return nil
}

// ingestTodo saves the todo and records a lifecycle event when the observed
// status differs from what the store already had. The store's guarded upsert
// refuses status regressions, so the event reflects the transition that
// actually landed, not the raw observation.
func (in *Ingestor) ingestTodo(ctx context.Context, rec adapters.Record) error {
	todo, err := normalize.TodoFromRecord(rec.Payload)
	if err != nil {
		in.drop("todo record dropped: %v", err)
		return nil
	}
	if err := in.norm.PrepareTodo(todo); err != nil {
		return err
	}

	var prevStatus types.TodoStatus
	prev, err := in.store.GetTodo(ctx, todo.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if prev != nil {
		prevStatus = prev.Status
	}

	if err := in.store.SaveTodo(ctx, todo); err != nil {
		return err
	}
	in.count(adapters.KindTodo)

	cur, err := in.store.GetTodo(ctx, todo.ID)
	if err != nil {
		in.warnf("todo %s readback failed: %v", todo.ID, err)
		return nil
	}
	if prev != nil && cur.Status == prevStatus {
		return nil
	}
	ev := &types.TodoEvent{
		TodoID:    cur.ID,
		Type:      "status_change",
		Timestamp: cur.UpdatedAt,
		Details:   map[string]any{"status": string(cur.Status)},
	}
	if prev == nil {
		ev.Type = "created"
	} else {
		ev.Details["from"] = string(prevStatus)
	}
	if err := in.store.SaveTodoEvent(ctx, ev); err != nil {
		in.warnf("todo event for %s failed: %v", cur.ID, err)
	}
	return nil
}

func (in *Ingestor) ingestStatus(ctx context.Context, rec adapters.Record) error {
	msg, err := normalize.StatusMessageFromRecord(rec.Payload)
	if err != nil {
		in.drop("status record dropped: %v", err)
		return nil
	}
	if err := in.norm.PrepareStatusMessage(msg); err != nil {
		return err
	}
	if err := in.store.SaveStatusMessage(ctx, msg); err != nil {
		return err
	}
	in.count(adapters.KindStatus)
	return nil
}

func (in *Ingestor) ingestEvent(ctx context.Context, rec adapters.Record) error {
	event, err := normalize.EventFromRecord(rec.Payload)
	if err != nil {
		in.drop("event record dropped: %v", err)
		return nil
	}
	if err := in.norm.PrepareEvent(event); err != nil {
		return err
	}
	if err := in.store.SaveEvent(ctx, event); err != nil {
		return err
	}
	in.count(adapters.KindEvent)
	return nil
}
