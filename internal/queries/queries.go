// Package queries is the read surface served to dashboards and the CLI.
// Every operation tolerates a cold store by returning empty results, never
// an error, and list reads paginate with (limit, offset). A per-key TTL
// cache sits above the store so dashboard polling does not hammer the read
// pool; staleness is bounded by the TTL and writers are never blocked.
package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

const (
	defaultCacheTTL = 60 * time.Second
	defaultLimit    = 50
	maxLimit        = 1000
)

// Config tunes the facade.
type Config struct {
	// CacheTTL bounds staleness of cached reads. Zero takes the 60s
	// default; negative disables caching.
	CacheTTL time.Duration
}

// Facade wraps the store's read methods behind named operations.
type Facade struct {
	store storage.Storage
	cache *ttlCache
}

// New returns a Facade reading from store.
func New(store storage.Storage, cfg Config) *Facade {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &Facade{store: store, cache: newTTLCache(ttl)}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// RecentEntries returns newest-first entries, code bodies excluded for
// list views.
func (f *Facade) RecentEntries(ctx context.Context, limit, offset int, workspace string) ([]*types.Entry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("recent_entries:%d:%d:%s", limit, offset, workspace)
	return cached(f.cache, key, func() ([]*types.Entry, error) {
		entries, err := f.store.RecentEntries(ctx, limit, offset, workspace, false)
		return nonNil(entries), err
	})
}

// EntriesWithCode returns newest-first entries including before/after code
// bodies.
func (f *Facade) EntriesWithCode(ctx context.Context, limit int) ([]*types.Entry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("entries_with_code:%d", limit)
	return cached(f.cache, key, func() ([]*types.Entry, error) {
		entries, err := f.store.RecentEntries(ctx, limit, 0, "", true)
		return nonNil(entries), err
	})
}

// EntriesInTimeRange returns entries with timestamps in [since, until],
// oldest first.
func (f *Facade) EntriesInTimeRange(ctx context.Context, since, until time.Time, workspace string, limit int) ([]*types.Entry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("entries_in_range:%s:%s:%s:%d",
		types.FormatTimestamp(since), types.FormatTimestamp(until), workspace, limit)
	return cached(f.cache, key, func() ([]*types.Entry, error) {
		entries, err := f.store.EntriesInTimeRange(ctx, since, until, workspace, limit)
		return nonNil(entries), err
	})
}

// RecentPrompts returns newest-first prompts.
func (f *Facade) RecentPrompts(ctx context.Context, limit, offset int, workspace string) ([]*types.Prompt, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("recent_prompts:%d:%d:%s", limit, offset, workspace)
	return cached(f.cache, key, func() ([]*types.Prompt, error) {
		prompts, err := f.store.RecentPrompts(ctx, limit, offset, workspace)
		return nonNil(prompts), err
	})
}

// PromptsInRange returns prompts with timestamps in [since, until], oldest
// first.
func (f *Facade) PromptsInRange(ctx context.Context, workspace string, since, until time.Time) ([]*types.Prompt, error) {
	key := fmt.Sprintf("prompts_range:%s:%d:%d", workspace, since.Unix(), until.Unix())
	return cached(f.cache, key, func() ([]*types.Prompt, error) {
		prompts, err := f.store.PromptsInWindow(ctx, workspace, since, until)
		return nonNil(prompts), err
	})
}

// EntriesWithPrompts returns newest-first entries joined with their linked
// prompt's text, timestamp, and status.
func (f *Facade) EntriesWithPrompts(ctx context.Context, limit int) ([]*storage.EntryWithPrompt, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("entries_with_prompts:%d", limit)
	return cached(f.cache, key, func() ([]*storage.EntryWithPrompt, error) {
		rows, err := f.store.EntriesWithPrompts(ctx, limit)
		return nonNil(rows), err
	})
}

// PromptsWithEntries returns newest-first prompts joined with their linked
// entry's file path, timestamp, and workspace.
func (f *Facade) PromptsWithEntries(ctx context.Context, limit int) ([]*storage.PromptWithEntry, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("prompts_with_entries:%d", limit)
	return cached(f.cache, key, func() ([]*storage.PromptWithEntry, error) {
		rows, err := f.store.PromptsWithEntries(ctx, limit)
		return nonNil(rows), err
	})
}

// ConversationsByWorkspace returns conversations ordered by last message,
// newest first.
func (f *Facade) ConversationsByWorkspace(ctx context.Context, workspace string, limit int) ([]*types.Conversation, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("conversations:%s:%d", workspace, limit)
	return cached(f.cache, key, func() ([]*types.Conversation, error) {
		convs, err := f.store.ConversationsByWorkspace(ctx, workspace, limit)
		return nonNil(convs), err
	})
}

// Conversation returns one conversation by id, nil when unknown.
func (f *Facade) Conversation(ctx context.Context, id string) (*types.Conversation, error) {
	return f.store.GetConversation(ctx, id)
}

// ConversationPrompts returns a conversation's prompts in dialogue order.
func (f *Facade) ConversationPrompts(ctx context.Context, id string) ([]*types.Prompt, error) {
	return cached(f.cache, "conversation_prompts:"+id, func() ([]*types.Prompt, error) {
		prompts, err := f.store.ConversationPrompts(ctx, id)
		return nonNil(prompts), err
	})
}

// RecentTerminalCommands returns newest-first shell commands.
func (f *Facade) RecentTerminalCommands(ctx context.Context, limit, offset int) ([]*types.TerminalCommand, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("recent_commands:%d:%d", limit, offset)
	return cached(f.cache, key, func() ([]*types.TerminalCommand, error) {
		cmds, err := f.store.RecentTerminalCommands(ctx, limit, offset)
		return nonNil(cmds), err
	})
}

// TerminalCommandsInRange returns shell commands with timestamps in
// [since, until], oldest first.
func (f *Facade) TerminalCommandsInRange(ctx context.Context, since, until time.Time, limit int) ([]*types.TerminalCommand, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("commands_in_range:%s:%s:%d",
		types.FormatTimestamp(since), types.FormatTimestamp(until), limit)
	return cached(f.cache, key, func() ([]*types.TerminalCommand, error) {
		cmds, err := f.store.TerminalCommandsInRange(ctx, since, until, limit)
		return nonNil(cmds), err
	})
}

// Todos returns tracked todos, active ones first.
func (f *Facade) Todos(ctx context.Context, limit, offset int) ([]*types.Todo, error) {
	limit = clampLimit(limit)
	key := fmt.Sprintf("todos:%d:%d", limit, offset)
	return cached(f.cache, key, func() ([]*types.Todo, error) {
		todos, err := f.store.ListTodos(ctx, limit, offset)
		return nonNil(todos), err
	})
}

// Stats returns per-table counts and link percentages. Never cached: it is
// the health surface, and health must not lag.
func (f *Facade) Stats(ctx context.Context) (*types.Stats, error) {
	return f.store.Stats(ctx)
}

// Schema returns every table's columns for UI introspection.
func (f *Facade) Schema(ctx context.Context) (map[string][]types.ColumnInfo, error) {
	return cached(f.cache, "schema", func() (map[string][]types.ColumnInfo, error) {
		return f.store.Schema(ctx)
	})
}

// TableSchema returns one table's columns.
func (f *Facade) TableSchema(ctx context.Context, table string) ([]types.ColumnInfo, error) {
	key := "table_schema:" + table
	return cached(f.cache, key, func() ([]types.ColumnInfo, error) {
		cols, err := f.store.TableSchema(ctx, table)
		return nonNil(cols), err
	})
}
