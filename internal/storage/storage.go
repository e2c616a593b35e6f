// Package storage defines the interface for telemetry storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// ErrNotInitialized is returned when a storage feature is used before the
// schema has been initialized.
var ErrNotInitialized = errors.New("store not initialized")

// ErrClosed is returned when an operation arrives after Close.
var ErrClosed = errors.New("store closed")

// ErrNotFound is wrapped by Get* methods when no row matches, so callers can
// tell a missing record from a store failure with errors.Is.
var ErrNotFound = errors.New("not found")

// EntryWithPrompt carries an entry plus the fields of its linked prompt, for
// the LEFT JOIN projection.
type EntryWithPrompt struct {
	types.Entry
	PromptText      *string    `json:"prompt_text,omitempty"`
	PromptTimestamp *time.Time `json:"prompt_timestamp,omitempty"`
	PromptStatus    *string    `json:"prompt_status,omitempty"`
}

// PromptWithEntry carries a prompt plus the fields of its linked entry.
type PromptWithEntry struct {
	types.Prompt
	EntryFilePath  *string    `json:"entry_file_path,omitempty"`
	EntryTimestamp *time.Time `json:"entry_timestamp,omitempty"`
	EntryWorkspace *string    `json:"entry_workspace,omitempty"`
	EntrySource    *string    `json:"entry_source,omitempty"`
}

// CleanupResult reports how many rows each aged table lost.
type CleanupResult struct {
	Deleted map[string]int64 `json:"deleted"`
	Total   int64            `json:"total"`
}

// Storage is the persistence surface for the ingestion core and the query
// facade. All writes serialize through the implementation's single writer;
// reads may run concurrently. Every method honors ctx cancellation.
type Storage interface {
	// Entries
	SaveEntry(ctx context.Context, entry *types.Entry) error
	SaveEntries(ctx context.Context, entries []*types.Entry) error
	GetEntry(ctx context.Context, id int64) (*types.Entry, error)
	RecentEntries(ctx context.Context, limit, offset int, workspace string, includeCode bool) ([]*types.Entry, error)
	EntriesInTimeRange(ctx context.Context, since, until time.Time, workspace string, limit int) ([]*types.Entry, error)
	EntriesWithPrompts(ctx context.Context, limit int) ([]*EntryWithPrompt, error)
	MaxEntryID(ctx context.Context) (int64, error)
	FindEntryIDByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error)

	// Prompts
	SavePrompt(ctx context.Context, prompt *types.Prompt) error
	SavePrompts(ctx context.Context, prompts []*types.Prompt) error
	GetPrompt(ctx context.Context, id int64) (*types.Prompt, error)
	RecentPrompts(ctx context.Context, limit, offset int, workspace string) ([]*types.Prompt, error)
	PromptsWithEntries(ctx context.Context, limit int) ([]*PromptWithEntry, error)
	PromptsInWindow(ctx context.Context, workspace string, from, to time.Time) ([]*types.Prompt, error)
	MaxPromptID(ctx context.Context) (int64, error)
	MaxPromptTimestamp(ctx context.Context) (time.Time, bool, error)
	FindPromptIDByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error)
	FindPromptIDByComposer(ctx context.Context, composerID string) (int64, bool, error)
	UpdatePromptStatus(ctx context.Context, id int64, status types.PromptStatus) error
	SetPromptConversation(ctx context.Context, promptID int64, conversationID string, index *int, title string) error

	// Correlation
	LinkEntryPrompt(ctx context.Context, entryID, promptID int64, confidence types.Confidence) error
	SetEntryConfidence(ctx context.Context, entryID int64, confidence types.Confidence) error

	// Conversations. GetConversation returns (nil, nil) for an unknown id
	// rather than an error: conversation assignment probes for existence on
	// every prompt, and absence is the common case there.
	SaveConversation(ctx context.Context, conv *types.Conversation) error
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	ConversationsByWorkspace(ctx context.Context, workspace string, limit int) ([]*types.Conversation, error)
	ConversationPrompts(ctx context.Context, conversationID string) ([]*types.Prompt, error)
	RefreshConversationRollup(ctx context.Context, conversationID string) error

	// Events, terminal commands, status messages
	SaveEvent(ctx context.Context, event *types.Event) error
	RecentEvents(ctx context.Context, limit, offset int) ([]*types.Event, error)
	SaveTerminalCommand(ctx context.Context, cmd *types.TerminalCommand) error
	RecentTerminalCommands(ctx context.Context, limit, offset int) ([]*types.TerminalCommand, error)
	TerminalCommandsInRange(ctx context.Context, since, until time.Time, limit int) ([]*types.TerminalCommand, error)
	SaveStatusMessage(ctx context.Context, msg *types.StatusMessage) error
	RecentStatusMessages(ctx context.Context, limit, offset int) ([]*types.StatusMessage, error)

	// Context snapshots and deltas
	SaveContextSnapshot(ctx context.Context, snap *types.ContextSnapshot) error
	LatestContextSnapshot(ctx context.Context, promptID *int64, sessionID string) (*types.ContextSnapshot, error)
	SaveContextChange(ctx context.Context, change *types.ContextChange) error
	RecentContextChanges(ctx context.Context, sessionID string, limit int) ([]*types.ContextChange, error)

	// Todos
	SaveTodo(ctx context.Context, todo *types.Todo) error
	GetTodo(ctx context.Context, id string) (*types.Todo, error)
	ListTodos(ctx context.Context, limit, offset int) ([]*types.Todo, error)
	UpdateTodoStatus(ctx context.Context, id string, status types.TodoStatus) error
	SaveTodoEvent(ctx context.Context, ev *types.TodoEvent) error
	ListTodoEvents(ctx context.Context, todoID string) ([]*types.TodoEvent, error)

	// Share links (table upkeep only; the sharing service is external)
	SaveShareLink(ctx context.Context, link *types.ShareLink) error
	PurgeExpiredShareLinks(ctx context.Context, now time.Time) (int64, error)

	// Schema registry
	SaveSchemaFieldConfig(ctx context.Context, cfg *types.SchemaFieldConfig) error
	DeleteSchemaFieldConfig(ctx context.Context, table, field string, workspaceID *string) error
	GetSchemaFieldConfigs(ctx context.Context, table string, workspaceID *string) ([]*types.SchemaFieldConfig, error)

	// Introspection, health, maintenance
	Stats(ctx context.Context) (*types.Stats, error)
	Validate(ctx context.Context) (*types.ValidationReport, error)
	Schema(ctx context.Context) (map[string][]types.ColumnInfo, error)
	TableSchema(ctx context.Context, table string) ([]types.ColumnInfo, error)
	Cleanup(ctx context.Context, retention time.Duration) (*CleanupResult, error)
	CleanupPreview(ctx context.Context, retention time.Duration) (*CleanupResult, error)
	Ping(ctx context.Context) error
	QuickCheck(ctx context.Context) (string, error)

	// Metadata is small keyed daemon state (adapter cursors, marks).
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	Close() error
}
