// Package types defines the canonical entities shared by every LoomLog
// component: observed code changes, captured prompts, conversations, and the
// supporting telemetry records. Adapters produce them, the normalizer fills
// them, the correlator links them, and the store persists them.
package types

import "time"

// Source identifies where a record was observed.
type Source string

const (
	SourceFileWatcher Source = "filewatcher"
	SourceClipboard   Source = "clipboard"
	SourceEditorDB    Source = "editor-db"
	SourceMCP         Source = "mcp"
	SourceImport      Source = "import"
)

// PromptStatus is the lifecycle state of a captured prompt.
// captured -> linked (correlation succeeded) or captured -> discarded (user
// action). linked and discarded are terminal; no regression.
type PromptStatus string

const (
	PromptCaptured  PromptStatus = "captured"
	PromptLinked    PromptStatus = "linked"
	PromptDiscarded PromptStatus = "discarded"
)

// Confidence is the categorical strength of an entry<->prompt correlation.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TodoStatus tracks task items. Transitions: pending -> in_progress ->
// completed, with pending -> completed allowed directly.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// ConversationStatus marks whether a conversation is still receiving
// messages.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// StatusAction is the classified meaning of an editor UI status string.
type StatusAction string

const (
	ActionFileRead   StatusAction = "file_read"
	ActionPlanning   StatusAction = "planning"
	ActionAnalysis   StatusAction = "analysis"
	ActionProcessing StatusAction = "processing"
	ActionThinking   StatusAction = "thinking"
	ActionGenerating StatusAction = "generating"
	ActionSearching  StatusAction = "searching"
	ActionStatus     StatusAction = "status"
)

// ModelInfo describes the model that produced a change or prompt.
type ModelInfo struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Entry is one observed code change: the atom of the activity stream.
type Entry struct {
	ID            int64      `json:"id"`
	SessionID     string     `json:"session_id"`
	WorkspacePath string     `json:"workspace_path"`
	FilePath      string     `json:"file_path"`
	Source        Source     `json:"source"`
	BeforeCode    string     `json:"before_code,omitempty"`
	AfterCode     string     `json:"after_code,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	Tags          []string   `json:"tags,omitempty"`
	PromptID      *int64     `json:"prompt_id,omitempty"`
	Model         *ModelInfo `json:"model,omitempty"`
	Type          string     `json:"type,omitempty"`
	// Confidence of the best correlation candidate, recorded even when the
	// link itself was too weak to persist.
	LinkConfidence Confidence `json:"link_confidence,omitempty"`
	// Fingerprint is the dedup key (source, timestamp, file path digest).
	// Internal bookkeeping, not part of the entity's JSON shape.
	Fingerprint string `json:"-"`
}

// PromptStats carries the structured numbers the editor reports per prompt.
type PromptStats struct {
	LinesAdded   int     `json:"lines_added"`
	LinesRemoved int     `json:"lines_removed"`
	ContextUsage float64 `json:"context_usage"` // [0,1]
	Mode         string  `json:"mode,omitempty"`
	ModelType    string  `json:"model_type,omitempty"`
	ModelName    string  `json:"model_name,omitempty"`
	ForceMode    bool    `json:"force_mode,omitempty"`
	Auto         bool    `json:"auto,omitempty"`
}

// ContextFileCounts breaks the context-file total down by how each file got
// there. Invariant: Count == Explicit + Tabs + Auto.
type ContextFileCounts struct {
	Count    int `json:"count"`
	Explicit int `json:"explicit"`
	Tabs     int `json:"tabs"`
	Auto     int `json:"auto"`
}

// TerminalBlock is one terminal excerpt attached to a prompt.
type TerminalBlock struct {
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Prompt is one AI request or chat message observed from the editor's
// sidecar store or the clipboard.
type Prompt struct {
	ID            int64        `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	Text          string       `json:"text"`
	Status        PromptStatus `json:"status"`
	LinkedEntryID *int64       `json:"linked_entry_id,omitempty"`
	Source        Source       `json:"source"`

	WorkspaceID   string `json:"workspace_id,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`

	ComposerID string      `json:"composer_id,omitempty"`
	Stats      PromptStats `json:"stats"`
	Confidence Confidence  `json:"confidence,omitempty"`

	ContextFiles      []string          `json:"context_files,omitempty"`
	ContextFileCounts ContextFileCounts `json:"context_file_counts"`

	ThinkingTimeMS  int64           `json:"thinking_time_ms"`
	TerminalBlocks  []TerminalBlock `json:"terminal_blocks,omitempty"`
	AttachmentCount int             `json:"attachment_count"`

	ConversationID    string `json:"conversation_id,omitempty"`
	ConversationIndex *int   `json:"conversation_index,omitempty"`
	ConversationTitle string `json:"conversation_title,omitempty"`
	MessageRole       string `json:"message_role,omitempty"`

	// ParentConversationID is only ever read as a fallback when composer_id
	// is absent during conversation assignment.
	ParentConversationID string `json:"parent_conversation_id,omitempty"`

	// AddedFromDatabase is recorded verbatim from the sidecar store; nothing
	// branches on it.
	AddedFromDatabase bool `json:"added_from_database,omitempty"`

	// Fingerprint is the dedup key: composer id when present, else a digest
	// of (timestamp bucket, text prefix). Internal bookkeeping.
	Fingerprint string `json:"-"`
}

// Conversation groups the prompts of one dialogue.
type Conversation struct {
	ID            string             `json:"id"`
	WorkspaceID   string             `json:"workspace_id,omitempty"`
	WorkspacePath string             `json:"workspace_path,omitempty"`
	Title         string             `json:"title,omitempty"`
	Status        ConversationStatus `json:"status"`
	Tags          []string           `json:"tags,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	MessageCount  int                `json:"message_count"`
}

// Event is a free-form system event (lifecycle, error, status).
type Event struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id,omitempty"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Type          string         `json:"type"`
	Details       map[string]any `json:"details,omitempty"`
}

// TerminalCommand is one shell invocation mined from history or observed
// live.
type TerminalCommand struct {
	ID            string     `json:"id"`
	Command       string     `json:"command"`
	Shell         string     `json:"shell,omitempty"`
	Source        Source     `json:"source"`
	Timestamp     time.Time  `json:"timestamp"`
	WorkspacePath string     `json:"workspace_path,omitempty"`
	Output        string     `json:"output,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	DurationMS    int64      `json:"duration_ms,omitempty"`
	Error         string     `json:"error,omitempty"`
	EntryID       *int64     `json:"entry_id,omitempty"`
	PromptID      *int64     `json:"prompt_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
}

// ContextSnapshot captures what was in the context window when a prompt ran.
type ContextSnapshot struct {
	ID            string    `json:"id"`
	PromptID      *int64    `json:"prompt_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	FileCount     int       `json:"file_count"`
	TokenEstimate int       `json:"token_estimate"`
	Truncated     bool      `json:"truncated"`
	Utilization   float64   `json:"utilization"` // [0,1]
	ContextFiles  []string  `json:"context_files,omitempty"`
	AtMentions    []string  `json:"at_mentions,omitempty"`
}

// ContextChange is the delta between two consecutive snapshots of the same
// prompt or session scope.
type ContextChange struct {
	ID            string         `json:"id"`
	PromptID      *int64         `json:"prompt_id,omitempty"`
	EventID       string         `json:"event_id,omitempty"`
	TaskID        string         `json:"task_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	PrevFileCount int            `json:"prev_file_count"`
	CurrFileCount int            `json:"curr_file_count"`
	Added         []string       `json:"added,omitempty"`
	Removed       []string       `json:"removed,omitempty"`
	Unchanged     []string       `json:"unchanged,omitempty"`
	NetChange     int            `json:"net_change"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// StatusMessage is one sampled editor UI status string plus its parsed
// action.
type StatusMessage struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Text      string       `json:"text"`
	Action    StatusAction `json:"action"`
}

// Todo is a tracked task item.
type Todo struct {
	ID            string     `json:"id"`
	Content       string     `json:"content"`
	Status        TodoStatus `json:"status"`
	OrderIndex    int        `json:"order_index"`
	SessionID     string     `json:"session_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PromptIDs     []int64    `json:"prompt_ids,omitempty"`
	FilesModified []string   `json:"files_modified,omitempty"`
}

// TodoEvent records one observed transition or annotation on a todo.
type TodoEvent struct {
	ID        string         `json:"id"`
	TodoID    string         `json:"todo_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// ShareLink is a time-limited handle to exported data. The sharing service
// itself lives outside this process; the store only keeps the rows and ages
// them out.
type ShareLink struct {
	ID              string    `json:"id"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	Token           string    `json:"token"`
	CreatedAt       time.Time `json:"created_at"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// SchemaFieldConfig is per-field display metadata, optionally scoped to one
// workspace. A nil WorkspaceID means the global row; workspace rows override
// global on read.
type SchemaFieldConfig struct {
	TableName   string         `json:"table_name"`
	FieldName   string         `json:"field_name"`
	WorkspaceID *string        `json:"workspace_id,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Config      map[string]any `json:"config,omitempty"`
}

// ValidationChecks are the orphan and null counters validate() reports.
type ValidationChecks struct {
	OrphanedEntryPrompts  int `json:"orphaned_entry_prompts"`
	OrphanedPromptEntries int `json:"orphaned_prompt_entries"`
	NullTimestamps        int `json:"null_timestamps"`
}

// ValidationReport is the result of the store's integrity self-check.
// Violations are reported, never auto-repaired.
type ValidationReport struct {
	Valid  bool             `json:"valid"`
	Checks ValidationChecks `json:"checks"`
}

// TableCount pairs a table name with its row count for stats reporting.
type TableCount struct {
	Table string `json:"table"`
	Count int64  `json:"count"`
}

// Stats summarizes store contents plus correlation health.
type Stats struct {
	Counts map[string]int64 `json:"counts"`
	// Percentage of entries carrying a prompt link, and of prompts carrying
	// an entry link, in [0,100].
	LinkedEntryPercent  float64 `json:"linked_entry_percent"`
	LinkedPromptPercent float64 `json:"linked_prompt_percent"`
}

// ColumnInfo describes one column for schema introspection.
type ColumnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"not_null"`
	Default string `json:"default,omitempty"`
}
