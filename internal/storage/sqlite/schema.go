package sqlite

const schema = `
-- Entries table (observed code changes)
-- IDs are assigned by the ingestion pipeline (max+1), not AUTOINCREMENT,
-- so imported rows can keep a stable ordering across sources.
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    workspace_path TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    before_code TEXT NOT NULL DEFAULT '',
    after_code TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    prompt_id INTEGER,
    link_confidence TEXT NOT NULL DEFAULT 'none',
    model_type TEXT NOT NULL DEFAULT '',
    model_name TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id);
CREATE INDEX IF NOT EXISTS idx_entries_workspace ON entries(workspace_path);
CREATE INDEX IF NOT EXISTS idx_entries_prompt ON entries(prompt_id);
-- NOTE: idx_entries_fingerprint is created in the fingerprint_columns
-- migration. It cannot be in the schema because databases created before
-- that migration do not have the fingerprint column yet.

-- Prompts table (observed AI requests)
CREATE TABLE IF NOT EXISTS prompts (
    id INTEGER PRIMARY KEY,
    timestamp TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'captured',
    linked_entry_id INTEGER,
    confidence TEXT NOT NULL DEFAULT 'none',
    source TEXT NOT NULL DEFAULT '',
    workspace_id TEXT NOT NULL DEFAULT '',
    workspace_path TEXT NOT NULL DEFAULT '',
    workspace_name TEXT NOT NULL DEFAULT '',
    composer_id TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL DEFAULT '',
    stats TEXT NOT NULL DEFAULT '{}',
    context_files TEXT NOT NULL DEFAULT '[]',
    context_file_counts TEXT NOT NULL DEFAULT '{}',
    thinking_time INTEGER NOT NULL DEFAULT 0,
    terminal_blocks TEXT NOT NULL DEFAULT '[]',
    attachment_count INTEGER NOT NULL DEFAULT 0,
    conversation_id TEXT,
    conversation_index INTEGER,
    conversation_title TEXT NOT NULL DEFAULT '',
    message_role TEXT NOT NULL DEFAULT '',
    parent_conversation_id TEXT NOT NULL DEFAULT '',
    added_from_database INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_prompts_timestamp ON prompts(timestamp);
CREATE INDEX IF NOT EXISTS idx_prompts_composer ON prompts(composer_id);
CREATE INDEX IF NOT EXISTS idx_prompts_workspace ON prompts(workspace_path);
CREATE INDEX IF NOT EXISTS idx_prompts_status ON prompts(status);
CREATE INDEX IF NOT EXISTS idx_prompts_linked_entry ON prompts(linked_entry_id);
-- NOTE: idx_prompts_fingerprint, idx_prompts_conversation and the unique
-- (conversation_id, conversation_index) index are created in migrations,
-- after the columns they cover exist on older databases.

-- Conversations table (prompt threads)
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL DEFAULT '',
    workspace_path TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    tags TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_message_at TEXT,
    message_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_conversations_workspace ON conversations(workspace_id);
CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at);

-- Events table (session lifecycle, adapter health, correlation decisions)
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    workspace_path TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

-- Terminal commands table (shell history miner output)
CREATE TABLE IF NOT EXISTS terminal_commands (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    shell TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    workspace_path TEXT NOT NULL DEFAULT '',
    output TEXT NOT NULL DEFAULT '',
    exit_code INTEGER,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    entry_id INTEGER,
    prompt_id INTEGER,
    session_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_terminal_timestamp ON terminal_commands(timestamp);
CREATE INDEX IF NOT EXISTS idx_terminal_session ON terminal_commands(session_id);
CREATE INDEX IF NOT EXISTS idx_terminal_exit ON terminal_commands(exit_code);

-- Context snapshots table (context-window composition at prompt time)
CREATE TABLE IF NOT EXISTS context_snapshots (
    id TEXT PRIMARY KEY,
    prompt_id INTEGER,
    session_id TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    file_count INTEGER NOT NULL DEFAULT 0,
    token_estimate INTEGER NOT NULL DEFAULT 0,
    truncated INTEGER NOT NULL DEFAULT 0,
    utilization REAL NOT NULL DEFAULT 0,
    context_files TEXT NOT NULL DEFAULT '[]',
    at_mentions TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON context_snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_snapshots_prompt ON context_snapshots(prompt_id);

-- Context changes table (diff between consecutive snapshots)
CREATE TABLE IF NOT EXISTS context_changes (
    id TEXT PRIMARY KEY,
    prompt_id INTEGER,
    event_id TEXT NOT NULL DEFAULT '',
    task_id TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    prev_file_count INTEGER NOT NULL DEFAULT 0,
    curr_file_count INTEGER NOT NULL DEFAULT 0,
    added TEXT NOT NULL DEFAULT '[]',
    removed TEXT NOT NULL DEFAULT '[]',
    unchanged TEXT NOT NULL DEFAULT '[]',
    net_change INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_context_changes_session ON context_changes(session_id);
CREATE INDEX IF NOT EXISTS idx_context_changes_task ON context_changes(task_id);
CREATE INDEX IF NOT EXISTS idx_context_changes_prompt ON context_changes(prompt_id);

-- Status messages table (editor status line observations)
CREATE TABLE IF NOT EXISTS status_messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_status_timestamp ON status_messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_status_session ON status_messages(session_id);

-- Todos table (agent task lists)
CREATE TABLE IF NOT EXISTS todos (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    order_index INTEGER NOT NULL DEFAULT 0,
    session_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    started_at TEXT,
    completed_at TEXT,
    prompt_ids TEXT NOT NULL DEFAULT '[]',
    files_modified TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_todos_status ON todos(status);
CREATE INDEX IF NOT EXISTS idx_todos_session ON todos(session_id);

-- Todo events table (todo lifecycle audit trail)
CREATE TABLE IF NOT EXISTS todo_events (
    id TEXT PRIMARY KEY,
    todo_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_todo_events_todo ON todo_events(todo_id);

-- Schema config table (per-workspace field display settings)
-- workspace_id NULL means the global default row. The unique index treats
-- NULLs as distinct, so writers delete the old row before inserting.
CREATE TABLE IF NOT EXISTS schema_config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    field_name TEXT NOT NULL,
    workspace_id TEXT,
    display_name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    config TEXT NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_schema_config_key ON schema_config(table_name, field_name, workspace_id);

-- Share links table (token storage only; the serving side lives elsewhere)
CREATE TABLE IF NOT EXISTS share_links (
    id TEXT PRIMARY KEY,
    resource_type TEXT NOT NULL DEFAULT '',
    resource_id TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL,
    created_at TEXT NOT NULL,
    access_expires_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_share_links_token ON share_links(token);
-- NOTE: idx_share_links_expiry is created in the share_links_expiry
-- migration, after access_expires_at exists on older databases.

-- Metadata table (adapter cursors, miner marks, internal state)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
