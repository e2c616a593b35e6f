// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run.
// Migrations are run in order during database initialization and every one
// of them is idempotent: each introspects the live schema before altering it,
// so a fresh database (created with the full schema) passes through untouched.
var migrationsList = []Migration{
	{"prompts_thinking_time", migratePromptsThinkingTime},
	{"prompts_conversation_columns", migratePromptsConversationColumns},
	{"prompts_message_role", migratePromptsMessageRole},
	{"prompts_added_from_database", migratePromptsAddedFromDatabase},
	{"entries_link_confidence", migrateEntriesLinkConfidence},
	{"fingerprint_columns", migrateFingerprintColumns},
	{"todos_transition_timestamps", migrateTodosTransitionTimestamps},
	{"terminal_link_columns", migrateTerminalLinkColumns},
	{"share_links_expiry", migrateShareLinksExpiry},
	{"schema_config_table", migrateSchemaConfigTable},
}

// MigrationInfo contains metadata about a migration for inspection
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns the list of all registered migrations with
// descriptions. All migrations are idempotent, so this is the full registry
// rather than a pending set.
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{
			Name:        m.Name,
			Description: migrationDescriptions[m.Name],
		}
	}
	return result
}

var migrationDescriptions = map[string]string{
	"prompts_thinking_time":        "Adds thinking_time column to prompts",
	"prompts_conversation_columns": "Adds conversation_id, conversation_index, conversation_title to prompts plus conversation indexes",
	"prompts_message_role":         "Adds message_role and parent_conversation_id columns to prompts",
	"prompts_added_from_database":  "Adds added_from_database provenance flag to prompts",
	"entries_link_confidence":      "Adds link_confidence column to entries",
	"fingerprint_columns":          "Adds fingerprint columns to entries and prompts plus dedup indexes",
	"todos_transition_timestamps":  "Adds started_at and completed_at columns to todos",
	"terminal_link_columns":        "Adds entry_id and prompt_id columns to terminal_commands",
	"share_links_expiry":           "Adds access_expires_at column and expiry index to share_links",
	"schema_config_table":          "Adds schema_config table for field display settings",
}

// RunMigrations executes all registered migrations in order. An EXCLUSIVE
// transaction serializes them across processes: the CLI and the daemon can
// open the same database concurrently, and check-then-alter without a lock
// races into "duplicate column" errors.
//
// A failing migration is logged through warnf and skipped rather than
// aborting the open; the database stays serviceable for everything the
// missing change does not touch.
func RunMigrations(db *sql.DB, warnf func(format string, args ...any)) error {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			warnf("migration %s failed: %v", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}

// columnExists reports whether the table has the named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// tableExists reports whether the named table exists.
func tableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type = 'table' AND name = ?
	`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for table %s: %w", table, err)
	}
	return exists, nil
}

// addColumn adds a column if it does not exist yet.
func addColumn(db *sql.DB, table, column, def string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

func migratePromptsThinkingTime(db *sql.DB) error {
	return addColumn(db, "prompts", "thinking_time", "INTEGER NOT NULL DEFAULT 0")
}

func migratePromptsConversationColumns(db *sql.DB) error {
	if err := addColumn(db, "prompts", "conversation_id", "TEXT"); err != nil {
		return err
	}
	if err := addColumn(db, "prompts", "conversation_index", "INTEGER"); err != nil {
		return err
	}
	if err := addColumn(db, "prompts", "conversation_title", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	// The indexes live here rather than in the schema because databases
	// created before this migration do not have the columns yet.
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_prompts_conversation ON prompts(conversation_id)`); err != nil {
		return fmt.Errorf("failed to create idx_prompts_conversation: %w", err)
	}
	if _, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_prompts_conversation_index
		ON prompts(conversation_id, conversation_index)
		WHERE conversation_id IS NOT NULL AND conversation_index IS NOT NULL
	`); err != nil {
		return fmt.Errorf("failed to create idx_prompts_conversation_index: %w", err)
	}
	return nil
}

func migratePromptsMessageRole(db *sql.DB) error {
	if err := addColumn(db, "prompts", "message_role", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return addColumn(db, "prompts", "parent_conversation_id", "TEXT NOT NULL DEFAULT ''")
}

func migratePromptsAddedFromDatabase(db *sql.DB) error {
	return addColumn(db, "prompts", "added_from_database", "INTEGER NOT NULL DEFAULT 0")
}

func migrateEntriesLinkConfidence(db *sql.DB) error {
	return addColumn(db, "entries", "link_confidence", "TEXT NOT NULL DEFAULT 'none'")
}

func migrateFingerprintColumns(db *sql.DB) error {
	if err := addColumn(db, "entries", "fingerprint", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := addColumn(db, "prompts", "fingerprint", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	// Partial unique indexes: empty fingerprints (direct saves, old rows)
	// never collide, observed records dedup on insert.
	if _, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_fingerprint
		ON entries(fingerprint) WHERE fingerprint != ''
	`); err != nil {
		return fmt.Errorf("failed to create idx_entries_fingerprint: %w", err)
	}
	if _, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_prompts_fingerprint
		ON prompts(fingerprint) WHERE fingerprint != ''
	`); err != nil {
		return fmt.Errorf("failed to create idx_prompts_fingerprint: %w", err)
	}
	return nil
}

func migrateTodosTransitionTimestamps(db *sql.DB) error {
	if err := addColumn(db, "todos", "started_at", "TEXT"); err != nil {
		return err
	}
	return addColumn(db, "todos", "completed_at", "TEXT")
}

func migrateTerminalLinkColumns(db *sql.DB) error {
	if err := addColumn(db, "terminal_commands", "entry_id", "INTEGER"); err != nil {
		return err
	}
	return addColumn(db, "terminal_commands", "prompt_id", "INTEGER")
}

func migrateShareLinksExpiry(db *sql.DB) error {
	if err := addColumn(db, "share_links", "access_expires_at", "TEXT"); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_share_links_expiry ON share_links(access_expires_at)`); err != nil {
		return fmt.Errorf("failed to create idx_share_links_expiry: %w", err)
	}
	return nil
}

func migrateSchemaConfigTable(db *sql.DB) error {
	exists, err := tableExists(db, "schema_config")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`
		CREATE TABLE schema_config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			field_name TEXT NOT NULL,
			workspace_id TEXT,
			display_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			config TEXT NOT NULL DEFAULT '{}'
		);
		CREATE UNIQUE INDEX idx_schema_config_key ON schema_config(table_name, field_name, workspace_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_config: %w", err)
	}
	return nil
}
