package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// countedTables are the tables surfaced by Stats, in display order.
var countedTables = []string{
	"entries",
	"prompts",
	"conversations",
	"events",
	"terminal_commands",
	"context_snapshots",
	"context_changes",
	"status_messages",
	"todos",
	"todo_events",
	"share_links",
	"schema_config",
}

// Stats returns per-table row counts plus correlation coverage.
func (s *SQLiteStorage) Stats(ctx context.Context) (*types.Stats, error) {
	stats := &types.Stats{Counts: make(map[string]int64, len(countedTables))}

	for _, table := range countedTables {
		var count int64
		err := s.rdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats.Counts[table] = count
	}

	var totalEntries, linkedEntries int64
	err := s.rdb.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN prompt_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM entries
	`).Scan(&totalEntries, &linkedEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry link counts: %w", err)
	}
	if totalEntries > 0 {
		stats.LinkedEntryPercent = 100 * float64(linkedEntries) / float64(totalEntries)
	}

	var totalPrompts, linkedPrompts int64
	err = s.rdb.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN linked_entry_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM prompts
	`).Scan(&totalPrompts, &linkedPrompts)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt link counts: %w", err)
	}
	if totalPrompts > 0 {
		stats.LinkedPromptPercent = 100 * float64(linkedPrompts) / float64(totalPrompts)
	}

	return stats, nil
}

// Validate counts dangling cross-references and blank timestamps. Violations
// are reported to the caller, never repaired here.
func (s *SQLiteStorage) Validate(ctx context.Context) (*types.ValidationReport, error) {
	var report types.ValidationReport

	err := s.rdb.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM entries e
		WHERE e.prompt_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM prompts p WHERE p.id = e.prompt_id)
	`).Scan(&report.Checks.OrphanedEntryPrompts)
	if err != nil {
		return nil, fmt.Errorf("failed to count orphaned entry links: %w", err)
	}

	err = s.rdb.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM prompts p
		WHERE p.linked_entry_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM entries e WHERE e.id = p.linked_entry_id)
	`).Scan(&report.Checks.OrphanedPromptEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count orphaned prompt links: %w", err)
	}

	// Blank timestamps cannot come from this store's own writers; they show
	// up in databases produced by earlier tool versions or edited by hand.
	err = s.rdb.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entries WHERE timestamp IS NULL OR timestamp = '') +
			(SELECT COUNT(*) FROM prompts WHERE timestamp IS NULL OR timestamp = '') +
			(SELECT COUNT(*) FROM events WHERE timestamp IS NULL OR timestamp = '')
	`).Scan(&report.Checks.NullTimestamps)
	if err != nil {
		return nil, fmt.Errorf("failed to count null timestamps: %w", err)
	}

	report.Valid = report.Checks.OrphanedEntryPrompts == 0 &&
		report.Checks.OrphanedPromptEntries == 0 &&
		report.Checks.NullTimestamps == 0
	return &report, nil
}

// Schema describes every user table for UI introspection.
func (s *SQLiteStorage) Schema(ctx context.Context) (map[string][]types.ColumnInfo, error) {
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	schema := make(map[string][]types.ColumnInfo, len(tables))
	for _, table := range tables {
		columns, err := s.TableSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		schema[table] = columns
	}
	return schema, nil
}

// TableSchema describes one table's columns.
func (s *SQLiteStorage) TableSchema(ctx context.Context, table string) ([]types.ColumnInfo, error) {
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT name, type, "notnull", dflt_value
		FROM pragma_table_info(?)
		ORDER BY cid
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []types.ColumnInfo
	for rows.Next() {
		var (
			col     types.ColumnInfo
			notNull int
			dflt    sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &dflt); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		col.NotNull = notNull != 0
		col.Default = dflt.String
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table not found: %s", table)
	}
	return columns, nil
}

// agedDelete is one cleanup step. Guards keep any row that a younger row
// still points at, so aging never manufactures orphans.
type agedDelete struct {
	table string
	where string
}

var cleanupSteps = []agedDelete{
	{"terminal_commands", ``},
	{"context_changes", ``},
	{"status_messages", ``},
	{"events", ``},
	{"context_snapshots", ``},
	{"entries", `
		AND NOT EXISTS (SELECT 1 FROM prompts p WHERE p.linked_entry_id = entries.id)
		AND NOT EXISTS (SELECT 1 FROM terminal_commands tc WHERE tc.entry_id = entries.id)`},
	{"prompts", `
		AND NOT EXISTS (SELECT 1 FROM entries e WHERE e.prompt_id = prompts.id)
		AND NOT EXISTS (SELECT 1 FROM terminal_commands tc WHERE tc.prompt_id = prompts.id)
		AND NOT EXISTS (SELECT 1 FROM context_snapshots cs WHERE cs.prompt_id = prompts.id)`},
}

// Cleanup ages out append-only rows older than the retention window. A zero
// or negative retention disables aging. Referencing tables are processed
// before the tables they point at, so the orphan guards only see rows that
// survived their own aging pass.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retention time.Duration) (*storage.CleanupResult, error) {
	result := &storage.CleanupResult{Deleted: make(map[string]int64, len(cleanupSteps))}
	if retention <= 0 {
		return result, nil
	}
	cutoff := types.FormatTimestamp(time.Now().UTC().Add(-retention))

	err := s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			for _, step := range cleanupSteps {
				// Blank timestamps sort below every real one; leave those
				// rows for Validate to report instead of silently aging them.
				res, err := tx.Exec(
					`DELETE FROM `+step.table+` WHERE timestamp < ? AND timestamp != ''`+step.where,
					cutoff,
				)
				if err != nil {
					return fmt.Errorf("failed to clean up %s: %w", step.table, err)
				}
				n, _ := res.RowsAffected()
				result.Deleted[step.table] = n
				result.Total += n
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CleanupPreview counts what Cleanup would delete without deleting anything.
// The counts are approximate under concurrent writes: each referencing table
// is counted against the current state, not against a post-aging snapshot.
func (s *SQLiteStorage) CleanupPreview(ctx context.Context, retention time.Duration) (*storage.CleanupResult, error) {
	result := &storage.CleanupResult{Deleted: make(map[string]int64, len(cleanupSteps))}
	if retention <= 0 {
		return result, nil
	}
	cutoff := types.FormatTimestamp(time.Now().UTC().Add(-retention))

	for _, step := range cleanupSteps {
		var n int64
		err := s.rdb.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+step.table+` WHERE timestamp < ? AND timestamp != ''`+step.where,
			cutoff,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to preview cleanup of %s: %w", step.table, err)
		}
		result.Deleted[step.table] = n
		result.Total += n
	}
	return result, nil
}
