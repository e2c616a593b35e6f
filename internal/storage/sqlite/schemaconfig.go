package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/LoomLog/internal/types"
)

// matchWorkspace is the NULL-aware predicate for schema_config rows. The
// UNIQUE constraint treats NULLs as distinct, so global rows (workspace_id
// NULL) are deduplicated here rather than by the index.
const matchWorkspace = `table_name = ? AND field_name = ? AND (workspace_id = ? OR (? IS NULL AND workspace_id IS NULL))`

// SaveSchemaFieldConfig replaces the config row for (table, field, workspace).
func (s *SQLiteStorage) SaveSchemaFieldConfig(ctx context.Context, cfg *types.SchemaFieldConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil schema field config")
	}
	if cfg.TableName == "" || cfg.FieldName == "" {
		return fmt.Errorf("schema field config requires table and field names")
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			var ws any
			if cfg.WorkspaceID != nil {
				ws = *cfg.WorkspaceID
			}
			_, err := tx.Exec(`DELETE FROM schema_config WHERE `+matchWorkspace,
				cfg.TableName, cfg.FieldName, ws, ws)
			if err != nil {
				return fmt.Errorf("failed to clear schema config: %w", err)
			}

			enabled := 0
			if cfg.Enabled {
				enabled = 1
			}
			_, err = tx.Exec(`
				INSERT INTO schema_config (table_name, field_name, workspace_id, display_name, description, enabled, config)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, cfg.TableName, cfg.FieldName, ws, cfg.DisplayName, cfg.Description, enabled, formatJSONMap(cfg.Config))
			if err != nil {
				return fmt.Errorf("failed to save schema config: %w", err)
			}
			return nil
		})
	})
}

// DeleteSchemaFieldConfig removes the config row for (table, field, workspace).
// Deleting a row that does not exist is not an error.
func (s *SQLiteStorage) DeleteSchemaFieldConfig(ctx context.Context, table, field string, workspaceID *string) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		var ws any
		if workspaceID != nil {
			ws = *workspaceID
		}
		_, err := db.Exec(`DELETE FROM schema_config WHERE `+matchWorkspace, table, field, ws, ws)
		if err != nil {
			return fmt.Errorf("failed to delete schema config: %w", err)
		}
		return nil
	})
}

// GetSchemaFieldConfigs returns the effective config rows for a table. When a
// workspace is given, its rows override global rows for the same field.
func (s *SQLiteStorage) GetSchemaFieldConfigs(ctx context.Context, table string, workspaceID *string) ([]*types.SchemaFieldConfig, error) {
	var ws any
	if workspaceID != nil {
		ws = *workspaceID
	}

	// Workspace rows sort first so the global fallback can be skipped per
	// field in one pass.
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT table_name, field_name, workspace_id, display_name, description, enabled, config
		FROM schema_config
		WHERE table_name = ? AND (workspace_id IS NULL OR workspace_id = ?)
		ORDER BY workspace_id IS NULL ASC, field_name ASC
	`, table, ws)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]bool)
	var configs []*types.SchemaFieldConfig
	for rows.Next() {
		var (
			cfg       types.SchemaFieldConfig
			workspace sql.NullString
			enabled   int
			configRaw string
		)
		if err := rows.Scan(&cfg.TableName, &cfg.FieldName, &workspace, &cfg.DisplayName, &cfg.Description, &enabled, &configRaw); err != nil {
			return nil, fmt.Errorf("failed to scan schema config: %w", err)
		}
		if seen[cfg.FieldName] {
			continue
		}
		seen[cfg.FieldName] = true

		if workspace.Valid {
			cfg.WorkspaceID = &workspace.String
		}
		cfg.Enabled = enabled != 0
		cfg.Config = parseJSONMap(configRaw)
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}
