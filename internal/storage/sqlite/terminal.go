package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/types"
)

// terminalColumns is the canonical column order shared by every command scan.
const terminalColumns = `id, command, shell, source, timestamp, workspace_path,
	output, exit_code, duration_ms, error, entry_id, prompt_id, session_id`

func scanTerminalCommand(row rowScanner) (*types.TerminalCommand, error) {
	var (
		c         types.TerminalCommand
		timestamp string
		exitCode  sql.NullInt64
		entryID   sql.NullInt64
		promptID  sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.Command, &c.Shell, &c.Source, &timestamp, &c.WorkspacePath,
		&c.Output, &exitCode, &c.DurationMS, &c.Error, &entryID, &promptID, &c.SessionID,
	)
	if err != nil {
		return nil, err
	}

	c.Timestamp = parseStoredTime(timestamp)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		c.ExitCode = &code
	}
	if entryID.Valid {
		id := entryID.Int64
		c.EntryID = &id
	}
	if promptID.Valid {
		id := promptID.Int64
		c.PromptID = &id
	}
	return &c, nil
}

// SaveTerminalCommand upserts one mined or observed shell invocation.
func (s *SQLiteStorage) SaveTerminalCommand(ctx context.Context, cmd *types.TerminalCommand) error {
	if cmd == nil {
		return fmt.Errorf("nil terminal command")
	}
	if cmd.Command == "" {
		return fmt.Errorf("terminal command requires command text")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO terminal_commands (
				id, command, shell, source, timestamp, workspace_path,
				output, exit_code, duration_ms, error, entry_id, prompt_id, session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cmd.ID, cmd.Command, cmd.Shell, string(cmd.Source),
			types.FormatTimestamp(cmd.Timestamp), cmd.WorkspacePath,
			cmd.Output, cmd.ExitCode, cmd.DurationMS, cmd.Error,
			cmd.EntryID, cmd.PromptID, cmd.SessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to save terminal command: %w", err)
		}
		return nil
	})
}

// RecentTerminalCommands lists commands newest first.
func (s *SQLiteStorage) RecentTerminalCommands(ctx context.Context, limit, offset int) ([]*types.TerminalCommand, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT `+terminalColumns+`
		FROM terminal_commands
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal commands: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var commands []*types.TerminalCommand
	for rows.Next() {
		cmd, err := scanTerminalCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan terminal command: %w", err)
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// TerminalCommandsInRange lists commands whose timestamp falls in
// [since, until], oldest first. Bounds compare as ISO-8601 text, which
// orders the same as time for the canonical layout.
func (s *SQLiteStorage) TerminalCommandsInRange(ctx context.Context, since, until time.Time, limit int) ([]*types.TerminalCommand, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT `+terminalColumns+`
		FROM terminal_commands
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, types.FormatTimestamp(since), types.FormatTimestamp(until), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal commands in range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var commands []*types.TerminalCommand
	for rows.Next() {
		cmd, err := scanTerminalCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan terminal command: %w", err)
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}
