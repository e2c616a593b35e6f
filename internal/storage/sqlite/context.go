package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/types"
)

// SaveContextSnapshot upserts one context-window snapshot.
func (s *SQLiteStorage) SaveContextSnapshot(ctx context.Context, snap *types.ContextSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil context snapshot")
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		truncated := 0
		if snap.Truncated {
			truncated = 1
		}
		_, err := db.Exec(`
			INSERT OR REPLACE INTO context_snapshots (
				id, prompt_id, session_id, timestamp, file_count,
				token_estimate, truncated, utilization, context_files, at_mentions
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			snap.ID, snap.PromptID, snap.SessionID, types.FormatTimestamp(snap.Timestamp),
			snap.FileCount, snap.TokenEstimate, truncated, snap.Utilization,
			formatJSONStringArray(snap.ContextFiles), formatJSONStringArray(snap.AtMentions),
		)
		if err != nil {
			return fmt.Errorf("failed to save context snapshot: %w", err)
		}
		return nil
	})
}

func scanContextSnapshot(row rowScanner) (*types.ContextSnapshot, error) {
	var (
		snap        types.ContextSnapshot
		promptID    sql.NullInt64
		timestamp   string
		truncated   int
		filesRaw    string
		mentionsRaw string
	)
	err := row.Scan(
		&snap.ID, &promptID, &snap.SessionID, &timestamp, &snap.FileCount,
		&snap.TokenEstimate, &truncated, &snap.Utilization, &filesRaw, &mentionsRaw,
	)
	if err != nil {
		return nil, err
	}

	if promptID.Valid {
		id := promptID.Int64
		snap.PromptID = &id
	}
	snap.Timestamp = parseStoredTime(timestamp)
	snap.Truncated = truncated != 0
	snap.ContextFiles = parseJSONStringArray(filesRaw)
	snap.AtMentions = parseJSONStringArray(mentionsRaw)
	return &snap, nil
}

// LatestContextSnapshot returns the newest snapshot in the given scope: by
// prompt when promptID is set, else by session. Returns nil when the scope
// has no snapshot yet.
func (s *SQLiteStorage) LatestContextSnapshot(ctx context.Context, promptID *int64, sessionID string) (*types.ContextSnapshot, error) {
	query := `
		SELECT id, prompt_id, session_id, timestamp, file_count,
			token_estimate, truncated, utilization, context_files, at_mentions
		FROM context_snapshots
	`
	var args []any
	if promptID != nil {
		query += ` WHERE prompt_id = ?`
		args = append(args, *promptID)
	} else {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT 1`

	snap, err := scanContextSnapshot(s.rdb.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest context snapshot: %w", err)
	}
	return snap, nil
}

// SaveContextChange upserts one snapshot-to-snapshot delta.
func (s *SQLiteStorage) SaveContextChange(ctx context.Context, change *types.ContextChange) error {
	if change == nil {
		return fmt.Errorf("nil context change")
	}
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO context_changes (
				id, prompt_id, event_id, task_id, session_id, timestamp,
				prev_file_count, curr_file_count, added, removed, unchanged,
				net_change, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			change.ID, change.PromptID, change.EventID, change.TaskID, change.SessionID,
			types.FormatTimestamp(change.Timestamp),
			change.PrevFileCount, change.CurrFileCount,
			formatJSONStringArray(change.Added), formatJSONStringArray(change.Removed),
			formatJSONStringArray(change.Unchanged),
			change.NetChange, formatJSONMap(change.Metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to save context change: %w", err)
		}
		return nil
	})
}

// RecentContextChanges lists deltas newest first for a session; an empty
// session matches all.
func (s *SQLiteStorage) RecentContextChanges(ctx context.Context, sessionID string, limit int) ([]*types.ContextChange, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := `
		SELECT id, prompt_id, event_id, task_id, session_id, timestamp,
			prev_file_count, curr_file_count, added, removed, unchanged,
			net_change, metadata
		FROM context_changes
	`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query context changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []*types.ContextChange
	for rows.Next() {
		var (
			c            types.ContextChange
			promptID     sql.NullInt64
			timestamp    string
			addedRaw     string
			removedRaw   string
			unchangedRaw string
			metadataRaw  string
		)
		err := rows.Scan(
			&c.ID, &promptID, &c.EventID, &c.TaskID, &c.SessionID, &timestamp,
			&c.PrevFileCount, &c.CurrFileCount, &addedRaw, &removedRaw, &unchangedRaw,
			&c.NetChange, &metadataRaw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context change: %w", err)
		}

		if promptID.Valid {
			id := promptID.Int64
			c.PromptID = &id
		}
		c.Timestamp = parseStoredTime(timestamp)
		c.Added = parseJSONStringArray(addedRaw)
		c.Removed = parseJSONStringArray(removedRaw)
		c.Unchanged = parseJSONStringArray(unchangedRaw)
		c.Metadata = parseJSONMap(metadataRaw)
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
