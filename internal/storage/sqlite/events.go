package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/types"
)

// SaveEvent upserts one lifecycle event. A missing id gets a fresh UUID.
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *types.Event) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO events (id, session_id, workspace_path, timestamp, type, details)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			event.ID, event.SessionID, event.WorkspacePath,
			types.FormatTimestamp(event.Timestamp), event.Type,
			formatJSONMap(event.Details),
		)
		if err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		return nil
	})
}

// RecentEvents lists events newest first.
func (s *SQLiteStorage) RecentEvents(ctx context.Context, limit, offset int) ([]*types.Event, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT id, session_id, workspace_path, timestamp, type, details
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var (
			e          types.Event
			timestamp  string
			detailsRaw string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.WorkspacePath, &timestamp, &e.Type, &detailsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = parseStoredTime(timestamp)
		e.Details = parseJSONMap(detailsRaw)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// SaveStatusMessage upserts one classified status-line observation.
func (s *SQLiteStorage) SaveStatusMessage(ctx context.Context, msg *types.StatusMessage) error {
	if msg == nil {
		return fmt.Errorf("nil status message")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO status_messages (id, session_id, timestamp, text, action)
			VALUES (?, ?, ?, ?, ?)
		`,
			msg.ID, msg.SessionID, types.FormatTimestamp(msg.Timestamp), msg.Text, msg.Action,
		)
		if err != nil {
			return fmt.Errorf("failed to save status message: %w", err)
		}
		return nil
	})
}

// RecentStatusMessages lists status messages newest first.
func (s *SQLiteStorage) RecentStatusMessages(ctx context.Context, limit, offset int) ([]*types.StatusMessage, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT id, session_id, timestamp, text, action
		FROM status_messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query status messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.StatusMessage
	for rows.Next() {
		var (
			m         types.StatusMessage
			timestamp string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &timestamp, &m.Text, &m.Action); err != nil {
			return nil, fmt.Errorf("failed to scan status message: %w", err)
		}
		m.Timestamp = parseStoredTime(timestamp)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
