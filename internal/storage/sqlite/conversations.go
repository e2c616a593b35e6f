package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

const conversationColumns = `id, workspace_id, workspace_path, title, status, tags, metadata,
	created_at, updated_at, last_message_at, message_count`

func scanConversation(row rowScanner) (*types.Conversation, error) {
	var (
		c           types.Conversation
		tagsRaw     string
		metadataRaw string
		createdAt   string
		updatedAt   string
		lastMessage sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.WorkspacePath, &c.Title, &c.Status, &tagsRaw, &metadataRaw,
		&createdAt, &updatedAt, &lastMessage, &c.MessageCount,
	)
	if err != nil {
		return nil, err
	}

	c.Tags = parseJSONStringArray(tagsRaw)
	c.Metadata = parseJSONMap(metadataRaw)
	c.CreatedAt = parseStoredTime(createdAt)
	c.UpdatedAt = parseStoredTime(updatedAt)
	if lastMessage.Valid && lastMessage.String != "" {
		t := parseStoredTime(lastMessage.String)
		c.LastMessageAt = &t
	}
	return &c, nil
}

// SaveConversation upserts a conversation. The original created_at survives
// a re-save, and so do the derived message_count and last_message_at: those
// belong to RefreshConversationRollup, and a metadata re-save must not reset
// them.
func (s *SQLiteStorage) SaveConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation requires an id")
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		createdAt := conv.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		updatedAt := conv.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		status := conv.Status
		if status == "" {
			status = types.ConversationActive
		}

		_, err := db.Exec(`
			INSERT INTO conversations (
				id, workspace_id, workspace_path, title, status, tags, metadata,
				created_at, updated_at, last_message_at, message_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				workspace_id = excluded.workspace_id,
				workspace_path = excluded.workspace_path,
				title = excluded.title,
				status = excluded.status,
				tags = excluded.tags,
				metadata = excluded.metadata,
				updated_at = excluded.updated_at
		`,
			conv.ID, conv.WorkspaceID, conv.WorkspacePath, conv.Title, string(status),
			formatJSONStringArray(conv.Tags), formatJSONMap(conv.Metadata),
			types.FormatTimestamp(createdAt), types.FormatTimestamp(updatedAt),
			nullableTime(conv.LastMessageAt), conv.MessageCount,
		)
		if err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		return nil
	})
}

// GetConversation returns one conversation by id, or nil when absent.
func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ConversationsByWorkspace lists conversations for a workspace, most
// recently active first. Conversations that never received a message sort
// last, newest created first. An empty workspace matches all workspaces.
func (s *SQLiteStorage) ConversationsByWorkspace(ctx context.Context, workspace string, limit int) ([]*types.Conversation, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	args := []any{}
	if workspace != "" {
		query += ` WHERE workspace_id = ? OR workspace_path = ?`
		args = append(args, workspace, workspace)
	}
	query += ` ORDER BY last_message_at DESC, created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conversations []*types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// RefreshConversationRollup recomputes message_count and last_message_at
// from the prompts table. Runs after every batch of conversation
// assignments so the denormalized counters never drift from the rows they
// summarize.
func (s *SQLiteStorage) RefreshConversationRollup(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id required")
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE conversations SET
				message_count = (SELECT COUNT(*) FROM prompts WHERE conversation_id = ?),
				last_message_at = (SELECT MAX(timestamp) FROM prompts WHERE conversation_id = ?),
				updated_at = ?
			WHERE id = ?
		`, conversationID, conversationID, types.FormatTimestamp(time.Now().UTC()), conversationID)
		if err != nil {
			return fmt.Errorf("failed to refresh conversation rollup: %w", err)
		}
		return nil
	})
}
