package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// promptColumns is the canonical column order shared by every prompt scan.
const promptColumns = `id, timestamp, text, status, linked_entry_id, confidence, source,
	workspace_id, workspace_path, workspace_name, composer_id, fingerprint,
	stats, context_files, context_file_counts, thinking_time, terminal_blocks,
	attachment_count, conversation_id, conversation_index, conversation_title,
	message_role, parent_conversation_id, added_from_database`

func scanPrompt(row rowScanner) (*types.Prompt, error) {
	var (
		p             types.Prompt
		timestamp     string
		linkedEntryID sql.NullInt64
		statsRaw      string
		filesRaw      string
		countsRaw     string
		blocksRaw     string
		convID        sql.NullString
		convIndex     sql.NullInt64
		fromDB        int
	)
	err := row.Scan(
		&p.ID, &timestamp, &p.Text, &p.Status, &linkedEntryID, &p.Confidence, &p.Source,
		&p.WorkspaceID, &p.WorkspacePath, &p.WorkspaceName, &p.ComposerID, &p.Fingerprint,
		&statsRaw, &filesRaw, &countsRaw, &p.ThinkingTimeMS, &blocksRaw,
		&p.AttachmentCount, &convID, &convIndex, &p.ConversationTitle,
		&p.MessageRole, &p.ParentConversationID, &fromDB,
	)
	if err != nil {
		return nil, err
	}

	p.Timestamp = parseStoredTime(timestamp)
	if linkedEntryID.Valid {
		id := linkedEntryID.Int64
		p.LinkedEntryID = &id
	}
	if statsRaw != "" && statsRaw != "{}" {
		// A malformed blob degrades to zeroed stats rather than failing the scan.
		_ = json.Unmarshal([]byte(statsRaw), &p.Stats)
	}
	p.ContextFiles = parseJSONStringArray(filesRaw)
	if countsRaw != "" && countsRaw != "{}" {
		_ = json.Unmarshal([]byte(countsRaw), &p.ContextFileCounts)
	}
	if blocksRaw != "" && blocksRaw != "[]" {
		_ = json.Unmarshal([]byte(blocksRaw), &p.TerminalBlocks)
	}
	if convID.Valid {
		p.ConversationID = convID.String
	}
	if convIndex.Valid {
		idx := int(convIndex.Int64)
		p.ConversationIndex = &idx
	}
	p.AddedFromDatabase = fromDB != 0
	return &p, nil
}

// insertPromptSQL upserts on id and drops fingerprint duplicates. The update
// arm never regresses correlation state: a linked or discarded status, an
// existing link, and a high confidence all survive a re-save.
const insertPromptSQL = `
	INSERT INTO prompts (
		id, timestamp, text, status, linked_entry_id, confidence, source,
		workspace_id, workspace_path, workspace_name, composer_id, fingerprint,
		stats, context_files, context_file_counts, thinking_time, terminal_blocks,
		attachment_count, conversation_id, conversation_index, conversation_title,
		message_role, parent_conversation_id, added_from_database
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		timestamp = excluded.timestamp,
		text = excluded.text,
		status = CASE WHEN prompts.status = 'captured' THEN excluded.status ELSE prompts.status END,
		linked_entry_id = COALESCE(excluded.linked_entry_id, prompts.linked_entry_id),
		confidence = CASE
			WHEN prompts.confidence = 'high' OR excluded.confidence = 'none'
			THEN prompts.confidence
			ELSE excluded.confidence
		END,
		source = excluded.source,
		workspace_id = excluded.workspace_id,
		workspace_path = excluded.workspace_path,
		workspace_name = excluded.workspace_name,
		composer_id = excluded.composer_id,
		fingerprint = excluded.fingerprint,
		stats = excluded.stats,
		context_files = excluded.context_files,
		context_file_counts = excluded.context_file_counts,
		thinking_time = excluded.thinking_time,
		terminal_blocks = excluded.terminal_blocks,
		attachment_count = excluded.attachment_count,
		conversation_id = COALESCE(excluded.conversation_id, prompts.conversation_id),
		conversation_index = COALESCE(excluded.conversation_index, prompts.conversation_index),
		conversation_title = excluded.conversation_title,
		message_role = excluded.message_role,
		parent_conversation_id = excluded.parent_conversation_id,
		added_from_database = excluded.added_from_database
	ON CONFLICT DO NOTHING
`

func promptInsertArgs(p *types.Prompt) []any {
	var id any
	if p.ID > 0 {
		id = p.ID
	}
	status := p.Status
	if status == "" {
		status = types.PromptCaptured
	}
	confidence := p.Confidence
	if confidence == "" {
		confidence = types.ConfidenceNone
	}
	fromDB := 0
	if p.AddedFromDatabase {
		fromDB = 1
	}
	var convIndex any
	if p.ConversationIndex != nil {
		convIndex = *p.ConversationIndex
	}
	return []any{
		id, types.FormatTimestamp(p.Timestamp), p.Text, string(status), p.LinkedEntryID,
		string(confidence), p.Source,
		p.WorkspaceID, p.WorkspacePath, p.WorkspaceName, p.ComposerID, p.Fingerprint,
		marshalJSON(p.Stats, "{}"), formatJSONStringArray(p.ContextFiles),
		marshalJSON(p.ContextFileCounts, "{}"), p.ThinkingTimeMS,
		marshalJSON(p.TerminalBlocks, "[]"),
		p.AttachmentCount, nullableText(p.ConversationID), convIndex, p.ConversationTitle,
		p.MessageRole, p.ParentConversationID, fromDB,
	}
}

// SavePrompt upserts one prompt. A zero ID lets SQLite assign max(id)+1; the
// assigned value (or the id of the already-stored duplicate) is written back
// to prompt.ID.
func (s *SQLiteStorage) SavePrompt(ctx context.Context, prompt *types.Prompt) error {
	if prompt == nil {
		return fmt.Errorf("nil prompt")
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		res, err := db.Exec(insertPromptSQL, promptInsertArgs(prompt)...)
		if err != nil {
			return fmt.Errorf("failed to save prompt: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			if prompt.Fingerprint != "" {
				var existing int64
				if err := db.QueryRow(`SELECT id FROM prompts WHERE fingerprint = ?`, prompt.Fingerprint).Scan(&existing); err == nil {
					prompt.ID = existing
				}
			}
			return nil
		}
		if prompt.ID == 0 {
			if id, err := res.LastInsertId(); err == nil {
				prompt.ID = id
			}
		}
		return nil
	})
}

// SavePrompts upserts a batch in one transaction.
func (s *SQLiteStorage) SavePrompts(ctx context.Context, prompts []*types.Prompt) error {
	if len(prompts) == 0 {
		return nil
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(insertPromptSQL)
			if err != nil {
				return fmt.Errorf("failed to prepare prompt insert: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, prompt := range prompts {
				res, err := stmt.Exec(promptInsertArgs(prompt)...)
				if err != nil {
					return fmt.Errorf("failed to save prompt batch: %w", err)
				}
				if prompt.ID == 0 {
					if n, _ := res.RowsAffected(); n > 0 {
						if id, err := res.LastInsertId(); err == nil {
							prompt.ID = id
						}
					}
				}
			}
			return nil
		})
	})
}

// GetPrompt returns one prompt by id.
func (s *SQLiteStorage) GetPrompt(ctx context.Context, id int64) (*types.Prompt, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	prompt, err := scanPrompt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prompt %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return prompt, nil
}

// RecentPrompts lists prompts newest first. An empty workspace matches all
// workspaces.
func (s *SQLiteStorage) RecentPrompts(ctx context.Context, limit, offset int, workspace string) ([]*types.Prompt, error) {
	limit, offset = clampPage(limit, offset)

	query := `SELECT ` + promptColumns + ` FROM prompts`
	args := []any{}
	if workspace != "" {
		query += ` WHERE workspace_path = ?`
		args = append(args, workspace)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prompts []*types.Prompt
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, prompt)
	}
	return prompts, rows.Err()
}

// PromptsInWindow lists prompts whose timestamp falls in [from, to], oldest
// first, for correlation candidate lookup. A non-empty workspace keeps
// prompts from that workspace plus those with none recorded: clipboard
// captures carry no workspace yet still have to compete for links on
// temporal and text evidence.
func (s *SQLiteStorage) PromptsInWindow(ctx context.Context, workspace string, from, to time.Time) ([]*types.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{types.FormatTimestamp(from), types.FormatTimestamp(to)}
	if workspace != "" {
		query += ` AND (workspace_path = ? OR workspace_path = '')`
		args = append(args, workspace)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt window: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prompts []*types.Prompt
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, prompt)
	}
	return prompts, rows.Err()
}

// ConversationPrompts lists every prompt assigned to one conversation in
// dialogue order: conversation_index when recorded, else timestamp.
func (s *SQLiteStorage) ConversationPrompts(ctx context.Context, conversationID string) ([]*types.Prompt, error) {
	rows, err := s.rdb.QueryContext(ctx, `SELECT `+promptColumns+` FROM prompts
		WHERE conversation_id = ?
		ORDER BY COALESCE(conversation_index, 2147483647) ASC, timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prompts []*types.Prompt
	for rows.Next() {
		prompt, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, prompt)
	}
	return prompts, rows.Err()
}

// PromptsWithEntries lists prompts newest first joined against their linked
// entry, when any.
func (s *SQLiteStorage) PromptsWithEntries(ctx context.Context, limit int) ([]*storage.PromptWithEntry, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT p.id, p.timestamp, p.text, p.status, p.linked_entry_id, p.confidence, p.source,
			p.workspace_id, p.workspace_path, p.workspace_name, p.composer_id, p.fingerprint,
			p.stats, p.context_files, p.context_file_counts, p.thinking_time, p.terminal_blocks,
			p.attachment_count, p.conversation_id, p.conversation_index, p.conversation_title,
			p.message_role, p.parent_conversation_id, p.added_from_database,
			e.file_path, e.timestamp, e.workspace_path, e.source
		FROM prompts p
		LEFT JOIN entries e ON p.linked_entry_id = e.id
		ORDER BY p.timestamp DESC, p.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts with entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.PromptWithEntry
	for rows.Next() {
		var (
			p             types.Prompt
			timestamp     string
			linkedEntryID sql.NullInt64
			statsRaw      string
			filesRaw      string
			countsRaw     string
			blocksRaw     string
			convID        sql.NullString
			convIndex     sql.NullInt64
			fromDB        int
			eFilePath     sql.NullString
			eTimestamp    sql.NullString
			eWorkspace    sql.NullString
			eSource       sql.NullString
		)
		err := rows.Scan(
			&p.ID, &timestamp, &p.Text, &p.Status, &linkedEntryID, &p.Confidence, &p.Source,
			&p.WorkspaceID, &p.WorkspacePath, &p.WorkspaceName, &p.ComposerID, &p.Fingerprint,
			&statsRaw, &filesRaw, &countsRaw, &p.ThinkingTimeMS, &blocksRaw,
			&p.AttachmentCount, &convID, &convIndex, &p.ConversationTitle,
			&p.MessageRole, &p.ParentConversationID, &fromDB,
			&eFilePath, &eTimestamp, &eWorkspace, &eSource,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt with entry: %w", err)
		}

		p.Timestamp = parseStoredTime(timestamp)
		if linkedEntryID.Valid {
			id := linkedEntryID.Int64
			p.LinkedEntryID = &id
		}
		if statsRaw != "" && statsRaw != "{}" {
			_ = json.Unmarshal([]byte(statsRaw), &p.Stats)
		}
		p.ContextFiles = parseJSONStringArray(filesRaw)
		if countsRaw != "" && countsRaw != "{}" {
			_ = json.Unmarshal([]byte(countsRaw), &p.ContextFileCounts)
		}
		if blocksRaw != "" && blocksRaw != "[]" {
			_ = json.Unmarshal([]byte(blocksRaw), &p.TerminalBlocks)
		}
		if convID.Valid {
			p.ConversationID = convID.String
		}
		if convIndex.Valid {
			idx := int(convIndex.Int64)
			p.ConversationIndex = &idx
		}
		p.AddedFromDatabase = fromDB != 0

		result := &storage.PromptWithEntry{Prompt: p}
		if eFilePath.Valid {
			result.EntryFilePath = &eFilePath.String
		}
		if eTimestamp.Valid {
			t := parseStoredTime(eTimestamp.String)
			result.EntryTimestamp = &t
		}
		if eWorkspace.Valid {
			result.EntryWorkspace = &eWorkspace.String
		}
		if eSource.Valid {
			result.EntrySource = &eSource.String
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// MaxPromptID returns the highest assigned prompt id, 0 on an empty table.
func (s *SQLiteStorage) MaxPromptID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := s.rdb.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM prompts`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to get max prompt id: %w", err)
	}
	return maxID, nil
}

// MaxPromptTimestamp returns the newest prompt timestamp, reporting false on
// an empty table. Incremental editor-db sync seeds its cursor from this.
func (s *SQLiteStorage) MaxPromptTimestamp(ctx context.Context) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.rdb.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM prompts`).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get max prompt timestamp: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false, nil
	}
	return parseStoredTime(raw.String), true, nil
}

// FindPromptIDByFingerprint resolves a fingerprint to a prompt id.
func (s *SQLiteStorage) FindPromptIDByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error) {
	if fingerprint == "" {
		return 0, false, nil
	}
	var id int64
	err := s.rdb.QueryRowContext(ctx, `SELECT id FROM prompts WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up prompt fingerprint: %w", err)
	}
	return id, true, nil
}

// FindPromptIDByComposer resolves a composer id to the first prompt that
// carries it.
func (s *SQLiteStorage) FindPromptIDByComposer(ctx context.Context, composerID string) (int64, bool, error) {
	if composerID == "" {
		return 0, false, nil
	}
	var id int64
	err := s.rdb.QueryRowContext(ctx, `
		SELECT id FROM prompts WHERE composer_id = ? ORDER BY timestamp ASC, id ASC LIMIT 1
	`, composerID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up composer id: %w", err)
	}
	return id, true, nil
}

// UpdatePromptStatus moves a prompt's lifecycle state. Only forward
// transitions apply: captured may become linked or discarded, but neither
// linked nor discarded ever regresses. A blocked transition is a silent
// no-op; an unknown id is an error.
func (s *SQLiteStorage) UpdatePromptStatus(ctx context.Context, id int64, status types.PromptStatus) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		res, err := db.Exec(`
			UPDATE prompts SET status = ?
			WHERE id = ? AND (status = 'captured' OR status = ?)
		`, string(status), id, string(status))
		if err != nil {
			return fmt.Errorf("failed to update prompt status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM prompts WHERE id = ?`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check prompt: %w", err)
			}
			if !exists {
				return fmt.Errorf("prompt not found: %d", id)
			}
		}
		return nil
	})
}

// SetPromptConversation assigns a prompt to a conversation. A nil index
// takes the next free slot in that conversation; an explicit index that
// collides with an existing row is an error.
func (s *SQLiteStorage) SetPromptConversation(ctx context.Context, promptID int64, conversationID string, index *int, title string) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			idx := 0
			if index != nil {
				idx = *index
			} else {
				err := tx.QueryRow(`
					SELECT COALESCE(MAX(conversation_index), -1) + 1
					FROM prompts WHERE conversation_id = ?
				`, conversationID).Scan(&idx)
				if err != nil {
					return fmt.Errorf("failed to compute conversation index: %w", err)
				}
			}

			res, err := tx.Exec(`
				UPDATE prompts
				SET conversation_id = ?, conversation_index = ?, conversation_title = ?
				WHERE id = ?
			`, conversationID, idx, title, promptID)
			if err != nil {
				if isUniqueConstraintError(err) {
					return fmt.Errorf("conversation slot %s/%d already taken: %w", conversationID, idx, err)
				}
				return fmt.Errorf("failed to assign conversation: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("prompt not found: %d", promptID)
			}
			return nil
		})
	})
}

// LinkEntryPrompt records a correlation in both directions and promotes the
// prompt to linked, all in one transaction. A high-confidence link is never
// replaced by a weaker one, on either side: the entry keeps its prompt, and a
// prompt already holding a high back-link keeps it even when a second entry
// links to the same prompt at lower confidence.
func (s *SQLiteStorage) LinkEntryPrompt(ctx context.Context, entryID, promptID int64, confidence types.Confidence) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			var entryCurrent string
			err := tx.QueryRow(`SELECT link_confidence FROM entries WHERE id = ?`, entryID).Scan(&entryCurrent)
			if err == sql.ErrNoRows {
				return fmt.Errorf("entry not found: %d", entryID)
			}
			if err != nil {
				return fmt.Errorf("failed to check entry link: %w", err)
			}

			var promptCurrent string
			err = tx.QueryRow(`SELECT confidence FROM prompts WHERE id = ?`, promptID).Scan(&promptCurrent)
			if err == sql.ErrNoRows {
				return fmt.Errorf("prompt not found: %d", promptID)
			}
			if err != nil {
				return fmt.Errorf("failed to check prompt link: %w", err)
			}

			downgrade := confidence != types.ConfidenceHigh
			if entryCurrent == string(types.ConfidenceHigh) && downgrade {
				return nil
			}

			if _, err := tx.Exec(`
				UPDATE entries SET prompt_id = ?, link_confidence = ? WHERE id = ?
			`, promptID, string(confidence), entryID); err != nil {
				return fmt.Errorf("failed to link entry: %w", err)
			}

			if promptCurrent == string(types.ConfidenceHigh) && downgrade {
				// Keep the prompt's stronger back-link; only promote status.
				_, err = tx.Exec(`
					UPDATE prompts
					SET status = CASE WHEN status = 'captured' THEN 'linked' ELSE status END
					WHERE id = ?
				`, promptID)
			} else {
				_, err = tx.Exec(`
					UPDATE prompts
					SET linked_entry_id = ?, confidence = ?,
						status = CASE WHEN status = 'captured' THEN 'linked' ELSE status END
					WHERE id = ?
				`, entryID, string(confidence), promptID)
			}
			if err != nil {
				return fmt.Errorf("failed to link prompt: %w", err)
			}
			return nil
		})
	})
}
