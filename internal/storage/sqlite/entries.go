package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// entryColumns is the canonical column order shared by every entry scan.
const entryColumns = `id, session_id, workspace_path, file_path, source, type,
	before_code, after_code, notes, timestamp, tags, prompt_id,
	link_confidence, model_type, model_name, fingerprint`

// entryColumnsNoCode substitutes empty literals for the code bodies, which
// can be large and are excluded from listing queries by default.
const entryColumnsNoCode = `id, session_id, workspace_path, file_path, source, type,
	'' AS before_code, '' AS after_code, notes, timestamp, tags, prompt_id,
	link_confidence, model_type, model_name, fingerprint`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*types.Entry, error) {
	var (
		e         types.Entry
		timestamp string
		tagsRaw   string
		promptID  sql.NullInt64
		modelType string
		modelName string
	)
	err := row.Scan(
		&e.ID, &e.SessionID, &e.WorkspacePath, &e.FilePath, &e.Source, &e.Type,
		&e.BeforeCode, &e.AfterCode, &e.Notes, &timestamp, &tagsRaw, &promptID,
		&e.LinkConfidence, &modelType, &modelName, &e.Fingerprint,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = parseStoredTime(timestamp)
	e.Tags = parseJSONStringArray(tagsRaw)
	if promptID.Valid {
		id := promptID.Int64
		e.PromptID = &id
	}
	if modelType != "" || modelName != "" {
		e.Model = &types.ModelInfo{Type: modelType, Name: modelName}
	}
	return &e, nil
}

// insertEntrySQL upserts on id and silently drops fingerprint duplicates,
// so re-observing the same mutation never creates a second row and never
// clobbers the first one's correlation state: the update arm keeps an
// existing link unless the incoming row carries one of its own, and a high
// confidence survives any re-save.
const insertEntrySQL = `
	INSERT INTO entries (
		id, session_id, workspace_path, file_path, source, type,
		before_code, after_code, notes, timestamp, tags, prompt_id,
		link_confidence, model_type, model_name, fingerprint
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		session_id = excluded.session_id,
		workspace_path = excluded.workspace_path,
		file_path = excluded.file_path,
		source = excluded.source,
		type = excluded.type,
		before_code = excluded.before_code,
		after_code = excluded.after_code,
		notes = excluded.notes,
		timestamp = excluded.timestamp,
		tags = excluded.tags,
		prompt_id = COALESCE(excluded.prompt_id, entries.prompt_id),
		link_confidence = CASE
			WHEN entries.link_confidence = 'high' OR excluded.link_confidence = 'none'
			THEN entries.link_confidence
			ELSE excluded.link_confidence
		END,
		model_type = excluded.model_type,
		model_name = excluded.model_name,
		fingerprint = excluded.fingerprint
	ON CONFLICT DO NOTHING
`

func entryInsertArgs(e *types.Entry) []any {
	var id any
	if e.ID > 0 {
		id = e.ID
	}
	confidence := e.LinkConfidence
	if confidence == "" {
		confidence = types.ConfidenceNone
	}
	modelType, modelName := "", ""
	if e.Model != nil {
		modelType, modelName = e.Model.Type, e.Model.Name
	}
	return []any{
		id, e.SessionID, e.WorkspacePath, e.FilePath, e.Source, e.Type,
		e.BeforeCode, e.AfterCode, e.Notes, types.FormatTimestamp(e.Timestamp),
		formatJSONStringArray(e.Tags), e.PromptID,
		string(confidence), modelType, modelName, e.Fingerprint,
	}
}

// SaveEntry upserts one entry. A zero ID lets SQLite assign max(id)+1; the
// assigned value (or the id of the already-stored duplicate) is written back
// to entry.ID.
func (s *SQLiteStorage) SaveEntry(ctx context.Context, entry *types.Entry) error {
	if entry == nil {
		return fmt.Errorf("nil entry")
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		res, err := db.Exec(insertEntrySQL, entryInsertArgs(entry)...)
		if err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Fingerprint duplicate: resolve to the existing row.
			if entry.Fingerprint != "" {
				var existing int64
				if err := db.QueryRow(`SELECT id FROM entries WHERE fingerprint = ?`, entry.Fingerprint).Scan(&existing); err == nil {
					entry.ID = existing
				}
			}
			return nil
		}
		if entry.ID == 0 {
			if id, err := res.LastInsertId(); err == nil {
				entry.ID = id
			}
		}
		return nil
	})
}

// SaveEntries upserts a batch in one transaction.
func (s *SQLiteStorage) SaveEntries(ctx context.Context, entries []*types.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(insertEntrySQL)
			if err != nil {
				return fmt.Errorf("failed to prepare entry insert: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, entry := range entries {
				res, err := stmt.Exec(entryInsertArgs(entry)...)
				if err != nil {
					return fmt.Errorf("failed to save entry batch: %w", err)
				}
				if entry.ID == 0 {
					if n, _ := res.RowsAffected(); n > 0 {
						if id, err := res.LastInsertId(); err == nil {
							entry.ID = id
						}
					}
				}
			}
			return nil
		})
	})
}

// GetEntry returns one entry by id, code bodies included.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id int64) (*types.Entry, error) {
	row := s.rdb.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// RecentEntries lists entries newest first. Code bodies are omitted unless
// includeCode is set. An empty workspace matches all workspaces.
func (s *SQLiteStorage) RecentEntries(ctx context.Context, limit, offset int, workspace string, includeCode bool) ([]*types.Entry, error) {
	limit, offset = clampPage(limit, offset)
	cols := entryColumnsNoCode
	if includeCode {
		cols = entryColumns
	}

	query := `SELECT ` + cols + ` FROM entries`
	args := []any{}
	if workspace != "" {
		query += ` WHERE workspace_path = ?`
		args = append(args, workspace)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EntriesInTimeRange lists entries whose timestamp falls in [since, until],
// oldest first. Bounds compare as ISO-8601 text, which orders the same as
// time for the canonical layout.
func (s *SQLiteStorage) EntriesInTimeRange(ctx context.Context, since, until time.Time, workspace string, limit int) ([]*types.Entry, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := `SELECT ` + entryColumnsNoCode + ` FROM entries WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{types.FormatTimestamp(since), types.FormatTimestamp(until)}
	if workspace != "" {
		query += ` AND workspace_path = ?`
		args = append(args, workspace)
	}
	query += ` ORDER BY timestamp ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.rdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries in range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EntriesWithPrompts lists entries newest first joined against their linked
// prompt, when any. Entries that never linked still appear.
func (s *SQLiteStorage) EntriesWithPrompts(ctx context.Context, limit int) ([]*storage.EntryWithPrompt, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT e.id, e.session_id, e.workspace_path, e.file_path, e.source, e.type,
			'' AS before_code, '' AS after_code, e.notes, e.timestamp, e.tags, e.prompt_id,
			e.link_confidence, e.model_type, e.model_name, e.fingerprint,
			p.text, p.timestamp, p.status
		FROM entries e
		LEFT JOIN prompts p ON e.prompt_id = p.id
		ORDER BY e.timestamp DESC, e.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries with prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.EntryWithPrompt
	for rows.Next() {
		var (
			e          types.Entry
			timestamp  string
			tagsRaw    string
			promptID   sql.NullInt64
			modelType  string
			modelName  string
			pText      sql.NullString
			pTimestamp sql.NullString
			pStatus    sql.NullString
		)
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.WorkspacePath, &e.FilePath, &e.Source, &e.Type,
			&e.BeforeCode, &e.AfterCode, &e.Notes, &timestamp, &tagsRaw, &promptID,
			&e.LinkConfidence, &modelType, &modelName, &e.Fingerprint,
			&pText, &pTimestamp, &pStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry with prompt: %w", err)
		}

		e.Timestamp = parseStoredTime(timestamp)
		e.Tags = parseJSONStringArray(tagsRaw)
		if promptID.Valid {
			id := promptID.Int64
			e.PromptID = &id
		}
		if modelType != "" || modelName != "" {
			e.Model = &types.ModelInfo{Type: modelType, Name: modelName}
		}

		result := &storage.EntryWithPrompt{Entry: e}
		if pText.Valid {
			result.PromptText = &pText.String
		}
		if pTimestamp.Valid {
			t := parseStoredTime(pTimestamp.String)
			result.PromptTimestamp = &t
		}
		if pStatus.Valid {
			result.PromptStatus = &pStatus.String
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// MaxEntryID returns the highest assigned entry id, 0 on an empty table.
func (s *SQLiteStorage) MaxEntryID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := s.rdb.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM entries`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to get max entry id: %w", err)
	}
	return maxID, nil
}

// FindEntryIDByFingerprint resolves a fingerprint to an entry id.
func (s *SQLiteStorage) FindEntryIDByFingerprint(ctx context.Context, fingerprint string) (int64, bool, error) {
	if fingerprint == "" {
		return 0, false, nil
	}
	var id int64
	err := s.rdb.QueryRowContext(ctx, `SELECT id FROM entries WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up entry fingerprint: %w", err)
	}
	return id, true, nil
}

// SetEntryConfidence records the best observed link confidence for an entry
// without touching the link itself. An existing high never regresses.
func (s *SQLiteStorage) SetEntryConfidence(ctx context.Context, entryID int64, confidence types.Confidence) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE entries
			SET link_confidence = CASE
				WHEN link_confidence = 'high' THEN link_confidence
				ELSE ?
			END
			WHERE id = ?
		`, string(confidence), entryID)
		if err != nil {
			return fmt.Errorf("failed to set entry confidence: %w", err)
		}
		return nil
	})
}
