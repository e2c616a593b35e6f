package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

const todoColumns = `id, content, status, order_index, session_id,
	created_at, updated_at, started_at, completed_at, prompt_ids, files_modified`

func scanTodo(row rowScanner) (*types.Todo, error) {
	var (
		t           types.Todo
		createdAt   string
		updatedAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		promptsRaw  string
		filesRaw    string
	)
	err := row.Scan(
		&t.ID, &t.Content, &t.Status, &t.OrderIndex, &t.SessionID,
		&createdAt, &updatedAt, &startedAt, &completedAt, &promptsRaw, &filesRaw,
	)
	if err != nil {
		return nil, err
	}

	t.CreatedAt = parseStoredTime(createdAt)
	t.UpdatedAt = parseStoredTime(updatedAt)
	if startedAt.Valid && startedAt.String != "" {
		ts := parseStoredTime(startedAt.String)
		t.StartedAt = &ts
	}
	if completedAt.Valid && completedAt.String != "" {
		ts := parseStoredTime(completedAt.String)
		t.CompletedAt = &ts
	}
	t.PromptIDs = parseJSONInt64Array(promptsRaw)
	t.FilesModified = parseJSONStringArray(filesRaw)
	return &t, nil
}

// todoTransitionAllowed reports whether a stored todo may move to next.
// The lifecycle only moves forward: pending -> in_progress -> completed,
// with the direct pending -> completed jump allowed.
func todoTransitionAllowed(current, next types.TodoStatus) bool {
	if current == next {
		return false
	}
	switch current {
	case types.TodoPending:
		return next == types.TodoInProgress || next == types.TodoCompleted
	case types.TodoInProgress:
		return next == types.TodoCompleted
	default:
		return false
	}
}

// SaveTodo upserts a todo. Re-observing an existing todo merges content and
// ordering but never moves status backwards, and the started_at and
// completed_at stamps are set exactly once, on first entry into their state.
func (s *SQLiteStorage) SaveTodo(ctx context.Context, todo *types.Todo) error {
	if todo == nil {
		return fmt.Errorf("nil todo")
	}
	if todo.ID == "" {
		todo.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			now := time.Now().UTC()
			status := todo.Status
			if status == "" {
				status = types.TodoPending
			}

			existing, err := scanTodo(tx.QueryRow(`SELECT `+todoColumns+` FROM todos WHERE id = ?`, todo.ID))
			if err == sql.ErrNoRows {
				createdAt := todo.CreatedAt
				if createdAt.IsZero() {
					createdAt = now
				}
				startedAt := todo.StartedAt
				if startedAt == nil && status == types.TodoInProgress {
					startedAt = &now
				}
				completedAt := todo.CompletedAt
				if completedAt == nil && status == types.TodoCompleted {
					completedAt = &now
				}
				_, err := tx.Exec(`
					INSERT INTO todos (
						id, content, status, order_index, session_id,
						created_at, updated_at, started_at, completed_at,
						prompt_ids, files_modified
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				`,
					todo.ID, todo.Content, string(status), todo.OrderIndex, todo.SessionID,
					types.FormatTimestamp(createdAt), types.FormatTimestamp(now),
					nullableTime(startedAt), nullableTime(completedAt),
					formatJSONInt64Array(todo.PromptIDs), formatJSONStringArray(todo.FilesModified),
				)
				if err != nil {
					return fmt.Errorf("failed to insert todo: %w", err)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to check todo: %w", err)
			}

			merged := existing.Status
			startedAt := existing.StartedAt
			completedAt := existing.CompletedAt
			if todoTransitionAllowed(existing.Status, status) {
				merged = status
				if merged == types.TodoInProgress && startedAt == nil {
					startedAt = &now
				}
				if merged == types.TodoCompleted && completedAt == nil {
					completedAt = &now
				}
			}

			_, err = tx.Exec(`
				UPDATE todos SET
					content = ?, status = ?, order_index = ?, session_id = ?,
					updated_at = ?, started_at = ?, completed_at = ?,
					prompt_ids = ?, files_modified = ?
				WHERE id = ?
			`,
				todo.Content, string(merged), todo.OrderIndex, todo.SessionID,
				types.FormatTimestamp(now), nullableTime(startedAt), nullableTime(completedAt),
				formatJSONInt64Array(todo.PromptIDs), formatJSONStringArray(todo.FilesModified),
				todo.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update todo: %w", err)
			}
			return nil
		})
	})
}

// GetTodo returns one todo by id.
func (s *SQLiteStorage) GetTodo(ctx context.Context, id string) (*types.Todo, error) {
	todo, err := scanTodo(s.rdb.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("todo %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return todo, nil
}

// ListTodos lists todos in display order.
func (s *SQLiteStorage) ListTodos(ctx context.Context, limit, offset int) ([]*types.Todo, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.rdb.QueryContext(ctx, `
		SELECT `+todoColumns+` FROM todos
		ORDER BY order_index ASC, created_at ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var todos []*types.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// UpdateTodoStatus moves a todo forward through its lifecycle. Regressions
// are silently ignored; an unknown id is an error.
func (s *SQLiteStorage) UpdateTodoStatus(ctx context.Context, id string, status types.TodoStatus) error {
	return s.enqueue(ctx, func(db *sql.DB) error {
		return withTx(db, func(tx *sql.Tx) error {
			existing, err := scanTodo(tx.QueryRow(`SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
			if err == sql.ErrNoRows {
				return fmt.Errorf("todo not found: %s", id)
			}
			if err != nil {
				return fmt.Errorf("failed to check todo: %w", err)
			}
			if !todoTransitionAllowed(existing.Status, status) {
				return nil
			}

			now := time.Now().UTC()
			startedAt := existing.StartedAt
			completedAt := existing.CompletedAt
			if status == types.TodoInProgress && startedAt == nil {
				startedAt = &now
			}
			if status == types.TodoCompleted && completedAt == nil {
				completedAt = &now
			}

			_, err = tx.Exec(`
				UPDATE todos SET status = ?, updated_at = ?, started_at = ?, completed_at = ?
				WHERE id = ?
			`, string(status), types.FormatTimestamp(now), nullableTime(startedAt), nullableTime(completedAt), id)
			if err != nil {
				return fmt.Errorf("failed to update todo status: %w", err)
			}
			return nil
		})
	})
}

// SaveTodoEvent records one observed todo transition.
func (s *SQLiteStorage) SaveTodoEvent(ctx context.Context, ev *types.TodoEvent) error {
	if ev == nil {
		return fmt.Errorf("nil todo event")
	}
	if ev.TodoID == "" {
		return fmt.Errorf("todo event requires todo_id")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO todo_events (id, todo_id, type, timestamp, details)
			VALUES (?, ?, ?, ?, ?)
		`,
			ev.ID, ev.TodoID, ev.Type, types.FormatTimestamp(ev.Timestamp),
			formatJSONMap(ev.Details),
		)
		if err != nil {
			return fmt.Errorf("failed to save todo event: %w", err)
		}
		return nil
	})
}

// ListTodoEvents lists the audit trail for one todo, oldest first.
func (s *SQLiteStorage) ListTodoEvents(ctx context.Context, todoID string) ([]*types.TodoEvent, error) {
	rows, err := s.rdb.QueryContext(ctx, `
		SELECT id, todo_id, type, timestamp, details
		FROM todo_events
		WHERE todo_id = ?
		ORDER BY timestamp ASC, id ASC
	`, todoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todo events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.TodoEvent
	for rows.Next() {
		var (
			ev         types.TodoEvent
			timestamp  string
			detailsRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.TodoID, &ev.Type, &timestamp, &detailsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan todo event: %w", err)
		}
		ev.Timestamp = parseStoredTime(timestamp)
		ev.Details = parseJSONMap(detailsRaw)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
