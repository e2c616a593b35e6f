package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/LoomLog/internal/normalize"
	"github.com/untoldecay/LoomLog/internal/types"
)

const editorBatchLimit = 500

// timestampKind is how the sidecar store encodes its timestamp column.
type timestampKind int

const (
	tsText timestampKind = iota
	tsSeconds
	tsMillis
	tsMicros
)

// The timestamp column is probed by name, first match wins.
var editorTimestampColumns = []string{"timestamp", "created_at", "createdAt", "ts"}

// EditorDB reads prompts and composer metadata from the editor's sidecar
// SQLite store. The database is opened read-only and every row is passed
// through as a loose column map, so schema drift costs nothing: unknown
// columns ride along ignored, missing columns yield null fields.
type EditorDB struct {
	path  string
	table string
	limit int

	mu     sync.Mutex
	db     *sql.DB
	tsCol  string
	tsKind timestampKind
	probed bool
	warned map[string]bool

	warnf func(format string, args ...any)
}

// NewEditorDB creates a reader for the sidecar store at path. An empty
// table selects the default "prompts".
func NewEditorDB(path, table string) *EditorDB {
	if table == "" {
		table = "prompts"
	}
	return &EditorDB{
		path:   path,
		table:  table,
		limit:  editorBatchLimit,
		warned: make(map[string]bool),
		warnf:  func(string, ...any) {},
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (e *EditorDB) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		e.warnf = warnf
	}
}

// ID implements Adapter.
func (e *EditorDB) ID() string { return "editordb" }

// Capabilities implements Adapter.
func (e *EditorDB) Capabilities() CapabilitySet { return CapabilitySet{Pull: true} }

// Start implements Adapter.
func (e *EditorDB) Start(context.Context, func(Record)) error { return ErrUnsupported }

// Stop closes the read handle.
func (e *EditorDB) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		err := e.db.Close()
		e.db = nil
		e.probed = false
		return err
	}
	return nil
}

// Poll returns prompt rows with timestamps past cursor.Since, advancing the
// cursor to the newest row seen. A missing sidecar store is not an error;
// the editor may simply not be installed.
func (e *EditorDB) Poll(ctx context.Context, cursor Cursor) ([]Record, Cursor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		if _, err := os.Stat(e.path); err != nil {
			e.warnOnce("missing", "editor store %s not found", e.path)
			return nil, cursor, nil
		}
		dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", e.path)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, cursor, fmt.Errorf("failed to open editor store: %w", err)
		}
		db.SetMaxOpenConns(1)
		e.db = db
	}

	if !e.probed {
		if err := e.probe(ctx); err != nil {
			if isMissingSchema(err) {
				e.warnOnce("table", "editor store has no %q table yet", e.table)
				return nil, cursor, nil
			}
			return nil, cursor, err
		}
	}

	rows, err := e.query(ctx, cursor.Since)
	if err != nil {
		if isMissingSchema(err) {
			// The editor migrated under us; re-probe next poll.
			e.probed = false
			return nil, cursor, nil
		}
		return nil, cursor, fmt.Errorf("failed to read editor store: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, cursor, fmt.Errorf("failed to read editor store columns: %w", err)
	}

	next := cursor
	var records []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, cursor, fmt.Errorf("failed to scan editor row: %w", err)
		}
		payload := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				payload[col] = string(b)
			} else {
				payload[col] = vals[i]
			}
		}
		if e.tsCol != "" {
			if ts, ok := normalize.Time(payload[e.tsCol]); ok && ts.After(next.Since) {
				next.Since = ts
			}
		}
		records = append(records, Record{Kind: KindPrompt, Source: types.SourceEditorDB, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, fmt.Errorf("failed to read editor store: %w", err)
	}
	return records, next, nil
}

// probe discovers the timestamp column and its encoding.
func (e *EditorDB) probe(ctx context.Context) error {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, e.table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(present) == 0 {
		return fmt.Errorf("no such table: %s", e.table)
	}

	e.tsCol = ""
	for _, candidate := range editorTimestampColumns {
		if present[candidate] {
			e.tsCol = candidate
			break
		}
	}
	if e.tsCol == "" {
		e.warnOnce("tscol", "editor store table %q has no recognizable timestamp column; incremental sync disabled", e.table)
		e.probed = true
		return nil
	}

	// Sample one value to learn the encoding; an empty table defaults to
	// text, re-probed once rows appear.
	var sample any
	query := fmt.Sprintf(`SELECT %q FROM %q WHERE %q IS NOT NULL LIMIT 1`, e.tsCol, e.table, e.tsCol)
	switch err := e.db.QueryRowContext(ctx, query).Scan(&sample); err {
	case nil:
		e.tsKind = detectTimestampKind(sample)
		e.probed = true
	case sql.ErrNoRows:
		e.tsKind = tsText
	default:
		return err
	}
	return nil
}

func (e *EditorDB) query(ctx context.Context, since time.Time) (*sql.Rows, error) {
	if e.tsCol == "" {
		return e.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q LIMIT ?`, e.table), e.limit)
	}
	q := fmt.Sprintf(`SELECT * FROM %q WHERE %q > ? ORDER BY %q ASC LIMIT ?`, e.table, e.tsCol, e.tsCol)
	return e.db.QueryContext(ctx, q, e.bindSince(since), e.limit)
}

// bindSince renders the cursor in the column's own encoding so the SQL
// comparison stays meaningful.
func (e *EditorDB) bindSince(since time.Time) any {
	switch e.tsKind {
	case tsSeconds:
		if since.IsZero() {
			return int64(0)
		}
		return since.Unix()
	case tsMillis:
		if since.IsZero() {
			return int64(0)
		}
		return since.UnixMilli()
	case tsMicros:
		if since.IsZero() {
			return int64(0)
		}
		return since.UnixMicro()
	default:
		if since.IsZero() {
			return ""
		}
		return types.FormatTimestamp(since)
	}
}

func (e *EditorDB) warnOnce(key, format string, args ...any) {
	if e.warned[key] {
		return
	}
	e.warned[key] = true
	e.warnf(format, args...)
}

func detectTimestampKind(sample any) timestampKind {
	var n float64
	switch v := sample.(type) {
	case int64:
		n = float64(v)
	case float64:
		n = v
	default:
		return tsText
	}
	switch {
	case n > 1e15:
		return tsMicros
	case n > 1e12:
		return tsMillis
	default:
		return tsSeconds
	}
}

func isMissingSchema(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}
