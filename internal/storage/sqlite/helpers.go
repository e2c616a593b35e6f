package sqlite

import (
	"encoding/json"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// defaultPageLimit caps result sets when callers pass no limit.
const defaultPageLimit = 50

// clampPage normalizes pagination arguments.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// formatJSONStringArray serializes a string slice for a TEXT column.
// nil and empty both store as "[]".
func formatJSONStringArray(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseJSONStringArray deserializes a TEXT column into a string slice.
// Malformed or empty stored values yield nil rather than an error, so one
// corrupt row cannot poison a whole result set.
func parseJSONStringArray(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// formatJSONInt64Array serializes an id slice for a TEXT column.
func formatJSONInt64Array(values []int64) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseJSONInt64Array deserializes a TEXT column into an id slice.
func parseJSONInt64Array(raw string) []int64 {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []int64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// formatJSONMap serializes a loose map for a TEXT column.
func formatJSONMap(values map[string]any) string {
	if len(values) == 0 {
		return "{}"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseJSONMap deserializes a TEXT column into a loose map.
func parseJSONMap(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// marshalJSON serializes an arbitrary value, falling back to the given
// zero literal on failure.
func marshalJSON(v any, zero string) string {
	data, err := json.Marshal(v)
	if err != nil {
		return zero
	}
	return string(data)
}

// nullableText maps "" to NULL for optional TEXT columns.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime formats an optional timestamp, mapping nil to NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return types.FormatTimestamp(*t)
}

// parseStoredTime parses a stored timestamp column, returning the zero time
// for empty or unparseable values.
func parseStoredTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := types.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
