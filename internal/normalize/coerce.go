package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// Coercions accept the value shapes adapters actually hand us: native Go
// types from typed adapters, float64 and json.Number from decoded JSON,
// strings from TEXT columns. Each returns the coerced value and whether the
// input was usable.

// String coerces v to a string.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case *string:
		if t == nil {
			return "", true
		}
		return *t, true
	case []byte:
		return string(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// Int64 coerces v to an int64. JSON decoding yields float64 for every
// number, so integral floats are accepted; fractional values are not.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
		return 0, false
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// Int coerces v to an int via Int64.
func Int(v any) (int, bool) {
	n, ok := Int64(v)
	return int(n), ok
}

// Float coerces v to a float64.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// Bool coerces v to a bool. Numeric inputs follow the SQLite convention
// where any non-zero value is true.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	case float64:
		return t != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	case nil:
		return false, true
	default:
		return false, false
	}
}

// Time coerces v to a time.Time. Strings go through the layout list the
// store accepts; bare numbers are treated as epoch values with the unit
// inferred from magnitude.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, true
		}
		return *t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return time.Time{}, true
		}
		ts, err := types.ParseTimestamp(t)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	case float64:
		if t == 0 {
			return time.Time{}, true
		}
		return types.FromEpoch(int64(t)), true
	case int64:
		if t == 0 {
			return time.Time{}, true
		}
		return types.FromEpoch(t), true
	case int:
		if t == 0 {
			return time.Time{}, true
		}
		return types.FromEpoch(int64(t)), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		if n == 0 {
			return time.Time{}, true
		}
		return types.FromEpoch(n), true
	case nil:
		return time.Time{}, true
	default:
		return time.Time{}, false
	}
}

// StringSlice coerces v to a []string, accepting native slices, []any with
// string-coercible elements, and JSON array text.
func StringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := String(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, false
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

// Int64Slice coerces v to a []int64.
func Int64Slice(v any) ([]int64, bool) {
	switch t := v.(type) {
	case []int64:
		return t, true
	case []any:
		out := make([]int64, 0, len(t))
		for _, item := range t {
			n, ok := Int64(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		var out []int64
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, false
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

// Map coerces v to a map[string]any, accepting native maps and JSON object
// text.
func Map(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, false
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

// clampRatio forces a ratio into [0,1].
func clampRatio(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
