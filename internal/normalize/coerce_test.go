package normalize

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStringCoercion(t *testing.T) {
	hello := "hello"
	cases := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"string", "hi", "hi", true},
		{"string pointer", &hello, "hello", true},
		{"nil string pointer", (*string)(nil), "", true},
		{"bytes", []byte("raw"), "raw", true},
		{"nil", nil, "", true},
		{"number", 42, "", false},
	}
	for _, tc := range cases {
		got, ok := String(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: String(%v) = (%q, %v), want (%q, %v)", tc.name, tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestInt64Coercion(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"int", 7, 7, true},
		{"int32", int32(7), 7, true},
		{"int64", int64(7), 7, true},
		{"integral float", float64(4200), 4200, true},
		{"fractional float", 4.2, 0, false},
		{"json number", json.Number("1757840461"), 1757840461, true},
		{"numeric string", " 42 ", 42, true},
		{"garbage string", "forty-two", 0, false},
		{"nil", nil, 0, true},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		got, ok := Int64(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: Int64(%v) = (%d, %v), want (%d, %v)", tc.name, tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBoolCoercion(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
		ok   bool
	}{
		{"bool", true, true, true},
		{"one", 1, true, true},
		{"zero", 0, false, true},
		{"float nonzero", float64(1), true, true},
		{"true string", "true", true, true},
		{"zero string", "0", false, true},
		{"garbage string", "yes please", false, false},
		{"nil", nil, false, true},
	}
	for _, tc := range cases {
		got, ok := Bool(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: Bool(%v) = (%v, %v), want (%v, %v)", tc.name, tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTimeCoercion(t *testing.T) {
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   any
	}{
		{"time value", want},
		{"rfc3339", "2025-01-01T10:00:00Z"},
		{"space separated", "2025-01-01 10:00:00"},
		{"epoch seconds", int64(1735725600)},
		{"epoch millis", float64(1735725600000)},
		{"epoch micros", json.Number("1735725600000000")},
	}
	for _, tc := range cases {
		got, ok := Time(tc.in)
		if !ok {
			t.Errorf("%s: Time(%v) not ok", tc.name, tc.in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%s: Time(%v) = %v, want %v", tc.name, tc.in, got, want)
		}
	}

	if got, ok := Time(""); !ok || !got.IsZero() {
		t.Errorf("Expected empty string to coerce to zero time, got (%v, %v)", got, ok)
	}
	if _, ok := Time("not a date"); ok {
		t.Error("Expected garbage string to fail time coercion")
	}
	if got, ok := Time(nil); !ok || !got.IsZero() {
		t.Errorf("Expected nil to coerce to zero time, got (%v, %v)", got, ok)
	}
}

func TestStringSliceCoercion(t *testing.T) {
	if got, ok := StringSlice([]string{"a", "b"}); !ok || len(got) != 2 {
		t.Errorf("Expected native slice to pass through, got (%v, %v)", got, ok)
	}
	got, ok := StringSlice([]any{"util.go", "main.go"})
	if !ok || len(got) != 2 || got[1] != "main.go" {
		t.Errorf("Expected []any coercion, got (%v, %v)", got, ok)
	}
	got, ok = StringSlice(`["a","b","c"]`)
	if !ok || len(got) != 3 || got[2] != "c" {
		t.Errorf("Expected JSON text coercion, got (%v, %v)", got, ok)
	}
	if got, ok := StringSlice(""); !ok || got != nil {
		t.Errorf("Expected empty string to coerce to nil, got (%v, %v)", got, ok)
	}
	if _, ok := StringSlice([]any{"a", 1}); ok {
		t.Error("Expected mixed slice to fail coercion")
	}
	if _, ok := StringSlice(42); ok {
		t.Error("Expected number to fail slice coercion")
	}
}

func TestMapCoercion(t *testing.T) {
	native := map[string]any{"k": "v"}
	if got, ok := Map(native); !ok || got["k"] != "v" {
		t.Errorf("Expected native map to pass through, got (%v, %v)", got, ok)
	}
	got, ok := Map(`{"explicit": 2, "tabs": 1}`)
	if !ok {
		t.Fatalf("Map on JSON text failed")
	}
	if n, _ := Int(got["explicit"]); n != 2 {
		t.Errorf("Expected explicit 2 from JSON text, got %v", got["explicit"])
	}
	if _, ok := Map("{broken"); ok {
		t.Error("Expected malformed JSON to fail map coercion")
	}
	if got, ok := Map(nil); !ok || got != nil {
		t.Errorf("Expected nil to coerce to nil map, got (%v, %v)", got, ok)
	}
}
