package adapters

import (
	"sync"
	"testing"
	"time"
)

// recorder collects emitted records and lets tests block until one arrives.
type recorder struct {
	mu   sync.Mutex
	recs []Record
	ch   chan Record
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Record, 64)}
}

func (r *recorder) emit(rec Record) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
	select {
	case r.ch <- rec:
	default:
	}
}

func (r *recorder) wait(t *testing.T, timeout time.Duration) Record {
	t.Helper()
	select {
	case rec := <-r.ch:
		return rec
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for a record")
		return Record{}
	}
}

func (r *recorder) all() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.recs))
	copy(out, r.recs)
	return out
}

func payloadString(t *testing.T, rec Record, key string) string {
	t.Helper()
	v, ok := rec.Payload[key]
	if !ok {
		t.Fatalf("Expected payload key %q, got %v", key, rec.Payload)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("Expected payload key %q to be a string, got %T", key, v)
	}
	return s
}

func payloadTime(t *testing.T, rec Record, key string) time.Time {
	t.Helper()
	v, ok := rec.Payload[key]
	if !ok {
		t.Fatalf("Expected payload key %q, got %v", key, rec.Payload)
	}
	ts, ok := v.(time.Time)
	if !ok {
		t.Fatalf("Expected payload key %q to be a time, got %T", key, v)
	}
	return ts
}
