package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/correlate"
	"github.com/untoldecay/LoomLog/internal/normalize"
	"github.com/untoldecay/LoomLog/internal/storage/sqlite"
	"github.com/untoldecay/LoomLog/internal/types"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	norm := normalize.New(store)
	engine := correlate.New(store, correlate.Config{})
	return New(store, NewIngestor(store, norm, engine), cfg), store
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// stubPull hands out canned batches, advancing the cursor offset by one per
// delivered record.
type stubPull struct {
	id string

	mu      sync.Mutex
	batches [][]adapters.Record
	fail    error
	polls   int
	last    adapters.Cursor
}

func (s *stubPull) ID() string { return s.id }

func (s *stubPull) Capabilities() adapters.CapabilitySet {
	return adapters.CapabilitySet{Pull: true}
}

func (s *stubPull) Start(context.Context, func(adapters.Record)) error {
	return adapters.ErrUnsupported
}

func (s *stubPull) Stop() error { return nil }

func (s *stubPull) Poll(ctx context.Context, cursor adapters.Cursor) ([]adapters.Record, adapters.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	s.last = cursor
	if s.fail != nil {
		return nil, cursor, s.fail
	}
	if len(s.batches) == 0 {
		return nil, cursor, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	next := cursor
	next.Offset += int64(len(batch))
	return batch, next, nil
}

func (s *stubPull) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *stubPull) addBatch(batch []adapters.Record) {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.mu.Unlock()
}

func (s *stubPull) lastCursor() adapters.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// stubPush captures the emit callback so tests can push records.
type stubPush struct {
	id string

	mu      sync.Mutex
	emit    func(adapters.Record)
	stopped bool
}

func (s *stubPush) ID() string { return s.id }

func (s *stubPush) Capabilities() adapters.CapabilitySet {
	return adapters.CapabilitySet{Push: true}
}

func (s *stubPush) Start(_ context.Context, emit func(adapters.Record)) error {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
	return nil
}

func (s *stubPush) Poll(context.Context, adapters.Cursor) ([]adapters.Record, adapters.Cursor, error) {
	return nil, adapters.Cursor{}, adapters.ErrUnsupported
}

func (s *stubPush) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *stubPush) send(rec adapters.Record) bool {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit == nil {
		return false
	}
	emit(rec)
	return true
}

func (s *stubPush) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func commandRecord(cmd string, ts time.Time) adapters.Record {
	return adapters.Record{
		Kind:   adapters.KindCommand,
		Source: types.SourceImport,
		Payload: map[string]any{
			"command":   cmd,
			"shell":     "zsh",
			"timestamp": ts,
		},
	}
}

func TestBackoffDelay(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{3, 10 * time.Second},
		{4, 20 * time.Second},
		{5, 40 * time.Second},
		{7, 160 * time.Second},
		{8, 5 * time.Minute},
		{20, 5 * time.Minute},
		{100, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := s.backoffDelay(tt.failures); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestPollOneAdvancesAndPersistsCursor(t *testing.T) {
	s, store := newTestScheduler(t, Config{})
	ctx := context.Background()

	sp := &stubPull{id: "histstub"}
	sp.addBatch([]adapters.Record{commandRecord("git status", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))})
	s.AddPull(sp, 50*time.Millisecond)
	ps := s.pulls[0]

	if err := s.pollOne(ctx, ps); err != nil {
		t.Fatalf("pollOne failed: %v", err)
	}
	if ps.cursor.Offset != 1 {
		t.Errorf("Expected cursor offset 1, got %d", ps.cursor.Offset)
	}
	if ps.failures != 0 {
		t.Errorf("Expected 0 failures, got %d", ps.failures)
	}
	if !ps.nextRun.After(time.Now().Add(-time.Second)) {
		t.Error("Expected nextRun to be scheduled")
	}

	cmds, err := store.RecentTerminalCommands(ctx, 10, 0)
	if err != nil {
		t.Fatalf("RecentTerminalCommands failed: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != "git status" {
		t.Fatalf("Expected the polled command to be stored, got %v", cmds)
	}

	raw, err := store.GetMetadata(ctx, "cursor:histstub")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	var saved adapters.Cursor
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		t.Fatalf("Saved cursor unreadable: %v", err)
	}
	if saved.Offset != 1 {
		t.Errorf("Expected persisted offset 1, got %d", saved.Offset)
	}

	// A second scheduler over the same store resumes from the saved cursor.
	s2, _ := newTestScheduler(t, Config{})
	sp2 := &stubPull{id: "histstub"}
	s2.store = store
	s2.AddPull(sp2, 50*time.Millisecond)
	s2.loadCursor(ctx, s2.pulls[0])
	if s2.pulls[0].cursor.Offset != 1 {
		t.Errorf("Expected restored offset 1, got %d", s2.pulls[0].cursor.Offset)
	}
}

func TestLoadCursorDiscardsUnreadable(t *testing.T) {
	s, store := newTestScheduler(t, Config{})
	ctx := context.Background()

	if err := store.SetMetadata(ctx, "cursor:histstub", "{not json"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	var warnings int
	s.SetLogFuncs(nil, func(string, ...any) { warnings++ })

	s.AddPull(&stubPull{id: "histstub"}, time.Second)
	s.loadCursor(ctx, s.pulls[0])

	if !s.pulls[0].cursor.Since.IsZero() || s.pulls[0].cursor.Offset != 0 {
		t.Errorf("Expected zero cursor after unreadable metadata, got %+v", s.pulls[0].cursor)
	}
	if warnings != 1 {
		t.Errorf("Expected 1 warning, got %d", warnings)
	}
}

func TestPollFailureBacksOffThenRecovers(t *testing.T) {
	s, store := newTestScheduler(t, Config{})
	ctx := context.Background()

	sp := &stubPull{id: "histstub"}
	sp.setFail(errors.New("boom"))
	s.AddPull(sp, 50*time.Millisecond)
	ps := s.pulls[0]

	var warnings int
	s.SetLogFuncs(nil, func(string, ...any) { warnings++ })

	for i := 0; i < 3; i++ {
		if err := s.pollOne(ctx, ps); err == nil {
			t.Fatalf("Expected poll %d to fail", i)
		}
	}
	if ps.failures != 3 {
		t.Errorf("Expected 3 failures, got %d", ps.failures)
	}
	if until := time.Until(ps.nextRun); until < 5*time.Second {
		t.Errorf("Expected backed-off nextRun, got %v away", until)
	}
	if warnings != 3 {
		t.Errorf("Expected 3 warnings, got %d", warnings)
	}
	if raw, err := store.GetMetadata(ctx, "cursor:histstub"); err != nil || raw != "" {
		t.Errorf("Expected no cursor persisted while failing, got %q (err %v)", raw, err)
	}

	sp.setFail(nil)
	sp.addBatch([]adapters.Record{commandRecord("make build", time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC))})
	if err := s.pollOne(ctx, ps); err != nil {
		t.Fatalf("Expected recovery poll to succeed: %v", err)
	}
	if ps.failures != 0 {
		t.Errorf("Expected failures reset after recovery, got %d", ps.failures)
	}
	if ps.cursor.Offset != 1 {
		t.Errorf("Expected cursor to advance after recovery, got %+v", ps.cursor)
	}
}

func TestSeedEditorCursor(t *testing.T) {
	s, store := newTestScheduler(t, Config{})
	ctx := context.Background()

	sp := &stubPull{id: "editorstub"}
	s.AddEditorPull(sp)
	ps := s.pulls[0]

	// Empty store: cursor stays put.
	s.seedEditorCursor(ctx, ps)
	if !ps.cursor.Since.IsZero() {
		t.Errorf("Expected zero cursor on empty store, got %v", ps.cursor.Since)
	}

	promptAt := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	prompt := &types.Prompt{
		Text:      "explain the scheduler",
		Source:    types.SourceEditorDB,
		Status:    types.PromptCaptured,
		Timestamp: promptAt,
	}
	if err := store.SavePrompt(ctx, prompt); err != nil {
		t.Fatalf("SavePrompt failed: %v", err)
	}

	s.seedEditorCursor(ctx, ps)
	if !ps.cursor.Since.Equal(promptAt) {
		t.Errorf("Expected cursor seeded to %v, got %v", promptAt, ps.cursor.Since)
	}

	// A cursor already past the store's newest prompt is kept.
	ahead := promptAt.Add(time.Hour)
	ps.cursor.Since = ahead
	s.seedEditorCursor(ctx, ps)
	if !ps.cursor.Since.Equal(ahead) {
		t.Errorf("Expected cursor to keep %v, got %v", ahead, ps.cursor.Since)
	}
}

func TestRunLoopPollsAndServesRequests(t *testing.T) {
	s, store := newTestScheduler(t, Config{
		EventInterval: 20 * time.Millisecond,
		SyncInterval:  40 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	push := &stubPush{id: "pushstub"}
	pull := &stubPull{id: "histstub"}
	pull.addBatch([]adapters.Record{commandRecord("go doc", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))})
	editor := &stubPull{id: "editorstub"}
	promptAt := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	editor.addBatch([]adapters.Record{{
		Kind:   adapters.KindPrompt,
		Source: types.SourceEditorDB,
		Payload: map[string]any{
			"text":      "wire up the scheduler",
			"timestamp": promptAt,
		},
	}})

	s.AddPush(push)
	s.AddPull(pull, 20*time.Millisecond)
	s.AddEditorPull(editor)
	s.SetMiner(adapters.NewMiner(nil, nil))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool {
		cmds, err := store.RecentTerminalCommands(ctx, 10, 0)
		return err == nil && len(cmds) == 1
	}, "pull batch never ingested")
	waitFor(t, func() bool {
		prompts, err := store.RecentPrompts(ctx, 10, 0, "")
		return err == nil && len(prompts) == 1
	}, "editor batch never ingested")

	// After the prompt lands, the next editor poll is seeded from the store.
	waitFor(t, func() bool {
		return editor.lastCursor().Since.Equal(promptAt)
	}, "editor cursor never seeded from newest prompt")

	// Pushed records flow through the same ingestor.
	waitFor(t, func() bool {
		return push.send(adapters.Record{
			Kind:   adapters.KindEntry,
			Source: types.SourceFileWatcher,
			Payload: map[string]any{
				"file_path":      "/r/loop.go",
				"workspace_path": "/r",
				"timestamp":      time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
			},
		})
	}, "push adapter never started")
	waitFor(t, func() bool {
		entries, err := store.RecentEntries(ctx, 10, 0, "", false)
		return err == nil && len(entries) == 1
	}, "pushed record never ingested")

	if err := s.SyncNow(ctx); err != nil {
		t.Errorf("SyncNow failed: %v", err)
	}
	if err := s.MineNow(ctx); err != nil {
		t.Errorf("MineNow failed: %v", err)
	}

	rep, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(rep.PushAdapters) != 1 || rep.PushAdapters[0] != "pushstub" {
		t.Errorf("Expected push adapter in report, got %v", rep.PushAdapters)
	}
	if len(rep.PullAdapters) != 2 {
		t.Errorf("Expected 2 pull adapters in report, got %v", rep.PullAdapters)
	}
	if rep.Ingested["entry"] != 1 {
		t.Errorf("Expected 1 ingested entry in report, got %v", rep.Ingested)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !push.wasStopped() {
		t.Error("Expected push adapter to be stopped on exit")
	}
}

func TestRunRefusesSecondLoop(t *testing.T) {
	s, _ := newTestScheduler(t, Config{EventInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitFor(t, func() bool {
		sctx, scancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer scancel()
		_, err := s.Status(sctx)
		return err == nil
	}, "loop never became ready")

	if err := s.Run(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("Expected second Run to refuse, got %v", err)
	}

	cancel()
	<-done
}

func TestMineNowWithoutMiner(t *testing.T) {
	s, _ := newTestScheduler(t, Config{EventInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() { cancel(); <-done }()

	mctx, mcancel := context.WithTimeout(ctx, 2*time.Second)
	defer mcancel()
	err := s.MineNow(mctx)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("Expected mining not configured error, got %v", err)
	}
}

func TestColdStartMining(t *testing.T) {
	hist := filepath.Join(t.TempDir(), ".zsh_history")
	lines := ": 1735725600:0;git status\n: 1735725605:0;make build\n"
	if err := os.WriteFile(hist, []byte(lines), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, store := newTestScheduler(t, Config{
		EventInterval:   20 * time.Millisecond,
		MineOnColdStart: true,
	})
	s.SetMiner(adapters.NewMiner(nil, []adapters.HistoryFile{{Path: hist, Shell: "zsh"}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool {
		cmds, err := store.RecentTerminalCommands(ctx, 10, 0)
		return err == nil && len(cmds) == 2
	}, "cold start mining never ingested history")
}
