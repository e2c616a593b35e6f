package rpc

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/untoldecay/LoomLog/internal/scheduler"
	"github.com/untoldecay/LoomLog/internal/storage/sqlite"
	"github.com/untoldecay/LoomLog/internal/types"
)

type fakeControl struct {
	mu        sync.Mutex
	syncCalls int
	syncErr   error
	report    scheduler.Report
}

func (f *fakeControl) SyncNow(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return f.syncErr
}

func (f *fakeControl) Status(ctx context.Context) (scheduler.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, nil
}

func (f *fakeControl) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncCalls
}

func newTestServer(t *testing.T, control Control) (*Server, *sqlite.SQLiteStorage, string) {
	t.Helper()
	dataDir := t.TempDir()
	dbPath := filepath.Join(dataDir, "loom.db")
	store, err := sqlite.New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	srv := NewServer(SocketPath(dataDir), store, control, dbPath)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.WaitReady():
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready after 5s")
	}

	t.Cleanup(func() {
		cancel()
		srv.Stop()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
		store.Close()
	})
	return srv, store, dataDir
}

func mustConnect(t *testing.T, dataDir string) *Client {
	t.Helper()
	client, err := TryConnect(dataDir)
	if err != nil {
		t.Fatalf("TryConnect failed: %v", err)
	}
	if client == nil {
		t.Fatal("Expected a running daemon")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPingAndHealth(t *testing.T) {
	_, _, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if ping.Message != "pong" {
		t.Errorf("Expected pong, got %q", ping.Message)
	}

	health, err := client.Health()
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %q (error %q)", health.Status, health.Error)
	}
	if health.QuickCheck != "ok" {
		t.Errorf("Expected quick_check ok, got %q", health.QuickCheck)
	}
	if !health.Compatible {
		t.Error("Expected compatible versions")
	}
}

func TestStatusIncludesLoopReport(t *testing.T) {
	control := &fakeControl{report: scheduler.Report{
		PushAdapters: []string{"filewatcher"},
		PullAdapters: []scheduler.PullStatus{{ID: "shell-history"}},
		Ingested:     map[string]int64{"entry": 3},
		Dropped:      1,
	}}
	_, _, dataDir := newTestServer(t, control)
	client := mustConnect(t, dataDir)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.PID <= 0 {
		t.Errorf("Expected a pid, got %d", status.PID)
	}
	if len(status.PushAdapters) != 1 || status.PushAdapters[0] != "filewatcher" {
		t.Errorf("Expected push adapters from the loop report, got %v", status.PushAdapters)
	}
	if status.Ingested["entry"] != 3 || status.Dropped != 1 {
		t.Errorf("Expected loop counters, got ingested=%v dropped=%d", status.Ingested, status.Dropped)
	}
}

func TestStatsAndValidate(t *testing.T) {
	_, store, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	entry := &types.Entry{
		FilePath:      "/r/main.go",
		WorkspacePath: "/r",
		Source:        types.SourceFileWatcher,
		Timestamp:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.SaveEntry(context.Background(), entry); err != nil {
		t.Fatalf("SaveEntry failed: %v", err)
	}

	stats, err := client.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Counts["entries"] != 1 {
		t.Errorf("Expected 1 entry in stats, got %d", stats.Counts["entries"])
	}

	report, err := client.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("Expected a valid store, got %+v", report)
	}
}

func TestSyncNow(t *testing.T) {
	control := &fakeControl{}
	_, _, dataDir := newTestServer(t, control)
	client := mustConnect(t, dataDir)

	if err := client.SyncNow(); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}
	if control.calls() != 1 {
		t.Errorf("Expected 1 sync call, got %d", control.calls())
	}
}

func TestSyncNowWithoutLoop(t *testing.T) {
	_, _, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	err := client.SyncNow()
	if err == nil {
		t.Fatal("Expected error with no capture loop attached")
	}
	if !strings.Contains(err.Error(), "no capture loop") {
		t.Errorf("Expected capture loop error, got %v", err)
	}
}

func TestShutdownSignals(t *testing.T) {
	srv, _, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	if err := client.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case <-srv.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Error("Shutdown request did not signal")
	}
}

func TestUnknownOperation(t *testing.T) {
	_, _, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	resp, err := client.Execute("bogus", nil)
	if err == nil {
		t.Fatal("Expected error for unknown operation")
	}
	if resp == nil || resp.Success {
		t.Errorf("Expected failed response, got %+v", resp)
	}
	if !strings.Contains(err.Error(), "unknown operation") {
		t.Errorf("Expected unknown operation error, got %v", err)
	}
}

func TestVersionGateBlocksStaleDaemon(t *testing.T) {
	oldServer, oldClient := ServerVersion, ClientVersion
	ServerVersion, ClientVersion = "0.2.0", "0.3.0"
	defer func() { ServerVersion, ClientVersion = oldServer, oldClient }()

	_, _, dataDir := newTestServer(t, nil)

	client, err := TryConnect(dataDir)
	if err != nil {
		t.Fatalf("TryConnect failed: %v", err)
	}
	if client == nil {
		t.Fatal("Expected connection; ping and health bypass the gate")
	}
	defer func() { _ = client.Close() }()

	if _, err := client.Ping(); err != nil {
		t.Errorf("Expected ping to bypass the version gate, got %v", err)
	}
	if _, err := client.Status(); err == nil {
		t.Error("Expected version gate to reject status from a newer client")
	}
}

func TestMultipleRequestsOneConnection(t *testing.T) {
	_, _, dataDir := newTestServer(t, nil)
	client := mustConnect(t, dataDir)

	for i := 0; i < 3; i++ {
		if _, err := client.Ping(); err != nil {
			t.Fatalf("Ping %d failed: %v", i, err)
		}
	}
}
