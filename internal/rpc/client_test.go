package rpc

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTryConnectNoDaemon(t *testing.T) {
	client, err := TryConnect(t.TempDir())
	if err != nil {
		t.Fatalf("TryConnect failed: %v", err)
	}
	if client != nil {
		t.Error("Expected nil client when no daemon is running")
	}
}

func TestSocketPathShortDir(t *testing.T) {
	dataDir := t.TempDir()
	got := SocketPath(dataDir)
	want := filepath.Join(dataDir, "loomd.sock")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestSocketPathLongDirFallsBackToTmp(t *testing.T) {
	long := "/" + strings.Repeat("deeply-nested/", 12) + "workspace"
	got := SocketPath(long)
	if !strings.HasPrefix(got, "/tmp/loom-") {
		t.Errorf("Expected /tmp/loom-* fallback, got %s", got)
	}
	if len(got) > maxUnixSocketPath {
		t.Errorf("Fallback path still too long: %d chars", len(got))
	}
	if again := SocketPath(long); again != got {
		t.Errorf("Expected deterministic fallback, got %s then %s", got, again)
	}
}

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		client  string
		wantErr bool
	}{
		{"same version", "0.3.0", "0.3.0", false},
		{"empty client allowed", "0.3.0", "", false},
		{"invalid versions allowed", "dev", "local", false},
		{"daemon newer patch", "0.3.2", "0.3.1", false},
		{"daemon older patch", "0.3.0", "0.3.1", true},
		{"daemon older minor", "0.2.9", "0.3.0", true},
		{"major mismatch daemon older", "0.9.0", "1.0.0", true},
		{"major mismatch daemon newer", "2.0.0", "1.4.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkVersionCompatibility(tt.server, tt.client)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkVersionCompatibility(%q, %q) = %v, wantErr %v",
					tt.server, tt.client, err, tt.wantErr)
			}
		})
	}
}
