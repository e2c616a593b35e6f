package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/untoldecay/LoomLog/internal/scheduler"
)

// Operations served over the control socket.
const (
	OpPing     = "ping"
	OpHealth   = "health"
	OpStatus   = "status"
	OpStats    = "stats"
	OpValidate = "validate"
	OpSyncNow  = "sync_now"
	OpShutdown = "shutdown"
)

// Request is one newline-delimited JSON request from client to daemon.
type Request struct {
	Operation     string          `json:"operation"`
	Args          json.RawMessage `json:"args,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// Response is the daemon's reply. Error is set only when Success is false.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PingResponse answers the ping operation.
type PingResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// HealthResponse answers the health operation. Status is healthy, degraded
// (store responding but slow), or unhealthy.
type HealthResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	ClientVersion   string  `json:"client_version,omitempty"`
	Compatible      bool    `json:"compatible"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	StoreResponseMS float64 `json:"store_response_ms"`
	QuickCheck      string  `json:"quick_check,omitempty"`
	ActiveConns     int32   `json:"active_conns"`
	MaxConns        int     `json:"max_conns"`
	MemoryAllocMB   uint64  `json:"memory_alloc_mb"`
	Error           string  `json:"error,omitempty"`
}

// StatusResponse answers the status operation with daemon identity plus the
// capture loop's current report.
type StatusResponse struct {
	Version       string  `json:"version"`
	PID           int     `json:"pid"`
	SocketPath    string  `json:"socket_path"`
	DBPath        string  `json:"db_path"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	StartedAt     string  `json:"started_at"`
	LastActivity  string  `json:"last_activity"`

	PushAdapters []string               `json:"push_adapters,omitempty"`
	PullAdapters []scheduler.PullStatus `json:"pull_adapters,omitempty"`
	Ingested     map[string]int64       `json:"ingested,omitempty"`
	Dropped      int64                  `json:"dropped"`
}

// checkVersionCompatibility gates mismatched client/daemon pairs. Majors
// must match, and the daemon must be at least as new as the client so a
// stale daemon never serves requests with old schema assumptions. Empty or
// non-semver versions (dev builds) always pass.
func checkVersionCompatibility(serverVersion, clientVersion string) error {
	if clientVersion == "" {
		return nil
	}
	sv := ensureV(serverVersion)
	cv := ensureV(clientVersion)
	if !semver.IsValid(sv) || !semver.IsValid(cv) {
		return nil
	}
	if semver.Major(sv) != semver.Major(cv) {
		if semver.Compare(sv, cv) < 0 {
			return fmt.Errorf("incompatible major versions: client %s, daemon %s; restart the daemon: 'loom daemon stop && loom daemon start'",
				clientVersion, serverVersion)
		}
		return fmt.Errorf("incompatible major versions: client %s, daemon %s; upgrade the loom CLI",
			clientVersion, serverVersion)
	}
	if semver.Compare(sv, cv) < 0 {
		return fmt.Errorf("daemon %s is older than client %s; restart the daemon: 'loom daemon stop && loom daemon start'",
			serverVersion, clientVersion)
	}
	return nil
}

func ensureV(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
