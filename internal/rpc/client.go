package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/untoldecay/LoomLog/internal/debug"
	"github.com/untoldecay/LoomLog/internal/lockfile"
	"github.com/untoldecay/LoomLog/internal/types"
)

// ClientVersion is stamped by the CLI before making calls so the daemon can
// gate mismatched pairs.
var ClientVersion = "0.0.0"

// Client holds one connection to a running daemon.
type Client struct {
	conn       net.Conn
	socketPath string
	timeout    time.Duration
}

// TryConnect attempts to reach the daemon for dataDir. A nil client with a
// nil error means no healthy daemon is running; callers fall back to direct
// store access.
func TryConnect(dataDir string) (*Client, error) {
	return TryConnectWithTimeout(dataDir, 200*time.Millisecond)
}

// TryConnectWithTimeout is TryConnect with an explicit dial timeout.
func TryConnectWithTimeout(dataDir string, dialTimeout time.Duration) (*Client, error) {
	socketPath := SocketPath(dataDir)

	// Probe the daemon lock before dialing: no lock plus no socket means no
	// daemon, and the dial would only burn the timeout.
	if !endpointExists(socketPath) {
		running, _ := lockfile.TryDaemonLock(dataDir)
		if !running {
			debug.Logf("no daemon for %s (lock free, socket missing)\n", dataDir)
			return nil, nil
		}
		// Lock held but the socket has not appeared yet: startup race.
		if !endpointExists(socketPath) {
			debug.Logf("daemon lock held but socket missing (startup race): %s\n", socketPath)
			return nil, nil
		}
	}

	if dialTimeout <= 0 {
		dialTimeout = 200 * time.Millisecond
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		debug.Logf("dial %s failed: %v\n", socketPath, err)
		// Socket present but nothing answering: a crashed daemon left it
		// behind. Remove it when the lock is free so the next start is clean.
		if running, _ := lockfile.TryDaemonLock(dataDir); !running {
			cleanupStaleDaemonArtifacts(dataDir, socketPath)
		}
		return nil, nil
	}

	client := &Client{conn: conn, socketPath: socketPath, timeout: 30 * time.Second}
	health, err := client.Health()
	if err != nil {
		debug.Logf("daemon health check failed: %v\n", err)
		_ = conn.Close()
		return nil, nil
	}
	if health.Status == "unhealthy" {
		debug.Logf("daemon unhealthy: %s\n", health.Error)
		_ = conn.Close()
		return nil, nil
	}
	return client, nil
}

// Connect dials the daemon for dataDir and fails when none is running.
func Connect(dataDir string) (*Client, error) {
	client, err := TryConnect(dataDir)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("no daemon running for %s (start one with 'loom daemon start')", dataDir)
	}
	return client, nil
}

// Close hangs up.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetTimeout bounds each request round trip.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Execute sends one request and reads its response. A successful transport
// round trip with a failed operation returns both the response and an
// error describing the failure.
func (c *Client) Execute(operation string, args any) (*Response, error) {
	var argsJSON json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		argsJSON = data
	}

	req := Request{
		Operation:     operation,
		Args:          argsJSON,
		ClientVersion: ClientVersion,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush request: %w", err)
	}

	reader := bufio.NewReader(c.conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("operation failed: %s", resp.Error)
	}
	return &resp, nil
}

// Ping verifies the daemon answers.
func (c *Client) Ping() (*PingResponse, error) {
	resp, err := c.Execute(OpPing, nil)
	if err != nil {
		return nil, err
	}
	var ping PingResponse
	if err := json.Unmarshal(resp.Data, &ping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ping response: %w", err)
	}
	return &ping, nil
}

// Health probes store reachability and daemon vitals.
func (c *Client) Health() (*HealthResponse, error) {
	resp, err := c.Execute(OpHealth, nil)
	if resp == nil {
		return nil, err
	}
	// Health decodes even on failure so callers see why the daemon is
	// unhealthy.
	var health HealthResponse
	if jerr := json.Unmarshal(resp.Data, &health); jerr != nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to unmarshal health response: %w", jerr)
	}
	return &health, nil
}

// Status reports daemon identity and capture-loop counters.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Execute(OpStatus, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status response: %w", err)
	}
	return &status, nil
}

// Stats fetches store counts and link health.
func (c *Client) Stats() (*types.Stats, error) {
	resp, err := c.Execute(OpStats, nil)
	if err != nil {
		return nil, err
	}
	var stats types.Stats
	if err := json.Unmarshal(resp.Data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats response: %w", err)
	}
	return &stats, nil
}

// Validate runs the store's integrity checks.
func (c *Client) Validate() (*types.ValidationReport, error) {
	resp, err := c.Execute(OpValidate, nil)
	if err != nil {
		return nil, err
	}
	var report types.ValidationReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal validation response: %w", err)
	}
	return &report, nil
}

// SyncNow triggers an immediate editor sidecar poll.
func (c *Client) SyncNow() error {
	_, err := c.Execute(OpSyncNow, nil)
	return err
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() error {
	_, err := c.Execute(OpShutdown, nil)
	return err
}

// cleanupStaleDaemonArtifacts removes the leftover socket of a crashed
// daemon. The lock file itself is released by the OS on process exit.
func cleanupStaleDaemonArtifacts(dataDir, socketPath string) {
	if err := os.Remove(socketPath); err == nil {
		debug.Logf("removed stale socket %s\n", socketPath)
	}
	pidFile := filepath.Join(dataDir, "loomd.pid")
	if err := os.Remove(pidFile); err == nil {
		debug.Logf("removed stale pid file %s\n", pidFile)
	}
}
