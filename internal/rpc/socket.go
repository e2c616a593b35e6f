//go:build !windows

package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxUnixSocketPath is the longest socket path accepted across platforms.
// macOS caps sun_path at 104 bytes including the terminator, Linux at 108;
// 103 is safe for both.
const maxUnixSocketPath = 103

// tmpDir is where fallback socket directories live. Always /tmp: on macOS
// $TMPDIR itself is long enough to blow the sun_path budget.
const tmpDir = "/tmp"

// SocketPath returns the control socket path for a data directory:
// <dataDir>/loomd.sock when that fits the platform limit, otherwise a
// stable /tmp/loom-{hash}/loomd.sock derived from the canonicalized data
// directory so every process computes the same fallback.
func SocketPath(dataDir string) string {
	natural := filepath.Join(dataDir, "loomd.sock")
	if len(natural) <= maxUnixSocketPath {
		return natural
	}
	canonical := canonicalPath(dataDir)
	sum := sha256.Sum256([]byte(canonical))
	hash := hex.EncodeToString(sum[:4])
	return filepath.Join(tmpDir, "loom-"+hash, "loomd.sock")
}

func canonicalPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	return filepath.Clean(p)
}

// EnsureSocketDir creates the fallback socket directory when the path lives
// under /tmp/loom-*. Data directories are the daemon's job to create.
func EnsureSocketDir(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if strings.HasPrefix(dir, filepath.Join(tmpDir, "loom-")) {
		return os.MkdirAll(dir, 0o700)
	}
	return nil
}

// CleanupSocket removes the socket file, and the containing directory too
// when it is a /tmp/loom-* fallback dir this process created.
func CleanupSocket(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if strings.HasPrefix(dir, filepath.Join(tmpDir, "loom-")) {
		_ = os.Remove(socketPath)
		return os.Remove(dir)
	}
	return os.Remove(socketPath)
}

// endpointExists reports whether something is at the socket path.
func endpointExists(socketPath string) bool {
	_, err := os.Stat(socketPath)
	return err == nil
}

// dialRPC connects to the daemon socket with a bounded dial.
func dialRPC(socketPath string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, timeout)
}
