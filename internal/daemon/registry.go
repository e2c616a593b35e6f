// Package daemon tracks running loom daemons: a home-level registry of
// who is serving which data directory, liveness probing over the control
// socket, and the stop escalation used by 'loom daemon stop'.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/untoldecay/LoomLog/internal/lockfile"
)

// RegistryEntry records one running daemon in the home registry.
type RegistryEntry struct {
	DataDir    string    `json:"data_dir"`
	DBPath     string    `json:"db_path"`
	SocketPath string    `json:"socket_path"`
	PID        int       `json:"pid"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
}

// Registry is the index of running daemons across data directories,
// stored at ~/.loom/registry.json. Cross-process synchronization uses an
// flock'd sidecar file; mu covers in-process callers.
type Registry struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

// NewRegistry opens the registry in the home loom directory. Daemons
// serving custom data dirs still register here so 'loom daemon list' can
// find them all.
func NewRegistry() (*Registry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewRegistryAt(filepath.Join(home, ".loom")), nil
}

// NewRegistryAt opens a registry rooted at baseDir instead of ~/.loom.
func NewRegistryAt(baseDir string) *Registry {
	return &Registry{
		path:     filepath.Join(baseDir, "registry.json"),
		lockPath: filepath.Join(baseDir, "registry.lock"),
	}
}

// withFileLock executes fn while holding an exclusive lock on the registry
// sidecar, making read-modify-write cycles safe across processes.
func (r *Registry) withFileLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	lockFile, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open registry lock: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := lockfile.FlockExclusiveBlocking(lockFile); err != nil {
		return fmt.Errorf("failed to lock registry: %w", err)
	}
	defer func() { _ = lockfile.FlockUnlock(lockFile) }()

	return fn()
}

// readEntriesLocked reads all entries. Caller must hold the file lock.
// A missing, empty, or corrupt registry reads as empty: the worst case is
// re-registration on the next daemon start, never a wedged CLI.
func (r *Registry) readEntriesLocked() ([]RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RegistryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	// A crashed writer can leave null bytes or bare whitespace behind.
	blank := true
	for _, b := range data {
		if b != 0 && b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			blank = false
			break
		}
	}
	if blank {
		return []RegistryEntry{}, nil
	}

	var entries []RegistryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return []RegistryEntry{}, nil
	}
	return entries, nil
}

// writeEntriesLocked replaces the registry contents atomically via a synced
// temp file and rename. Caller must hold the file lock.
func (r *Registry) writeEntriesLocked(entries []RegistryEntry) error {
	// Always an array on disk, never null.
	if entries == nil {
		entries = []RegistryEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmpFile, err := os.CreateTemp(dir, "registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (r *Registry) writeEntries(entries []RegistryEntry) error {
	return r.withFileLock(func() error {
		return r.writeEntriesLocked(entries)
	})
}

// sameDir compares two directory paths after cleaning. Registered paths
// come from config.DataDir which already absolutizes, so lexical
// comparison is enough.
func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// Register adds a daemon to the registry, replacing any previous entry
// for the same data directory or the same PID.
func (r *Registry) Register(entry RegistryEntry) error {
	return r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}

		filtered := []RegistryEntry{}
		for _, e := range entries {
			if !sameDir(e.DataDir, entry.DataDir) && e.PID != entry.PID {
				filtered = append(filtered, e)
			}
		}
		filtered = append(filtered, entry)

		return r.writeEntriesLocked(filtered)
	})
}

// Unregister removes the daemon for a data directory or PID.
func (r *Registry) Unregister(dataDir string, pid int) error {
	return r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}

		filtered := []RegistryEntry{}
		for _, e := range entries {
			if !sameDir(e.DataDir, dataDir) && e.PID != pid {
				filtered = append(filtered, e)
			}
		}

		return r.writeEntriesLocked(filtered)
	})
}

// List returns all registered daemons with live status, pruning entries
// whose process has died.
func (r *Registry) List() ([]Info, error) {
	var daemons []Info

	err := r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}

		var aliveEntries []RegistryEntry
		for _, entry := range entries {
			if !isProcessAlive(entry.PID) {
				continue
			}
			aliveEntries = append(aliveEntries, entry)

			info := probeDaemon(entry.DataDir)
			if !info.Alive {
				// Process exists but the socket did not answer; report what
				// the registry knows so the operator still sees the daemon.
				info.Alive = true
				info.DataDir = entry.DataDir
				info.DBPath = entry.DBPath
				info.SocketPath = entry.SocketPath
				info.PID = entry.PID
				info.Version = entry.Version
			}
			daemons = append(daemons, info)
		}

		if len(aliveEntries) != len(entries) {
			if err := r.writeEntriesLocked(aliveEntries); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to prune stale registry entries: %v\n", err)
			}
		}
		return nil
	})

	return daemons, err
}

// Clear removes all entries.
func (r *Registry) Clear() error {
	return r.writeEntries([]RegistryEntry{})
}
