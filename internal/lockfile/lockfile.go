// Package lockfile wraps the two flavors of file locking loom relies on:
// advisory flock on open descriptors (registry read-modify-write) and the
// daemon singleton lock (one daemon per data directory).
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DaemonLockName is the lock file guarding single-daemon-per-data-dir.
const DaemonLockName = "loomd.lock"

// AcquireDaemonLock takes the daemon singleton lock for dataDir without
// blocking. Returns the held lock, or nil if another process holds it.
// The caller keeps the returned lock for the life of the daemon and
// releases it on shutdown.
func AcquireDaemonLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dataDir, DaemonLockName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

// TryDaemonLock probes whether a daemon currently holds the lock for
// dataDir. Returns true when the lock is held by someone else. The probe
// itself never keeps the lock.
func TryDaemonLock(dataDir string) (bool, error) {
	path := filepath.Join(dataDir, DaemonLockName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}

// ReleaseDaemonLock releases a lock acquired with AcquireDaemonLock and
// removes the lock file. Safe to call with nil.
func ReleaseDaemonLock(fl *flock.Flock) {
	if fl == nil {
		return
	}
	path := fl.Path()
	_ = fl.Unlock()
	_ = os.Remove(path)
}
