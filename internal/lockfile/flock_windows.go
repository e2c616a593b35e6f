//go:build windows

package lockfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// FlockExclusiveBlocking takes an exclusive lock on f, blocking until it
// is available. Windows locks a byte range; locking the first byte is
// enough for a whole-file advisory lock.
func FlockExclusiveBlocking(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol)
}

// FlockUnlock releases the lock on f.
func FlockUnlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
