//go:build !windows

package daemon

import "golang.org/x/sys/unix"

// isProcessAlive reports whether a process with the given PID exists.
// Signal 0 performs the existence check without delivering anything;
// EPERM means the process exists but belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}

// terminateProcess asks the process to exit gracefully.
func terminateProcess(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// forceKillProcess kills the process without giving it a chance to clean up.
func forceKillProcess(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
