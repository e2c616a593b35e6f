//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess detaches the spawned daemon into its own session
// so terminal signals aimed at the CLI never reach it.
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}
