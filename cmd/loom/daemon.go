package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/daemon"
	"github.com/untoldecay/LoomLog/internal/rpc"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "capture",
	Short:   "Manage the capture daemon",
	Long: `Manage the background daemon that watches workspaces, polls the
editor database, samples the clipboard, and correlates what it sees.

One daemon serves one data directory. Run several with distinct
--data-dir values to keep separate stores.

Examples:
  loom daemon start
  loom daemon status
  loom daemon stop
  loom daemon list`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the capture daemon",
	Long: `Start the daemon for the current data directory. By default the
process detaches and logs to loomd.log; --foreground keeps it attached
for debugging.

Exit codes in foreground mode: 0 on clean shutdown, 1 when the store
cannot be opened, 2 when no capture source is configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		foreground, _ := cmd.Flags().GetBool("foreground")
		if foreground || os.Getenv("LOOM_DAEMON_FOREGROUND") == "1" {
			os.Exit(runDaemon())
		}

		if info, err := daemon.FindDaemon(dataDir); err == nil {
			if jsonOutput {
				outputJSON(info)
			} else {
				fmt.Printf("Daemon already running (PID %d)\n", info.PID)
			}
			return
		}

		pid, err := spawnDaemon()
		if err != nil {
			FatalError("%v", err)
		}

		if waitForDaemon(5 * time.Second) {
			if jsonOutput {
				outputJSON(map[string]interface{}{"started": true, "pid": pid})
			} else {
				fmt.Printf("%s Daemon started (PID %d)\n", ui.RenderPass("✓"), pid)
			}
			return
		}

		reason := "did not become ready within 5s"
		if _, probeErr := daemon.FindDaemon(dataDir); probeErr != nil {
			reason = probeErr.Error()
		}
		fmt.Fprintf(os.Stderr, "Error: daemon failed to start: %s\n", reason)
		fmt.Fprintf(os.Stderr, "  %s check %s\n", ui.RenderMuted("Hint:"), shortenPath(daemonLogPath()))
		os.Exit(1)
	},
}

// spawnDaemon re-executes this binary detached, flagged into foreground
// daemon mode, with stdio on /dev/null.
func spawnDaemon() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	args := []string{"daemon", "start", "--data-dir", dataDir, "--db", dbPath}
	child := exec.Command(exe, args...)
	child.Env = append(os.Environ(), "LOOM_DAEMON_FOREGROUND=1")
	configureDaemonProcess(child)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		child.Stdin = devNull
		child.Stdout = devNull
		child.Stderr = devNull
		defer func() { _ = devNull.Close() }()
	}

	if err := child.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	// Reap the child to avoid zombies.
	go func() { _ = child.Wait() }()

	return child.Process.Pid, nil
}

// waitForDaemon polls the socket until a ping answers or the timeout runs
// out.
func waitForDaemon(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := rpc.TryConnectWithTimeout(dataDir, 200*time.Millisecond)
		if err == nil && client != nil {
			_ = client.Close()
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the capture daemon",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		force, _ := cmd.Flags().GetBool("force")

		if all {
			daemons, err := daemon.Discover()
			if err != nil {
				FatalError("%v", err)
			}
			results := daemon.StopAll(daemons, force)
			if jsonOutput {
				outputJSON(results)
			} else {
				fmt.Printf("%s Stopped %d daemon(s)\n", ui.RenderPass("✓"), results.Stopped)
				for _, f := range results.Failures {
					fmt.Fprintf(os.Stderr, "  %s %s (PID %d): %s\n", ui.RenderFail(ui.IconFail), shortenPath(f.DataDir), f.PID, f.Error)
				}
			}
			if results.Failed > 0 {
				os.Exit(1)
			}
			return
		}

		info, err := daemon.FindDaemon(dataDir)
		if err != nil {
			if jsonOutput {
				outputJSON(map[string]interface{}{"stopped": false, "message": "no daemon running"})
			} else {
				fmt.Printf("No daemon running for %s\n", shortenPath(dataDir))
			}
			return
		}

		if err := daemon.StopDaemon(*info); err != nil {
			FatalError("failed to stop daemon: %v", err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"stopped": true, "pid": info.PID})
		} else {
			fmt.Printf("%s Daemon stopped (PID %d)\n", ui.RenderPass("✓"), info.PID)
		}
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the daemon serving the current data directory: liveness, capture
adapters, and per-kind ingestion counts. Exits 1 when no daemon is
running.`,
	Run: func(cmd *cobra.Command, args []string) {
		info, err := daemon.FindDaemon(dataDir)
		if err != nil {
			if jsonOutput {
				outputJSON(daemon.Info{DataDir: dataDir, Error: err.Error()})
			} else {
				fmt.Printf("%s\n\n", ui.RenderMuted("○ not running"))
				fmt.Printf("  Data dir:   %s\n", shortenPath(dataDir))
				fmt.Printf("  Reason:     %s\n", err.Error())
				fmt.Printf("\n  To start:   loom daemon start\n")
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(info)
			return
		}

		versionStr := ""
		if info.Version != "" {
			versionStr = fmt.Sprintf(", v%s", info.Version)
		}
		if info.Version != "" && info.Version != Version {
			fmt.Printf("%s (PID %d%s)\n", ui.RenderWarn(ui.IconWarn+" outdated"), info.PID, versionStr)
			fmt.Printf("  %s\n\n", ui.RenderWarn(fmt.Sprintf("CLI version: %s", Version)))
		} else {
			fmt.Printf("%s (PID %d%s)\n\n", ui.RenderPass(ui.IconPass+" running"), info.PID, versionStr)
		}

		fmt.Printf("  Data dir:   %s\n", shortenPath(info.DataDir))
		fmt.Printf("  Database:   %s\n", shortenPath(info.DBPath))
		fmt.Printf("  Uptime:     %s\n", formatUptime(info.UptimeSeconds))
		if info.LastActivity != "" {
			if t, perr := time.Parse(time.RFC3339, info.LastActivity); perr == nil {
				fmt.Printf("  Activity:   %s\n", formatRelativeTime(t))
			}
		}
		if len(info.PushAdapters) > 0 {
			fmt.Printf("  Watching:   %s\n", strings.Join(info.PushAdapters, ", "))
		}
		if len(info.Ingested) > 0 {
			parts := make([]string, 0, len(info.Ingested))
			var total int64
			for kind, n := range info.Ingested {
				parts = append(parts, fmt.Sprintf("%s %d", kind, n))
				total += n
			}
			fmt.Printf("  Ingested:   %d (%s)\n", total, strings.Join(parts, ", "))
		}
		if info.Dropped > 0 {
			fmt.Printf("  Dropped:    %s\n", ui.RenderWarn(fmt.Sprintf("%d", info.Dropped)))
		}
		fmt.Printf("  Log:        %s\n", shortenPath(daemonLogPath()))
	},
}

var daemonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered daemons",
	Run: func(cmd *cobra.Command, args []string) {
		daemons, err := daemon.Discover()
		if err != nil {
			FatalError("%v", err)
		}

		if cleaned, cerr := daemon.CleanupStaleSockets(daemons); cerr == nil && cleaned > 0 && !jsonOutput {
			fmt.Fprintf(os.Stderr, "Cleaned up %d stale socket(s)\n", cleaned)
		}

		if jsonOutput {
			outputJSON(daemons)
			return
		}
		if len(daemons) == 0 {
			fmt.Println("No daemons registered")
			return
		}

		alive := 0
		for _, d := range daemons {
			if d.Alive {
				alive++
			}
		}
		fmt.Printf("Daemons: %d total, %d running\n\n", len(daemons), alive)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  DATA DIR\tPID\tVERSION\tUPTIME\tSTATUS")
		for _, d := range daemons {
			prefix := "  "
			if d.DataDir == dataDir {
				prefix = ui.RenderAccent("→ ")
			}
			pidStr := "-"
			if d.PID != 0 {
				pidStr = fmt.Sprintf("%d", d.PID)
			}
			version := d.Version
			if version == "" {
				version = "-"
			}
			uptime := "-"
			if d.Alive {
				uptime = formatUptime(d.UptimeSeconds)
			}

			var statusDisplay string
			switch {
			case d.Alive && d.Version != Version:
				statusDisplay = ui.RenderWarn(ui.IconWarn+" outdated") + ui.RenderMuted(fmt.Sprintf(" (cli: %s)", Version))
			case d.Alive:
				statusDisplay = ui.RenderPass(ui.IconPass + " running")
			default:
				statusDisplay = ui.RenderMuted("○ " + d.Error)
			}

			_, _ = fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
				prefix, shortenPath(d.DataDir), pidStr, version, uptime, statusDisplay)
		}
		_ = w.Flush()
	},
}

// shortenPath replaces the home directory with ~ for display.
func shortenPath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}

func init() {
	daemonStartCmd.Flags().Bool("foreground", false, "Run attached to the terminal instead of detaching")
	daemonStopCmd.Flags().Bool("all", false, "Stop every registered daemon")
	daemonStopCmd.Flags().BoolP("force", "f", false, "SIGKILL daemons that refuse to stop (with --all)")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonListCmd)
	rootCmd.AddCommand(daemonCmd)
}
