package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/daemon"
	"github.com/untoldecay/LoomLog/internal/ui"
)

// DoctorResponse is the JSON shape for a doctor run.
type DoctorResponse struct {
	DataDir string           `json:"data_dir"`
	Checks  []ui.DoctorCheck `json:"checks"`
	Hints   []string         `json:"hints,omitempty"`
	Healthy bool             `json:"healthy"`
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "maint",
	Short:   "Diagnose the local capture setup",
	Long: `Run diagnostics over the local setup: config, data directory, store
health, workspace roots, and the daemon. Warnings are advisory; the
command exits 1 only when a check fails outright.

Examples:
  loom doctor
  loom doctor --json`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			checks []ui.DoctorCheck
			hints  []string
		)
		add := func(name, status, detail string) {
			checks = append(checks, ui.DoctorCheck{Name: name, Status: status, Detail: detail})
		}

		if path := config.ConfigFileUsed(); path != "" {
			add("config", "pass", path)
		} else {
			add("config", "warn", "no config file, defaults in effect")
			hints = append(hints, "Run 'loom init' to write a config file")
		}

		if fi, err := os.Stat(dataDir); err == nil && fi.IsDir() {
			add("data directory", "pass", dataDir)
		} else {
			add("data directory", "warn", dataDir+" missing, created on first capture")
		}

		storeOK := false
		if err := ensureStore(); err != nil {
			add("store", "fail", err.Error())
		} else {
			add("store", "pass", dbPath)
			storeOK = true
		}

		if storeOK {
			start := time.Now()
			if err := store.Ping(rootCtx); err != nil {
				add("store responds", "fail", err.Error())
			} else {
				add("store responds", "pass", fmt.Sprintf("%dms", time.Since(start).Milliseconds()))
			}

			if result, err := store.QuickCheck(rootCtx); err != nil {
				add("integrity", "fail", err.Error())
			} else if result != "ok" {
				add("integrity", "fail", result)
			} else {
				add("integrity", "pass", "quick_check ok")
			}
		}

		roots := config.WorkspaceRoots()
		if len(roots) == 0 {
			add("workspace roots", "warn", "none configured")
			hints = append(hints, "Run 'loom init' to pick workspace roots to watch")
		} else {
			missing := 0
			for _, root := range roots {
				if _, err := os.Stat(root); err != nil {
					missing++
				}
			}
			if missing > 0 {
				add("workspace roots", "warn", fmt.Sprintf("%d configured, %d missing on disk", len(roots), missing))
			} else {
				add("workspace roots", "pass", fmt.Sprintf("%d configured", len(roots)))
			}
		}

		info, err := daemon.FindDaemon(dataDir)
		switch {
		case err != nil:
			add("daemon", "warn", err.Error())
			hints = append(hints, "Start capture with 'loom daemon start'")
		case info.Version != Version:
			add("daemon", "warn", fmt.Sprintf("pid %d running version %s, cli is %s", info.PID, info.Version, Version))
			hints = append(hints, "Restart the daemon: 'loom daemon stop && loom daemon start'")
		default:
			add("daemon", "pass", fmt.Sprintf("pid %d, up %s", info.PID, formatUptime(info.UptimeSeconds)))
		}

		healthy := true
		for _, c := range checks {
			if c.Status == "fail" {
				healthy = false
			}
		}

		if jsonOutput {
			outputJSON(DoctorResponse{DataDir: dataDir, Checks: checks, Hints: hints, Healthy: healthy})
		} else {
			fmt.Println(ui.RenderDoctorReport(ui.DoctorViewModel{DataDir: dataDir, Checks: checks, Hints: hints}))
		}
		if !healthy {
			os.Exit(1)
		}
	},
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
