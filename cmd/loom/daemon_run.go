package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/daemon"
	"github.com/untoldecay/LoomLog/internal/lockfile"
	"github.com/untoldecay/LoomLog/internal/logging"
	"github.com/untoldecay/LoomLog/internal/rpc"
	"github.com/untoldecay/LoomLog/internal/scheduler"
	"github.com/untoldecay/LoomLog/internal/storage/sqlite"
)

// daemonLogPath is where the foreground daemon logs. Detached daemons have
// their stdio on /dev/null, so this file is the only trace they leave.
func daemonLogPath() string {
	return filepath.Join(dataDir, "loomd.log")
}

// runDaemon runs the capture daemon in the foreground and returns its exit
// code: 0 on clean shutdown, 1 when the store or control socket cannot be
// brought up, 2 when no capture source is configured.
func runDaemon() int {
	roots := config.WorkspaceRoots()
	editorDB := config.EditorDBPath()
	history := configuredHistoryFiles()
	if len(roots) == 0 && editorDB == "" && len(history) == 0 {
		err := fmt.Errorf("nothing to capture: no workspace roots, editor database, or history files configured; run 'loom init'")
		daemon.WriteStartupError(dataDir, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	lock, err := lockfile.AcquireDaemonLock(dataDir)
	if err != nil {
		daemon.WriteStartupError(dataDir, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if lock == nil {
		fmt.Fprintf(os.Stderr, "Daemon already running for %s\n", dataDir)
		return 0
	}
	defer lockfile.ReleaseDaemonLock(lock)

	logger := logging.New(daemonLogPath(), logging.ParseLevel(config.GetString("log_level")))
	defer func() { _ = logger.Close() }()
	logger.Infof("loomd %s starting (data dir %s)", Version, dataDir)

	s, err := sqlite.NewWithQueueDepth(rootCtx, dbPath, config.GetInt("write_queue_depth"))
	if err != nil {
		daemon.WriteStartupError(dataDir, fmt.Errorf("failed to open store: %w", err))
		logger.Errorf("failed to open store at %s: %v", dbPath, err)
		fmt.Fprintf(os.Stderr, "Error: failed to open store at %s: %v\n", dbPath, err)
		return 1
	}
	store = s

	ing := buildIngestor()
	ing.SetWarnFunc(logger.Warnf)

	sched := scheduler.New(s, ing, scheduler.Config{
		SyncInterval:    config.MillisDuration("sync_interval_ms"),
		Retention:       time.Duration(config.GetInt("retention_days")) * 24 * time.Hour,
		MineOnColdStart: true,
	})
	sched.SetLogFuncs(logger.Infof, logger.Warnf)

	if len(roots) > 0 {
		fw := adapters.NewFileWatcher(roots)
		fw.SetWarnFunc(logger.Warnf)
		sched.AddPush(fw)
	}

	clip := adapters.NewClipboardPoller(config.MillisDuration("clipboard_interval_ms"))
	clip.SetWarnFunc(logger.Warnf)
	sched.AddPush(clip)

	status := adapters.NewStatusTracker(statusProbeFromConfig(), config.MillisDuration("status_interval_ms"))
	status.SetWarnFunc(logger.Warnf)
	rules, rulesErr := adapters.LoadRules(filepath.Join(dataDir, "rules.toml"))
	if rulesErr != nil {
		logger.Warnf("status rules: %v", rulesErr)
	}
	status.SetRules(rules)
	sched.AddPush(status)

	if editorDB != "" {
		ed := adapters.NewEditorDB(editorDB, "")
		ed.SetWarnFunc(logger.Warnf)
		sched.AddEditorPull(ed)
	}
	if len(history) > 0 {
		sh := adapters.NewShellHistory(history)
		sh.SetWarnFunc(logger.Warnf)
		sched.AddPull(sh, 0)
	}

	miner := adapters.NewMiner(roots, history)
	miner.SetWarnFunc(logger.Warnf)
	sched.SetMiner(miner)

	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	socketPath := rpc.SocketPath(dataDir)
	server := rpc.NewServer(socketPath, s, sched, dbPath)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(ctx) }()

	select {
	case <-server.WaitReady():
	case err := <-serverErr:
		daemon.WriteStartupError(dataDir, fmt.Errorf("control socket failed: %w", err))
		logger.Errorf("control socket failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: control socket failed: %v\n", err)
		_ = s.Close()
		store = nil
		return 1
	}

	if reg, regErr := daemon.NewRegistry(); regErr != nil {
		logger.Warnf("failed to open daemon registry: %v", regErr)
	} else {
		entry := daemon.RegistryEntry{
			DataDir:    dataDir,
			DBPath:     dbPath,
			SocketPath: socketPath,
			PID:        os.Getpid(),
			Version:    Version,
			StartedAt:  time.Now().UTC(),
		}
		if err := reg.Register(entry); err != nil {
			logger.Warnf("failed to register daemon: %v", err)
		} else {
			defer func() { _ = reg.Unregister(dataDir, os.Getpid()) }()
		}
	}

	pidPath := daemon.PIDFilePath(dataDir)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		logger.Warnf("failed to write pid file: %v", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	daemon.ClearStartupError(dataDir)

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	logger.Infof("capture running: %d workspace root(s), editor sidecar %q, %d history file(s), socket %s",
		len(roots), editorDB, len(history), socketPath)

	select {
	case <-rootCtx.Done():
		logger.Infof("signal received, shutting down")
	case <-server.ShutdownRequested():
		logger.Infof("shutdown requested over control socket")
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("control socket failed: %v", err)
		}
		serverErr <- nil
	}

	// Ordered teardown: stop serving and capturing, drain both loops, then
	// close the store so queued writes land.
	cancel()
	<-serverErr
	if err := <-schedErr; err != nil {
		logger.Warnf("capture loop exited with error: %v", err)
	}
	if err := s.Close(); err != nil {
		logger.Warnf("error closing store: %v", err)
	}
	store = nil

	logger.Infof("loomd stopped")
	return 0
}

// statusProbeFromConfig builds the working-status probe from the
// status_probe_cmd config key: a command line run without a shell whose
// trimmed stdout becomes the status text. Returns nil when unset, which
// disables status tracking.
func statusProbeFromConfig() adapters.StatusProbe {
	cmdline := strings.Fields(config.GetString("status_probe_cmd"))
	if len(cmdline) == 0 {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...).Output()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	}
}
