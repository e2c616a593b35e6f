package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/lockfile"
	"github.com/untoldecay/LoomLog/internal/rpc"
)

// PIDFileName is the pid file a daemon writes beside its lock.
const PIDFileName = "loomd.pid"

// errorFileName holds the last startup failure so 'loom daemon status'
// can explain why no daemon is running.
const errorFileName = "loomd-error"

// PIDFilePath returns the pid file location for a data directory.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, PIDFileName)
}

// Info is the probed state of one daemon.
type Info struct {
	DataDir       string           `json:"data_dir"`
	DBPath        string           `json:"db_path,omitempty"`
	SocketPath    string           `json:"socket_path,omitempty"`
	PID           int              `json:"pid,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds float64          `json:"uptime_seconds,omitempty"`
	LastActivity  string           `json:"last_activity,omitempty"`
	PushAdapters  []string         `json:"push_adapters,omitempty"`
	Ingested      map[string]int64 `json:"ingested,omitempty"`
	Dropped       int64            `json:"dropped,omitempty"`
	Alive         bool             `json:"alive"`
	Error         string           `json:"error,omitempty"`
}

// Discover returns all daemons known to the home registry, probed for
// liveness. Daemons register themselves on start, so there is nothing to
// scan for: an unregistered daemon is one that never started.
func Discover() ([]Info, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return registry.List()
}

// probeDaemon connects to the daemon serving dataDir and retrieves its
// status. A dead or unresponsive daemon yields Alive=false with the reason
// in Error, enriched from the startup error file when one exists.
func probeDaemon(dataDir string) Info {
	info := Info{
		DataDir:    dataDir,
		SocketPath: rpc.SocketPath(dataDir),
	}

	// Skip the dial when neither lock nor socket exist.
	if _, err := os.Stat(info.SocketPath); err != nil {
		running, _ := lockfile.TryDaemonLock(dataDir)
		if !running {
			info.Error = "daemon lock not held and socket missing"
			if msg := readStartupError(dataDir); msg != "" {
				info.Error = msg
			}
			return info
		}
	}

	client, err := rpc.TryConnectWithTimeout(dataDir, 500*time.Millisecond)
	if err != nil {
		info.Error = fmt.Sprintf("failed to connect: %v", err)
		return info
	}
	if client == nil {
		info.Error = "daemon not responding or unhealthy"
		if msg := readStartupError(dataDir); msg != "" {
			info.Error = msg
		}
		return info
	}
	defer func() { _ = client.Close() }()

	status, err := client.Status()
	if err != nil {
		info.Error = fmt.Sprintf("failed to get status: %v", err)
		return info
	}

	info.Alive = true
	info.DBPath = status.DBPath
	info.SocketPath = status.SocketPath
	info.PID = status.PID
	info.Version = status.Version
	info.UptimeSeconds = status.UptimeSeconds
	info.LastActivity = status.LastActivity
	info.PushAdapters = status.PushAdapters
	info.Ingested = status.Ingested
	info.Dropped = status.Dropped
	return info
}

// FindDaemon probes the daemon serving a specific data directory.
func FindDaemon(dataDir string) (*Info, error) {
	info := probeDaemon(dataDir)
	if !info.Alive {
		if info.Error != "" {
			return nil, fmt.Errorf("no daemon running for %s: %s", dataDir, info.Error)
		}
		return nil, fmt.Errorf("no daemon running for %s", dataDir)
	}
	return &info, nil
}

// CleanupStaleSockets removes socket and pid files left behind by dead
// daemons. Returns the number of sockets removed.
func CleanupStaleSockets(daemons []Info) (int, error) {
	cleaned := 0
	for _, d := range daemons {
		if d.Alive || d.SocketPath == "" {
			continue
		}
		if err := rpc.CleanupSocket(d.SocketPath); err != nil {
			if !os.IsNotExist(err) {
				return cleaned, fmt.Errorf("failed to remove stale socket %s: %w", d.SocketPath, err)
			}
		} else {
			cleaned++
		}
		if d.DataDir != "" {
			_ = os.Remove(PIDFilePath(d.DataDir))
		}
	}
	return cleaned, nil
}

// StopDaemon asks a daemon to shut down over RPC, falling back to SIGTERM
// when the socket does not answer.
func StopDaemon(d Info) error {
	if !d.Alive {
		return fmt.Errorf("daemon is not running")
	}

	client, err := rpc.TryConnectWithTimeout(d.DataDir, 500*time.Millisecond)
	if err == nil && client != nil {
		defer func() { _ = client.Close() }()
		if err := client.Shutdown(); err == nil {
			// Give the daemon a moment to tear down before the caller
			// re-probes.
			time.Sleep(200 * time.Millisecond)
			return nil
		}
	}

	return terminateProcess(d.PID)
}

// StopFailure describes one daemon that refused to die.
type StopFailure struct {
	DataDir string `json:"data_dir"`
	PID     int    `json:"pid"`
	Error   string `json:"error"`
}

// StopResults aggregates a StopAll run.
type StopResults struct {
	Stopped  int           `json:"stopped"`
	Failed   int           `json:"failed"`
	Failures []StopFailure `json:"failures,omitempty"`
}

// StopAll stops every alive daemon in the list, escalating through RPC
// shutdown, SIGTERM, and finally SIGKILL when force is set.
func StopAll(daemons []Info, force bool) StopResults {
	results := StopResults{
		Failures: []StopFailure{},
	}

	for _, d := range daemons {
		if !d.Alive {
			continue
		}

		if err := stopWithEscalation(d); err != nil {
			if force {
				if err := forceKillProcess(d.PID); err != nil {
					results.Failed++
					results.Failures = append(results.Failures, StopFailure{
						DataDir: d.DataDir,
						PID:     d.PID,
						Error:   err.Error(),
					})
					continue
				}
			} else {
				results.Failed++
				results.Failures = append(results.Failures, StopFailure{
					DataDir: d.DataDir,
					PID:     d.PID,
					Error:   err.Error(),
				})
				continue
			}
		}
		results.Stopped++
	}

	return results
}

// stopWithEscalation tries RPC shutdown, then SIGTERM with a 3s grace
// period, then SIGKILL with a 1s grace period.
func stopWithEscalation(d Info) error {
	client, err := rpc.TryConnectWithTimeout(d.DataDir, 2*time.Second)
	if err == nil && client != nil {
		defer func() { _ = client.Close() }()
		if err := client.Shutdown(); err == nil {
			time.Sleep(500 * time.Millisecond)
			if !isProcessAlive(d.PID) {
				return nil
			}
		}
	}

	if err := terminateProcess(d.PID); err != nil {
		return fmt.Errorf("terminate failed: %w", err)
	}
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(d.PID) {
			return nil
		}
	}

	if err := forceKillProcess(d.PID); err != nil {
		return fmt.Errorf("force kill failed: %w", err)
	}
	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(d.PID) {
			return nil
		}
	}

	return fmt.Errorf("process %d did not die after force kill", d.PID)
}

// WriteStartupError records why the daemon failed to start so later
// 'loom daemon status' calls can surface the reason.
func WriteStartupError(dataDir string, startupErr error) {
	if startupErr == nil {
		return
	}
	_ = os.MkdirAll(dataDir, 0o700)
	_ = os.WriteFile(filepath.Join(dataDir, errorFileName), []byte(startupErr.Error()+"\n"), 0o600)
}

// ClearStartupError removes the startup error marker after a clean start.
func ClearStartupError(dataDir string) {
	_ = os.Remove(filepath.Join(dataDir, errorFileName))
}

func readStartupError(dataDir string) string {
	data, err := os.ReadFile(filepath.Join(dataDir, errorFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
