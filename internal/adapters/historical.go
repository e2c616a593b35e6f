package adapters

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

const (
	minerWindow   = 30 * 24 * time.Hour
	minerGitLimit = 200
	minerFileCap  = 2000
)

// Miner is the one-shot backfill job: git history, shell history, editor
// log directories, and file modification times, all emitted as import
// records. It runs on demand or once at startup when the store is empty,
// and is deliberately separate from the steady-state adapters.
//
// Re-running is safe: every mined record derives a deterministic id or
// fingerprint downstream.
type Miner struct {
	roots   []string
	history []HistoryFile
	logDirs []string
	window  time.Duration
	gitLim  int
	fileCap int

	runGit func(ctx context.Context, dir string, args ...string) ([]byte, error)

	warnf func(format string, args ...any)
	now   func() time.Time
}

// NewMiner creates a backfill job over the given workspace roots and
// history files. Editor log directories default per platform.
func NewMiner(roots []string, history []HistoryFile) *Miner {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root != "" {
			cleaned = append(cleaned, filepath.Clean(root))
		}
	}
	return &Miner{
		roots:   cleaned,
		history: history,
		logDirs: defaultLogDirs(),
		window:  minerWindow,
		gitLim:  minerGitLimit,
		fileCap: minerFileCap,
		runGit:  execGit,
		warnf:   func(string, ...any) {},
		now:     time.Now,
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (m *Miner) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		m.warnf = warnf
	}
}

// SetLogDirs replaces the editor log directory patterns.
func (m *Miner) SetLogDirs(patterns []string) {
	m.logDirs = patterns
}

// Run performs the backfill. Each source is mined independently; one
// failing is warned and skipped. Only cancellation aborts the run.
func (m *Miner) Run(ctx context.Context, emit func(Record)) error {
	for _, root := range m.roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mineGit(ctx, root, emit)
	}
	for _, hf := range m.history {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mineHistory(hf, emit)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mineLogs(emit)
	for _, root := range m.roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mineModTimes(root, emit)
	}
	return nil
}

// mineGit turns each (commit, touched file) pair into an entry record.
func (m *Miner) mineGit(ctx context.Context, root string, emit func(Record)) {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return
	}
	out, err := m.runGit(ctx, root, "log",
		"--pretty=format:%H%x09%ct%x09%s", "--name-only", "--no-merges",
		"-n", strconv.Itoa(m.gitLim))
	if err != nil {
		m.warnf("git log failed in %s: %v", root, err)
		return
	}

	var (
		commitTime    time.Time
		commitSubject string
		haveCommit    bool
	)
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if epoch, subject, ok := parseGitHeader(line); ok {
			commitTime = time.Unix(epoch, 0).UTC()
			commitSubject = subject
			haveCommit = true
			continue
		}
		if !haveCommit {
			continue
		}
		emit(Record{
			Kind:   KindEntry,
			Source: types.SourceImport,
			Payload: map[string]any{
				"file_path":      filepath.Join(root, filepath.FromSlash(line)),
				"workspace_path": root,
				"timestamp":      commitTime,
				"source":         string(types.SourceImport),
				"type":           "git",
				"notes":          commitSubject,
			},
		})
	}
}

// parseGitHeader matches `<hash>\t<epoch>\t<subject>` lines.
func parseGitHeader(line string) (epoch int64, subject string, ok bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 || !isHexHash(parts[0]) {
		return 0, "", false
	}
	epoch, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return epoch, parts[2], true
}

func isHexHash(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (m *Miner) mineHistory(hf HistoryFile, emit func(Record)) {
	data, err := os.ReadFile(hf.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.warnf("failed to read history file %s: %v", hf.Path, err)
		}
		return
	}
	for _, entry := range ParseHistory(string(data), hf.Shell) {
		emit(commandRecord(entry))
	}
}

// mineLogs records recently active editor log files as events.
func (m *Miner) mineLogs(emit func(Record)) {
	horizon := m.now().Add(-m.window)
	for _, pattern := range m.logDirs {
		dirs, err := filepath.Glob(pattern)
		if err != nil {
			m.warnf("bad log directory pattern %q: %v", pattern, err)
			continue
		}
		for _, dir := range dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, de := range entries {
				if de.IsDir() || !strings.HasSuffix(de.Name(), ".log") {
					continue
				}
				info, err := de.Info()
				if err != nil || info.ModTime().Before(horizon) {
					continue
				}
				emit(Record{
					Kind:   KindEvent,
					Source: types.SourceImport,
					Payload: map[string]any{
						"type":      "editor_log",
						"timestamp": info.ModTime().UTC(),
						"details": map[string]any{
							"path": filepath.Join(dir, de.Name()),
							"size": info.Size(),
						},
					},
				})
			}
		}
	}
}

// mineModTimes records recently modified workspace files as entries, so a
// fresh store still reflects what was being worked on before install.
func (m *Miner) mineModTimes(root string, emit func(Record)) {
	horizon := m.now().Add(-m.window)
	emitted := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignoreFileName(d.Name()) {
			return nil
		}
		if emitted >= m.fileCap {
			return filepath.SkipAll
		}
		info, ierr := d.Info()
		if ierr != nil || info.ModTime().Before(horizon) {
			return nil
		}
		emitted++
		emit(Record{
			Kind:   KindEntry,
			Source: types.SourceImport,
			Payload: map[string]any{
				"file_path":      path,
				"workspace_path": root,
				"timestamp":      info.ModTime().UTC(),
				"source":         string(types.SourceImport),
				"type":           "snapshot",
			},
		})
		return nil
	})
	if emitted >= m.fileCap {
		m.warnf("mod-time backfill for %s truncated at %d files", root, m.fileCap)
	}
}

func execGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	return cmd.Output()
}

// defaultLogDirs returns the per-platform editor log directory patterns.
func defaultLogDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Logs", "*")}
	case "windows":
		return []string{filepath.Join(home, "AppData", "Roaming", "*", "logs")}
	default:
		return []string{filepath.Join(home, ".config", "*", "logs")}
	}
}
