package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/LoomLog/internal/types"
)

const (
	watcherDebounce     = 500 * time.Millisecond
	watcherPollInterval = 5 * time.Second

	// maxSnapshotBytes caps per-file code capture. Larger files still
	// produce mutation records, just without before/after text.
	maxSnapshotBytes = 256 * 1024

	// maxSnapshotEntries bounds the pre-image cache. Evicted files lose
	// their before text; capture is best-effort.
	maxSnapshotEntries = 512
)

type fileState struct {
	modTime time.Time
	size    int64
}

// FileWatcher monitors workspace roots for file mutations using filesystem
// events or polling. Each settled mutation becomes one entry record carrying
// the file path, a wall-clock timestamp, and best-effort before/after text.
// Falls back to polling when fsnotify cannot attach (controlled by the
// LOOM_WATCHER_FALLBACK env var; "poll" forces polling, "false" disables
// the fallback).
type FileWatcher struct {
	roots        []string
	debounce     time.Duration
	pollInterval time.Duration

	watcher   *fsnotify.Watcher
	snapshots *snapshotCache

	mu      sync.Mutex
	pending map[string]*time.Timer
	known   map[string]fileState
	stopped bool

	emit   func(Record)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	warnf func(format string, args ...any)
	now   func() time.Time
}

// NewFileWatcher creates a watcher over the given workspace roots.
func NewFileWatcher(roots []string) *FileWatcher {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(root))
	}
	return &FileWatcher{
		roots:        cleaned,
		debounce:     watcherDebounce,
		pollInterval: watcherPollInterval,
		snapshots:    newSnapshotCache(maxSnapshotEntries),
		pending:      make(map[string]*time.Timer),
		known:        make(map[string]fileState),
		warnf:        func(string, ...any) {},
		now:          time.Now,
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (fw *FileWatcher) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		fw.warnf = warnf
	}
}

// ID implements Adapter.
func (fw *FileWatcher) ID() string { return "filewatcher" }

// Capabilities implements Adapter.
func (fw *FileWatcher) Capabilities() CapabilitySet { return CapabilitySet{Push: true} }

// Poll implements Adapter.
func (fw *FileWatcher) Poll(context.Context, Cursor) ([]Record, Cursor, error) {
	return nil, Cursor{}, ErrUnsupported
}

// Start begins monitoring. Should only be called once per FileWatcher.
func (fw *FileWatcher) Start(ctx context.Context, emit func(Record)) error {
	if len(fw.roots) == 0 {
		return fmt.Errorf("no workspace roots configured")
	}
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	fw.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	fw.ctx = ctx
	fw.cancel = cancel
	fw.emit = emit

	fallback := os.Getenv("LOOM_WATCHER_FALLBACK")
	forcePoll := fallback == "poll"
	fallbackDisabled := fallback == "false" || fallback == "0"

	if !forcePoll {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			if fallbackDisabled {
				cancel()
				return fmt.Errorf("fsnotify unavailable and LOOM_WATCHER_FALLBACK is disabled: %w", err)
			}
			fw.warnf("fsnotify unavailable (%v), falling back to polling every %v", err, fw.pollInterval)
		} else {
			fw.watcher = watcher
			for _, root := range fw.roots {
				if err := fw.addTree(root, false); err != nil {
					fw.warnf("failed to watch %s: %v", root, err)
				}
			}
			fw.wg.Add(1)
			go fw.runEvents(ctx)
			return nil
		}
	}

	// Prime the known set so the first scan reports nothing.
	fw.scan(true)
	fw.wg.Add(1)
	go fw.runPolling(ctx)
	return nil
}

// Stop cancels monitoring, drops pending flushes, and releases resources.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	for path, t := range fw.pending {
		t.Stop()
		delete(fw.pending, path)
	}
	fw.mu.Unlock()

	if fw.cancel != nil {
		fw.cancel()
	}
	fw.wg.Wait()
	if fw.watcher != nil {
		return fw.watcher.Close()
	}
	return nil
}

// addTree registers watches for root and every non-skipped directory below
// it. With announce set, files found are scheduled as fresh mutations;
// otherwise they seed the known set silently.
func (fw *FileWatcher) addTree(root string, announce bool) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipDirName(d.Name()) {
				return fs.SkipDir
			}
			if fw.watcher != nil {
				if werr := fw.watcher.Add(path); werr != nil {
					fw.warnf("failed to watch %s: %v", path, werr)
				}
			}
			return nil
		}
		if ignoreFileName(d.Name()) {
			return nil
		}
		if announce {
			fw.schedule(path)
		} else if fi, ierr := d.Info(); ierr == nil {
			fw.mu.Lock()
			fw.known[path] = fileState{modTime: fi.ModTime(), size: fi.Size()}
			fw.mu.Unlock()
		}
		return nil
	})
}

func (fw *FileWatcher) runEvents(ctx context.Context) {
	defer fw.wg.Done()
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.warnf("watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	base := filepath.Base(path)

	// A created directory needs its own watch; files already inside it
	// predate the watch, so announce them.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if skipDirName(base) {
				return
			}
			if err := fw.addTree(path, true); err != nil {
				fw.warnf("failed to watch new directory %s: %v", path, err)
			}
			return
		}
	}

	if ignoreFileName(base) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	fw.schedule(path)
}

func (fw *FileWatcher) runPolling(ctx context.Context) {
	defer fw.wg.Done()
	ticker := time.NewTicker(fw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fw.scan(false)
		case <-ctx.Done():
			return
		}
	}
}

// scan walks the roots and schedules every file whose stat state moved since
// the last flush. With prime set it only seeds the known set.
func (fw *FileWatcher) scan(prime bool) {
	current := make(map[string]fileState)
	for _, root := range fw.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && skipDirName(d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if ignoreFileName(d.Name()) {
				return nil
			}
			if fi, ierr := d.Info(); ierr == nil {
				current[path] = fileState{modTime: fi.ModTime(), size: fi.Size()}
			}
			return nil
		})
	}

	if prime {
		fw.mu.Lock()
		for path, st := range current {
			fw.known[path] = st
		}
		fw.mu.Unlock()
		return
	}

	var changed []string
	fw.mu.Lock()
	for path, st := range current {
		old, ok := fw.known[path]
		if !ok || !old.modTime.Equal(st.modTime) || old.size != st.size {
			changed = append(changed, path)
		}
	}
	for path := range fw.known {
		if _, ok := current[path]; !ok {
			changed = append(changed, path)
		}
	}
	fw.mu.Unlock()

	for _, path := range changed {
		fw.schedule(path)
	}
}

// schedule arms (or re-arms) the per-file debounce timer.
func (fw *FileWatcher) schedule(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.stopped {
		return
	}
	if t, ok := fw.pending[path]; ok {
		t.Stop()
	}
	fw.pending[path] = time.AfterFunc(fw.debounce, func() { fw.flush(path) })
}

// flush settles one debounced file: stat decides between mutation and
// deletion, the known set decides between create and modify.
func (fw *FileWatcher) flush(path string) {
	fw.mu.Lock()
	_, armed := fw.pending[path]
	delete(fw.pending, path)
	stopped := fw.stopped
	fw.mu.Unlock()
	if !armed || stopped || fw.ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fw.flushMissing(path)
		return
	}
	if info.IsDir() {
		return
	}

	before, had := fw.snapshots.get(path)
	after, captured := readFileCapped(path, info.Size())

	fw.mu.Lock()
	_, wasKnown := fw.known[path]
	fw.known[path] = fileState{modTime: info.ModTime(), size: info.Size()}
	fw.mu.Unlock()

	if wasKnown && had && captured && before == after {
		// Touch or metadata-only change.
		return
	}

	label := "create"
	if wasKnown {
		label = "modify"
	}
	payload := map[string]any{
		"file_path":      path,
		"workspace_path": fw.workspaceFor(path),
		"timestamp":      fw.now().UTC(),
		"source":         string(types.SourceFileWatcher),
		"type":           label,
	}
	if had {
		payload["before_code"] = before
	}
	if captured {
		payload["after_code"] = after
		fw.snapshots.put(path, after)
	} else {
		fw.snapshots.forget(path)
	}
	fw.emit(Record{Kind: KindEntry, Source: types.SourceFileWatcher, Payload: payload})
}

func (fw *FileWatcher) flushMissing(path string) {
	fw.mu.Lock()
	_, wasKnown := fw.known[path]
	delete(fw.known, path)
	fw.mu.Unlock()

	before, had := fw.snapshots.get(path)
	fw.snapshots.forget(path)
	if !wasKnown {
		return
	}

	payload := map[string]any{
		"file_path":      path,
		"workspace_path": fw.workspaceFor(path),
		"timestamp":      fw.now().UTC(),
		"source":         string(types.SourceFileWatcher),
		"type":           "delete",
	}
	if had {
		payload["before_code"] = before
	}
	fw.emit(Record{Kind: KindEntry, Source: types.SourceFileWatcher, Payload: payload})
}

// workspaceFor attributes a path to the longest configured root containing
// it.
func (fw *FileWatcher) workspaceFor(path string) string {
	best := ""
	for _, root := range fw.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best
}

// readFileCapped reads a file for code capture, refusing oversized and
// binary content.
func readFileCapped(path string, size int64) (string, bool) {
	if size > maxSnapshotBytes {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) > maxSnapshotBytes {
		return "", false
	}
	if bytes.IndexByte(data, 0) != -1 {
		return "", false
	}
	return string(data), true
}

// skipDirName reports directories whose contents are not developer activity.
func skipDirName(name string) bool {
	if name != "." && strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "__pycache__", "dist", "target":
		return true
	}
	return false
}

// ignoreFileName reports editor droppings and swap files.
func ignoreFileName(name string) bool {
	if strings.HasPrefix(name, ".#") {
		return true
	}
	if strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#") {
		return true
	}
	switch {
	case strings.HasSuffix(name, "~"),
		strings.HasSuffix(name, ".swp"),
		strings.HasSuffix(name, ".swx"),
		strings.HasSuffix(name, ".tmp"):
		return true
	}
	// Vim probes write permission with this file name.
	return name == "4913" || name == ".DS_Store"
}

// snapshotCache is a bounded path -> content map with oldest-first eviction.
type snapshotCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]string
	order   []string
}

func newSnapshotCache(max int) *snapshotCache {
	if max < 1 {
		max = 1
	}
	return &snapshotCache{max: max, entries: make(map[string]string)}
}

func (c *snapshotCache) get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.entries[path]
	return content, ok
}

func (c *snapshotCache) put(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		c.order = append(c.order, path)
	}
	c.entries[path] = content
	for len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *snapshotCache) forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		return
	}
	delete(c.entries, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
