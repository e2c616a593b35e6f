package adapters

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/cespare/xxhash/v2"

	"github.com/untoldecay/LoomLog/internal/types"
)

const (
	clipboardInterval    = time.Second
	clipboardDedupWindow = 10 * time.Minute

	// Prompt-likeness bounds. Shorter texts are commands or fragments,
	// longer ones are file dumps.
	minPromptRunes = 12
	maxPromptRunes = 10000

	// Below this share of letters the text is symbol-heavy, meaning code,
	// data, or noise rather than natural language.
	minLetterRatio = 0.55

	// Prose lines run long; many short lines indicate code or a list.
	minMeanLineRunes = 20

	minPromptWords = 3
)

// ClipboardPoller samples clipboard text and emits prompt records for
// content that reads like natural language. Repeats are suppressed against
// the previous sample and a sliding dedup window.
type ClipboardPoller struct {
	interval    time.Duration
	dedupWindow time.Duration
	read        func() (string, error)

	mu      sync.Mutex
	last    string
	seen    map[uint64]time.Time
	stopped bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr string

	warnf func(format string, args ...any)
	now   func() time.Time
}

// NewClipboardPoller creates a poller sampling at interval (<= 0 selects the
// one-second default).
func NewClipboardPoller(interval time.Duration) *ClipboardPoller {
	if interval <= 0 {
		interval = clipboardInterval
	}
	return &ClipboardPoller{
		interval:    interval,
		dedupWindow: clipboardDedupWindow,
		read:        clipboard.ReadAll,
		seen:        make(map[uint64]time.Time),
		warnf:       func(string, ...any) {},
		now:         time.Now,
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (cp *ClipboardPoller) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		cp.warnf = warnf
	}
}

// SetReadFunc replaces the clipboard read, for tests and for hosts with a
// different clipboard bridge.
func (cp *ClipboardPoller) SetReadFunc(read func() (string, error)) {
	if read != nil {
		cp.read = read
	}
}

// ID implements Adapter.
func (cp *ClipboardPoller) ID() string { return "clipboard" }

// Capabilities implements Adapter.
func (cp *ClipboardPoller) Capabilities() CapabilitySet { return CapabilitySet{Push: true} }

// Poll implements Adapter.
func (cp *ClipboardPoller) Poll(context.Context, Cursor) ([]Record, Cursor, error) {
	return nil, Cursor{}, ErrUnsupported
}

// Start begins sampling. Should only be called once per ClipboardPoller.
func (cp *ClipboardPoller) Start(ctx context.Context, emit func(Record)) error {
	ctx, cancel := context.WithCancel(ctx)
	cp.cancel = cancel

	cp.wg.Add(1)
	go func() {
		defer cp.wg.Done()
		ticker := time.NewTicker(cp.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cp.sample(emit)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels sampling.
func (cp *ClipboardPoller) Stop() error {
	cp.mu.Lock()
	cp.stopped = true
	cp.mu.Unlock()
	if cp.cancel != nil {
		cp.cancel()
	}
	cp.wg.Wait()
	return nil
}

// sample reads the clipboard once and emits when the content changed, looks
// like a prompt, and was not seen within the dedup window.
func (cp *ClipboardPoller) sample(emit func(Record)) {
	text, err := cp.read()
	if err != nil {
		// Warn on transitions only; a missing clipboard bridge would
		// otherwise repeat every second.
		if msg := err.Error(); msg != cp.lastErr {
			cp.lastErr = msg
			cp.warnf("clipboard read failed: %v", err)
		}
		return
	}
	cp.lastErr = ""

	cp.mu.Lock()
	if cp.stopped || text == cp.last {
		cp.mu.Unlock()
		return
	}
	cp.last = text
	cp.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if !looksLikePrompt(trimmed) {
		return
	}

	now := cp.now().UTC()
	if !cp.admit(xxhash.Sum64String(trimmed), now) {
		return
	}

	emit(Record{
		Kind:   KindPrompt,
		Source: types.SourceClipboard,
		Payload: map[string]any{
			"text":      trimmed,
			"timestamp": now,
			"source":    string(types.SourceClipboard),
		},
	})
}

// admit records the sample hash and reports whether it was outside the
// sliding dedup window.
func (cp *ClipboardPoller) admit(hash uint64, now time.Time) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if seen, ok := cp.seen[hash]; ok && now.Sub(seen) < cp.dedupWindow {
		cp.seen[hash] = now
		return false
	}
	cp.seen[hash] = now
	if len(cp.seen) > 256 {
		for h, at := range cp.seen {
			if now.Sub(at) >= cp.dedupWindow {
				delete(cp.seen, h)
			}
		}
	}
	return true
}

// looksLikePrompt applies the prompt-likeness heuristics: bounded length,
// mostly letters, prose-length lines, and at least a few words. Paths,
// URLs, diffs, and structured payloads are rejected outright.
func looksLikePrompt(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < minPromptRunes || n > maxPromptRunes {
		return false
	}
	if !strings.ContainsAny(text, " \t") {
		// Single token: a path, an identifier, or a URL.
		return false
	}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return false
	}
	if strings.HasPrefix(text, "diff --git") || strings.HasPrefix(text, "@@") {
		return false
	}
	switch text[0] {
	case '{', '[', '<':
		return false
	}

	var letters int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters)/float64(n) < minLetterRatio {
		return false
	}

	lines := strings.Count(text, "\n") + 1
	if lines > 1 && n/lines < minMeanLineRunes {
		return false
	}

	return len(strings.Fields(text)) >= minPromptWords
}
