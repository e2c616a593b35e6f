// Package correlate links observed code changes to the prompts that likely
// caused them, threads prompts into conversations, and derives context
// deltas between snapshots. Links are advisory: downstream readers filter
// on confidence, and nothing here ever unlinks.
package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
)

// Default correlation window and temporal decay constant.
const (
	DefaultWindowBack    = 5 * time.Minute
	DefaultWindowForward = 30 * time.Second
	defaultTau           = time.Minute
)

// Config tunes the candidate window. Zero values take the defaults.
type Config struct {
	WindowBack    time.Duration
	WindowForward time.Duration
	Tau           time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowBack <= 0 {
		c.WindowBack = DefaultWindowBack
	}
	if c.WindowForward <= 0 {
		c.WindowForward = DefaultWindowForward
	}
	if c.Tau <= 0 {
		c.Tau = defaultTau
	}
	return c
}

// Engine runs correlation against a store.
type Engine struct {
	store storage.Storage
	cfg   Config
	warnf func(format string, args ...any)
	now   func() time.Time
}

// New returns an Engine over store.
func New(store storage.Storage, cfg Config) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg.withDefaults(),
		warnf: func(string, ...any) {},
		now:   time.Now,
	}
}

// SetWarnFunc routes non-fatal correlation warnings.
func (e *Engine) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		e.warnf = warnf
	}
}

// Result describes what LinkEntry decided for one entry.
type Result struct {
	PromptID   int64
	Confidence types.Confidence
	Score      float64
	Linked     bool
}

// LinkEntry finds the prompt most likely to have caused entry and persists
// the link when the evidence is strong enough. High and medium confidence
// write both link directions and promote the prompt to linked; low and none
// only record the confidence on the entry. An entry already holding a high
// link is left alone.
func (e *Engine) LinkEntry(ctx context.Context, entry *types.Entry) (*Result, error) {
	if entry == nil || entry.ID == 0 {
		return nil, fmt.Errorf("entry must be saved before linking")
	}
	if entry.LinkConfidence == types.ConfidenceHigh && entry.PromptID != nil {
		return &Result{PromptID: *entry.PromptID, Confidence: types.ConfidenceHigh, Linked: true}, nil
	}

	from := entry.Timestamp.Add(-e.cfg.WindowBack)
	to := entry.Timestamp.Add(e.cfg.WindowForward)
	prompts, err := e.store.PromptsInWindow(ctx, entry.WorkspacePath, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation window: %w", err)
	}
	if len(prompts) == 0 {
		return &Result{Confidence: types.ConfidenceNone}, nil
	}

	ranked := rank(entry, prompts, e.cfg.Tau)
	best := ranked[0]
	confidence := Classify(best.Score)

	if len(ranked) > 1 {
		second := ranked[1]
		if second.Score == best.Score && second.Prompt.Timestamp.Equal(best.Prompt.Timestamp) {
			// Two simultaneous candidates with identical evidence cannot be
			// told apart; linking either would be a guess.
			e.warnf("entry %d: unresolvable tie between prompts %d and %d, skipping link",
				entry.ID, best.Prompt.ID, second.Prompt.ID)
			return &Result{Confidence: confidence, Score: best.Score}, nil
		}
	}

	switch confidence {
	case types.ConfidenceHigh, types.ConfidenceMedium:
		if err := e.store.LinkEntryPrompt(ctx, entry.ID, best.Prompt.ID, confidence); err != nil {
			return nil, fmt.Errorf("failed to persist link: %w", err)
		}
		id := best.Prompt.ID
		entry.PromptID = &id
		entry.LinkConfidence = confidence
		return &Result{PromptID: id, Confidence: confidence, Score: best.Score, Linked: true}, nil
	default:
		if err := e.store.SetEntryConfidence(ctx, entry.ID, confidence); err != nil {
			return nil, fmt.Errorf("failed to record confidence: %w", err)
		}
		entry.LinkConfidence = confidence
		return &Result{Confidence: confidence, Score: best.Score}, nil
	}
}
