package adapters

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/LoomLog/internal/types"
)

const statusInterval = 2 * time.Second

// StatusProbe reads the editor's UI status line. Production wires the host
// accessibility bridge; tests inject a fake.
type StatusProbe func(ctx context.Context) (string, error)

type statusRule struct {
	re     *regexp.Regexp
	action types.StatusAction
}

// RuleSet classifies status strings by ordered regular expressions; the
// first match wins and anything unmatched is a generic status.
type RuleSet struct {
	rules []statusRule
}

// DefaultRules returns the built-in classification rules.
func DefaultRules() *RuleSet {
	mk := func(pattern string, action types.StatusAction) statusRule {
		return statusRule{re: regexp.MustCompile(pattern), action: action}
	}
	return &RuleSet{rules: []statusRule{
		mk(`(?i)\breading\b`, types.ActionFileRead),
		mk(`(?i)\bplanning\b`, types.ActionPlanning),
		mk(`(?i)\banaly[sz]ing\b`, types.ActionAnalysis),
		mk(`(?i)\b(processing|indexing|loading)\b`, types.ActionProcessing),
		mk(`(?i)\b(thinking|reasoning)\b`, types.ActionThinking),
		mk(`(?i)\b(generating|writing|editing|applying)\b`, types.ActionGenerating),
		mk(`(?i)\b(searching|grepping)\b`, types.ActionSearching),
	}}
}

type ruleFile struct {
	Rules []ruleSpec `toml:"rule"`
}

type ruleSpec struct {
	Pattern string `toml:"pattern"`
	Action  string `toml:"action"`
}

var validActions = map[types.StatusAction]bool{
	types.ActionFileRead:   true,
	types.ActionPlanning:   true,
	types.ActionAnalysis:   true,
	types.ActionProcessing: true,
	types.ActionThinking:   true,
	types.ActionGenerating: true,
	types.ActionSearching:  true,
	types.ActionStatus:     true,
}

// LoadRules reads extra classification rules from a TOML file and layers
// them ahead of the defaults so they win ties. A missing file yields the
// defaults unchanged.
//
//	[[rule]]
//	pattern = "(?i)compiling"
//	action = "processing"
func LoadRules(path string) (*RuleSet, error) {
	defaults := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return defaults, fmt.Errorf("failed to parse rules file: %w", err)
	}

	extra := make([]statusRule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return defaults, fmt.Errorf("rule %d: bad pattern %q: %w", i+1, spec.Pattern, err)
		}
		action := types.StatusAction(spec.Action)
		if !validActions[action] {
			return defaults, fmt.Errorf("rule %d: unknown action %q", i+1, spec.Action)
		}
		extra = append(extra, statusRule{re: re, action: action})
	}
	return &RuleSet{rules: append(extra, defaults.rules...)}, nil
}

// Classify maps a status string to its structured action.
func (rs *RuleSet) Classify(text string) types.StatusAction {
	for _, rule := range rs.rules {
		if rule.re.MatchString(text) {
			return rule.action
		}
	}
	return types.ActionStatus
}

// StatusTracker samples the editor status line, suppresses repeats, and
// emits one classified record per distinct message.
type StatusTracker struct {
	interval time.Duration
	probe    StatusProbe
	rules    *RuleSet

	mu      sync.Mutex
	last    string
	stopped bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr string

	warnf func(format string, args ...any)
	now   func() time.Time
}

// NewStatusTracker creates a tracker over probe, sampling at interval (<= 0
// selects the two-second default). A nil probe disables the tracker; hosts
// without an accessibility bridge simply go without status capture.
func NewStatusTracker(probe StatusProbe, interval time.Duration) *StatusTracker {
	if interval <= 0 {
		interval = statusInterval
	}
	return &StatusTracker{
		interval: interval,
		probe:    probe,
		rules:    DefaultRules(),
		warnf:    func(string, ...any) {},
		now:      time.Now,
	}
}

// SetWarnFunc routes non-fatal warnings to the caller's logger.
func (st *StatusTracker) SetWarnFunc(warnf func(format string, args ...any)) {
	if warnf != nil {
		st.warnf = warnf
	}
}

// SetRules replaces the classification rules.
func (st *StatusTracker) SetRules(rules *RuleSet) {
	if rules != nil {
		st.rules = rules
	}
}

// ID implements Adapter.
func (st *StatusTracker) ID() string { return "statusmsg" }

// Capabilities implements Adapter.
func (st *StatusTracker) Capabilities() CapabilitySet { return CapabilitySet{Push: true} }

// Poll implements Adapter.
func (st *StatusTracker) Poll(context.Context, Cursor) ([]Record, Cursor, error) {
	return nil, Cursor{}, ErrUnsupported
}

// Start begins sampling. Should only be called once per StatusTracker.
func (st *StatusTracker) Start(ctx context.Context, emit func(Record)) error {
	if st.probe == nil {
		st.warnf("no status probe available; status tracking disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	st.cancel = cancel

	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(st.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st.sample(ctx, emit)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels sampling.
func (st *StatusTracker) Stop() error {
	st.mu.Lock()
	st.stopped = true
	st.mu.Unlock()
	if st.cancel != nil {
		st.cancel()
	}
	st.wg.Wait()
	return nil
}

func (st *StatusTracker) sample(ctx context.Context, emit func(Record)) {
	text, err := st.probe(ctx)
	if err != nil {
		if msg := err.Error(); msg != st.lastErr {
			st.lastErr = msg
			st.warnf("status probe failed: %v", err)
		}
		return
	}
	st.lastErr = ""

	text = strings.TrimSpace(text)

	st.mu.Lock()
	if st.stopped || text == st.last {
		st.mu.Unlock()
		return
	}
	st.last = text
	st.mu.Unlock()

	if text == "" {
		return
	}

	emit(Record{
		Kind:   KindStatus,
		Source: types.SourceEditorDB,
		Payload: map[string]any{
			"text":      text,
			"action":    string(st.rules.Classify(text)),
			"timestamp": st.now().UTC(),
		},
	})
}
