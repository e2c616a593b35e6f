package correlate

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// Score weights. Temporal decay carries half the signal; workspace and file
// evidence split the rest.
const (
	temporalWeight    = 0.5
	workspaceWeight   = 0.2
	fileMentionWeight = 0.2
	contextFileWeight = 0.1
)

// Confidence cutoffs. These are user-facing numbers, documented in the CLI
// help text and the README.
const (
	HighThreshold   = 0.75
	MediumThreshold = 0.45
	LowThreshold    = 0.2
)

// Candidate pairs a prompt with its computed evidence for one entry.
type Candidate struct {
	Prompt *types.Prompt
	Score  float64
	Gap    time.Duration
}

// Score computes the weighted evidence that prompt caused entry: temporal
// proximity decayed over tau, exact workspace match, a verbatim mention of
// the file in the prompt text, and the file's presence in the prompt's
// context window.
func Score(entry *types.Entry, prompt *types.Prompt, tau time.Duration) float64 {
	gap := entry.Timestamp.Sub(prompt.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	s := temporalWeight * math.Exp(-gap.Seconds()/tau.Seconds())
	if entry.WorkspacePath != "" && entry.WorkspacePath == prompt.WorkspacePath {
		s += workspaceWeight
	}
	if mentionsFile(prompt.Text, entry.FilePath) {
		s += fileMentionWeight
	}
	if hasContextFile(prompt.ContextFiles, entry.FilePath) {
		s += contextFileWeight
	}
	return s
}

// Classify maps a score onto its categorical confidence.
func Classify(score float64) types.Confidence {
	switch {
	case score >= HighThreshold:
		return types.ConfidenceHigh
	case score >= MediumThreshold:
		return types.ConfidenceMedium
	case score >= LowThreshold:
		return types.ConfidenceLow
	default:
		return types.ConfidenceNone
	}
}

// mentionsFile reports whether text names the file, by full path or
// basename.
func mentionsFile(text, filePath string) bool {
	if text == "" || filePath == "" {
		return false
	}
	if strings.Contains(text, filePath) {
		return true
	}
	base := filepath.Base(filePath)
	if base == "." || base == string(filepath.Separator) {
		return false
	}
	return strings.Contains(text, base)
}

// hasContextFile reports whether the file sat in the prompt's context
// window, matching by exact path or basename since the editor records
// context files relative to the workspace.
func hasContextFile(files []string, filePath string) bool {
	if filePath == "" {
		return false
	}
	base := filepath.Base(filePath)
	for _, f := range files {
		if f == filePath || filepath.Base(f) == base {
			return true
		}
	}
	return false
}

// rank orders candidates best first: highest score, then smallest time gap,
// then earliest prompt id.
func rank(entry *types.Entry, prompts []*types.Prompt, tau time.Duration) []Candidate {
	out := make([]Candidate, 0, len(prompts))
	for _, p := range prompts {
		gap := entry.Timestamp.Sub(p.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		out = append(out, Candidate{Prompt: p, Score: Score(entry, p, tau), Gap: gap})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Gap != out[j].Gap {
			return out[i].Gap < out[j].Gap
		}
		return out[i].Prompt.ID < out[j].Prompt.ID
	})
	return out
}
