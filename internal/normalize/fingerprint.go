package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/untoldecay/LoomLog/internal/types"
)

// Fingerprints are xxhash64 digests of a canonical component string. The hex
// form is the dedup key in both the in-process seen set and the store's
// partial unique indexes, so re-ingesting the same logical record always
// resolves to the same row.

const (
	// promptTextPrefixLen caps how much prompt text feeds the fallback
	// fingerprint. Long prompts differ early or not at all.
	promptTextPrefixLen = 50

	// promptBucket is the timestamp granularity of the fallback fingerprint.
	// Clipboard captures of the same text within a minute are one prompt.
	promptBucket = time.Minute
)

// EntryFingerprint derives the dedup key for an observed code change from
// its source, canonical timestamp, and file path.
func EntryFingerprint(e *types.Entry) string {
	return digest("e", string(e.Source), types.FormatTimestamp(e.Timestamp), e.FilePath)
}

// PromptFingerprint derives the dedup key for a captured prompt. A composer
// id identifies editor prompts exactly, refined by the message index when
// one conversation row fans out into several messages. Everything else falls
// back to a minute bucket plus a text prefix.
func PromptFingerprint(p *types.Prompt) string {
	if p.ComposerID != "" {
		if p.ConversationIndex != nil {
			return digest("p", p.ComposerID, strconv.Itoa(*p.ConversationIndex))
		}
		return digest("p", p.ComposerID)
	}
	prefix := p.Text
	if runes := []rune(prefix); len(runes) > promptTextPrefixLen {
		prefix = string(runes[:promptTextPrefixLen])
	}
	return digest("p", types.BucketTimestamp(p.Timestamp, promptBucket), prefix)
}

// CommandToken derives a stable id for a mined shell command, so re-reading
// the same history lines maps onto the same rows.
func CommandToken(c *types.TerminalCommand) string {
	return digest("tc", c.Shell, types.FormatTimestamp(c.Timestamp), c.Command)
}

// TodoToken derives a stable id for a todo observed without one, so repeated
// reads of the same task list merge instead of duplicating.
func TodoToken(t *types.Todo) string {
	return digest("td", t.SessionID, t.Content)
}

// StatusToken derives a stable id for a sampled status message.
func StatusToken(m *types.StatusMessage) string {
	return digest("sm", types.FormatTimestamp(m.Timestamp), m.Text)
}

// EventToken derives a stable id for an event recorded without one, so the
// same mined observation maps onto the same row. Details participate in the
// digest because mined events of one type can share a timestamp.
func EventToken(e *types.Event) string {
	parts := []string{"ev", e.Type, types.FormatTimestamp(e.Timestamp), e.SessionID}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return digest(parts...)
}

func digest(parts ...string) string {
	h := xxhash.New()
	for i, part := range parts {
		if i > 0 {
			h.WriteString("|")
		}
		h.WriteString(part)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
