package queries

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Search windows: how many recent rows of each kind are candidates. The
// store ages out history by retention anyway; these bounds keep one search
// call to three list reads.
const (
	searchPromptWindow  = 500
	searchEntryWindow   = 500
	searchCommandWindow = 200

	suggestMaxDistance = 2
	suggestLimit       = 5
)

// SearchResult is one ranked hit across prompts, entries, and commands.
type SearchResult struct {
	Kind      string    `json:"kind"` // prompt, entry, command
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"` // "text match" or "fuzzy match"
}

// Search ranks recent prompts, entries, and terminal commands against term.
// Substring hits outrank fuzzy hits; ties break newest first. An empty term
// or a cold store returns an empty slice.
func (f *Facade) Search(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []SearchResult{}, nil
	}
	limit = clampLimit(limit)
	key := fmt.Sprintf("search:%s:%d", strings.ToLower(term), limit)
	return cached(f.cache, key, func() ([]SearchResult, error) {
		var results []SearchResult

		prompts, err := f.store.RecentPrompts(ctx, searchPromptWindow, 0, "")
		if err != nil {
			return nil, err
		}
		for _, p := range prompts {
			if r, ok := score(term, p.Text); ok {
				r.Kind = "prompt"
				r.ID = fmt.Sprintf("%d", p.ID)
				r.Title = snippet(p.Text)
				r.Timestamp = p.Timestamp
				results = append(results, r)
			}
		}

		entries, err := f.store.RecentEntries(ctx, searchEntryWindow, 0, "", false)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			candidate := e.FilePath
			if e.Notes != "" {
				candidate += " " + e.Notes
			}
			if r, ok := score(term, candidate); ok {
				r.Kind = "entry"
				r.ID = fmt.Sprintf("%d", e.ID)
				r.Title = e.FilePath
				r.Timestamp = e.Timestamp
				results = append(results, r)
			}
		}

		cmds, err := f.store.RecentTerminalCommands(ctx, searchCommandWindow, 0)
		if err != nil {
			return nil, err
		}
		for _, c := range cmds {
			if r, ok := score(term, c.Command); ok {
				r.Kind = "command"
				r.ID = c.ID
				r.Title = snippet(c.Command)
				r.Timestamp = c.Timestamp
				results = append(results, r)
			}
		}

		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].Timestamp.After(results[j].Timestamp)
		})
		if len(results) > limit {
			results = results[:limit]
		}
		return nonNil(results), nil
	})
}

// score rates candidate against term: substring matches score 2, fuzzy
// matches decay with the match rank.
func score(term, candidate string) (SearchResult, bool) {
	if candidate == "" {
		return SearchResult{}, false
	}
	if strings.Contains(strings.ToLower(candidate), strings.ToLower(term)) {
		return SearchResult{Score: 2, Reason: "text match"}, true
	}
	rank := fuzzy.RankMatchNormalizedFold(term, candidate)
	if rank < 0 {
		return SearchResult{}, false
	}
	return SearchResult{Score: 1 / (1 + float64(rank)), Reason: "fuzzy match"}, true
}

func snippet(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) > 96 {
		return string(runes[:96]) + "..."
	}
	return text
}

// Suggest proposes close file names for a term that found nothing, using
// edit distance over the file names of recent entries. Results come back
// best first.
func (f *Facade) Suggest(ctx context.Context, term string) ([]string, error) {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return []string{}, nil
	}
	entries, err := f.store.RecentEntries(ctx, searchEntryWindow, 0, "", false)
	if err != nil {
		return nil, err
	}

	best := make(map[string]int)
	for _, e := range entries {
		name := filepath.Base(e.FilePath)
		if name == "" || name == "." {
			continue
		}
		dist := levenshtein.ComputeDistance(term, strings.ToLower(name))
		if dist > suggestMaxDistance {
			continue
		}
		if prev, ok := best[name]; !ok || dist < prev {
			best[name] = dist
		}
	}

	type scored struct {
		name string
		dist int
	}
	ranked := make([]scored, 0, len(best))
	for name, dist := range best {
		ranked = append(ranked, scored{name: name, dist: dist})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > suggestLimit {
		ranked = ranked[:suggestLimit]
	}
	names := make([]string, len(ranked))
	for i, s := range ranked {
		names[i] = s.name
	}
	return names, nil
}
