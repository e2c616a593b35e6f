package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseTimeFlag resolves a --since/--until value. Absolute formats are
// tried first, then natural language ("yesterday", "2 hours ago").
func parseTimeFlag(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}

	r, err := whenParser.Parse(value, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", value, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q (try '2 hours ago', 'yesterday', or 2006-01-02)", value)
	}
	return r.Time, nil
}

// timeRangeFlags reads --since/--until off cmd. ok reports whether either
// was given; an absent --until means now.
func timeRangeFlags(sinceRaw, untilRaw string) (since, until time.Time, ok bool, err error) {
	since, err = parseTimeFlag(sinceRaw)
	if err != nil {
		return
	}
	until, err = parseTimeFlag(untilRaw)
	if err != nil {
		return
	}
	if since.IsZero() && until.IsZero() {
		return
	}
	ok = true
	if until.IsZero() {
		until = time.Now()
	}
	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	return
}

// formatRelativeTime renders a timestamp as a short age.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncateText collapses whitespace and shortens s for a table cell.
func truncateText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
