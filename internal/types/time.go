package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical storage form: RFC 3339 at second
// precision, always UTC. Uniform width keeps lexicographic comparison on the
// TEXT column identical to chronological order.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in the canonical storage form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// parseLayouts are the accepted inbound shapes, most specific first. The
// sidecar store and history files are not consistent about offsets or
// sub-second precision.
var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses any accepted timestamp shape. Bare epoch seconds or
// milliseconds are recognized by magnitude.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromEpoch(n), nil
	}

	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FromEpoch converts a bare integer timestamp, guessing the unit from its
// magnitude: values past 1e12 are milliseconds, past 1e15 microseconds.
func FromEpoch(n int64) time.Time {
	switch {
	case n > 1e15:
		return time.UnixMicro(n)
	case n > 1e12:
		return time.UnixMilli(n)
	default:
		return time.Unix(n, 0)
	}
}

// SessionIDFor returns the coarse session id for t: the calendar date in
// local time.
func SessionIDFor(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// BucketTimestamp truncates t to the given width for fingerprinting, so two
// observations of the same prompt that differ by sub-bucket jitter collapse
// to one identity.
func BucketTimestamp(t time.Time, width time.Duration) string {
	if width <= 0 {
		width = time.Second
	}
	return FormatTimestamp(t.UTC().Truncate(width))
}
