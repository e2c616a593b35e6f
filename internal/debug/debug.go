// Package debug provides opt-in diagnostic logging for the CLI side,
// enabled with LOOM_DEBUG=1. The daemon has its own leveled log file; this
// is for chasing client-side behavior without touching it.
package debug

import (
	"fmt"
	"os"
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	val := os.Getenv("LOOM_DEBUG")
	return val == "1" || val == "true"
}

// Logf writes to stderr when LOOM_DEBUG is set. The format string is
// emitted verbatim; callers supply their own newline.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
