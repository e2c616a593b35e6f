// Package adapters observes the developer's environment. Each adapter wraps
// one source (filesystem, clipboard, editor sidecar store, shell history,
// editor status line) and emits loose records; the normalizer owns mapping
// them onto canonical entities, so adapters never reach into the store.
//
// Adapters are isolated: one failing never stops another, and re-emitting
// the same logical record is safe because ids and fingerprints downstream
// are deterministic.
package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/untoldecay/LoomLog/internal/types"
)

// Kind discriminates what a record's payload describes.
type Kind string

const (
	KindEntry   Kind = "entry"
	KindPrompt  Kind = "prompt"
	KindCommand Kind = "terminal_command"
	KindTodo    Kind = "todo"
	KindStatus  Kind = "status_message"
	KindEvent   Kind = "event"
)

// Record is one observation leaving an adapter. Payload keys follow the
// source's native naming; the normalizer accepts both snake_case and
// camelCase, so adapters pass rows through unmapped.
type Record struct {
	Kind    Kind
	Source  types.Source
	Payload map[string]any
}

// Cursor is an adapter's resume position. Pull adapters return an advanced
// cursor from every successful poll; the zero Cursor means "from the
// current state of the source". Marks carries per-file positions for
// sources that read more than one file. Cursors are serialized into
// store metadata between daemon runs.
type Cursor struct {
	Since  time.Time        `json:"since"`
	Offset int64            `json:"offset,omitempty"`
	Marks  map[string]int64 `json:"marks,omitempty"`
}

// CapabilitySet declares which delivery modes an adapter supports.
type CapabilitySet struct {
	// Push adapters deliver through Start's emit callback.
	Push bool
	// Pull adapters deliver through Poll.
	Pull bool
}

// ErrUnsupported is returned by Start on pull-only adapters and by Poll on
// push-only adapters.
var ErrUnsupported = errors.New("delivery mode not supported by this adapter")

// Adapter is one source of observations.
type Adapter interface {
	// ID names the adapter for logs and scheduling.
	ID() string

	// Capabilities reports the supported delivery modes.
	Capabilities() CapabilitySet

	// Start launches a push adapter's background sampling. It returns after
	// setup; records arrive through emit until the context is canceled or
	// Stop is called. Pull-only adapters return ErrUnsupported.
	Start(ctx context.Context, emit func(Record)) error

	// Poll reads records past cursor and returns them with the advanced
	// cursor. Push-only adapters return ErrUnsupported.
	Poll(ctx context.Context, cursor Cursor) ([]Record, Cursor, error)

	// Stop releases the adapter's resources. Safe to call more than once.
	Stop() error
}
