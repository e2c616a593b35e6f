package correlate

import (
	"context"
	"fmt"

	"github.com/untoldecay/LoomLog/internal/types"
)

// RecordSnapshot persists a context-window snapshot and derives the delta
// against the previous snapshot of the same scope: the same prompt when the
// snapshot is tied to one, otherwise the same session. The first snapshot in
// a scope produces no change row and returns nil.
func (e *Engine) RecordSnapshot(ctx context.Context, snap *types.ContextSnapshot) (*types.ContextChange, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = e.now().UTC()
	}
	if snap.SessionID == "" {
		snap.SessionID = types.SessionIDFor(snap.Timestamp)
	}
	if snap.FileCount == 0 {
		snap.FileCount = len(snap.ContextFiles)
	}

	prev, err := e.store.LatestContextSnapshot(ctx, snap.PromptID, snap.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}
	if err := e.store.SaveContextSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	if prev == nil {
		return nil, nil
	}

	added, removed, unchanged := diffFiles(prev.ContextFiles, snap.ContextFiles)
	change := &types.ContextChange{
		PromptID:      snap.PromptID,
		SessionID:     snap.SessionID,
		Timestamp:     snap.Timestamp,
		PrevFileCount: prev.FileCount,
		CurrFileCount: snap.FileCount,
		Added:         added,
		Removed:       removed,
		Unchanged:     unchanged,
		NetChange:     snap.FileCount - prev.FileCount,
	}
	if err := e.store.SaveContextChange(ctx, change); err != nil {
		return nil, fmt.Errorf("failed to save context change: %w", err)
	}
	return change, nil
}

// diffFiles splits curr against prev, preserving input order.
func diffFiles(prev, curr []string) (added, removed, unchanged []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, f := range prev {
		prevSet[f] = struct{}{}
	}
	currSet := make(map[string]struct{}, len(curr))
	for _, f := range curr {
		currSet[f] = struct{}{}
	}
	for _, f := range curr {
		if _, ok := prevSet[f]; ok {
			unchanged = append(unchanged, f)
		} else {
			added = append(added, f)
		}
	}
	for _, f := range prev {
		if _, ok := currSet[f]; !ok {
			removed = append(removed, f)
		}
	}
	return added, removed, unchanged
}
