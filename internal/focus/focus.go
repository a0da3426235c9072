// Package focus maintains the user's versioned focus set as append-only
// priority snapshots. Snapshots are never edited, only superseded; clearing
// focus inserts an empty snapshot rather than deleting anything.
package focus

import (
	"context"
	"fmt"

	"momentum/internal/domain"
	"momentum/internal/logging"
	"momentum/internal/store"
)

// SnapshotStore writes and reads priority snapshots. Resolver proposals are
// never auto-applied; a snapshot is written only through Apply or Clear,
// which callers invoke on explicit confirmation.
type SnapshotStore struct {
	store *store.Store
	limit int
}

// New creates a snapshot store bounded by the configured focus limit.
func New(s *store.Store, focusLimit int) *SnapshotStore {
	return &SnapshotStore{store: s, limit: focusLimit}
}

// Apply inserts a new snapshot with the given ranked items. An empty items
// slice is equivalent to Clear. Items beyond the focus limit are rejected.
func (f *SnapshotStore) Apply(ctx context.Context, userID string, items []domain.PriorityItem, sourceThreadID string) (*domain.PrioritySnapshot, error) {
	if len(items) > f.limit {
		return nil, fmt.Errorf("focus set size %d exceeds limit %d", len(items), f.limit)
	}
	for i := range items {
		if items[i].GoalInstanceID == "" {
			return nil, fmt.Errorf("item %d: missing goal instance id", i)
		}
		if items[i].Rank == 0 {
			items[i].Rank = i + 1
		}
	}

	snap, err := f.store.InsertPrioritySnapshot(ctx, userID, items, sourceThreadID)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryFocus).Info("Applied focus set of %d for user %s", len(items), userID)
	return snap, nil
}

// Clear supersedes the current focus with an empty snapshot.
func (f *SnapshotStore) Clear(ctx context.Context, userID, sourceThreadID string) (*domain.PrioritySnapshot, error) {
	snap, err := f.store.InsertPrioritySnapshot(ctx, userID, []domain.PriorityItem{}, sourceThreadID)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryFocus).Info("Cleared focus for user %s", userID)
	return snap, nil
}

// Latest returns the most recent snapshot, or nil when the user has never
// prioritized.
func (f *SnapshotStore) Latest(ctx context.Context, userID string) (*domain.PrioritySnapshot, error) {
	return f.store.LatestPrioritySnapshot(ctx, userID)
}
