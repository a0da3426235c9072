package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/logging"
)

// InsertPrioritySnapshot appends a new immutable focus-set snapshot. Earlier
// snapshots are never edited; the latest row is authoritative. An empty items
// list is a valid cleared focus.
func (s *Store) InsertPrioritySnapshot(ctx context.Context, userID string, items []domain.PriorityItem, sourceThreadID string) (*domain.PrioritySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items == nil {
		items = []domain.PriorityItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot items: %w", err)
	}

	snap := domain.PrioritySnapshot{
		ID:             uuid.NewString(),
		UserID:         userID,
		Items:          items,
		SourceThreadID: sourceThreadID,
		CreatedAt:      s.now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO priority_snapshots (id, user_id, items, source_thread_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, string(raw), nullable(snap.SourceThreadID), timestamp(snap.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert priority snapshot: %w", err)
	}
	logging.Store("Inserted priority snapshot %s for user %s (%d items)", snap.ID, userID, len(items))
	return &snap, nil
}

// LatestPrioritySnapshot returns the most recently created snapshot for a
// user, or nil when the user has never prioritized.
func (s *Store) LatestPrioritySnapshot(ctx context.Context, userID string) (*domain.PrioritySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, items, COALESCE(source_thread_id, ''), created_at
		 FROM priority_snapshots WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID)

	var (
		snap    domain.PrioritySnapshot
		rawItem string
		created string
	)
	err := row.Scan(&snap.ID, &snap.UserID, &rawItem, &snap.SourceThreadID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load priority snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(rawItem), &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot items: %w", err)
	}
	snap.CreatedAt = parseTime(created)
	return &snap, nil
}
