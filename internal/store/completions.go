package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/logging"
)

// CompletionResult carries everything a caller needs to respond to a logged
// completion: the event itself and the recomputed streaks.
type CompletionResult struct {
	Completion  domain.HabitCompletion
	HabitStreak int
	GoalStreak  int
}

// LogCompletion records one habit occurrence. In a single transaction it
// rejects a same-calendar-day duplicate (ErrDuplicateCompletion), inserts
// the event, increments the habit instance's counter, and recomputes the
// owning goal's streak.
func (s *Store) LogCompletion(ctx context.Context, habitInstanceID, userID, note string, at time.Time) (*CompletionResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LogCompletion")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = s.now()
	}
	day := dayOf(at)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Resolve the habit's owner and goal up front. A habit belonging to a
	// different user reports not-found, same as a habit that does not exist.
	var goalID, ownerID string
	err = tx.QueryRowContext(ctx,
		`SELECT hi.goal_instance_id, hd.user_id
		 FROM habit_instances hi
		 JOIN habit_definitions hd ON hd.id = hi.definition_id
		 WHERE hi.id = ?`, habitInstanceID).Scan(&goalID, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit instance %s: %w", habitInstanceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve habit instance: %w", err)
	}
	if ownerID != userID {
		return nil, fmt.Errorf("habit instance %s: %w", habitInstanceID, ErrNotFound)
	}

	// Check-then-insert inside the transaction; the UNIQUE(habit, day)
	// constraint backs this up against concurrent writers.
	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM habit_completions WHERE habit_instance_id = ? AND day = ?`,
		habitInstanceID, day).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("habit %s on %s: %w", habitInstanceID, day, ErrDuplicateCompletion)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing completion: %w", err)
	}

	completion := domain.HabitCompletion{
		ID:              uuid.NewString(),
		HabitInstanceID: habitInstanceID,
		UserID:          userID,
		Note:            note,
		Day:             day,
		CompletedAt:     at.UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO habit_completions (id, habit_instance_id, user_id, note, day, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		completion.ID, completion.HabitInstanceID, completion.UserID,
		nullable(completion.Note), completion.Day, timestamp(completion.CompletedAt)); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("habit %s on %s: %w", habitInstanceID, day, ErrDuplicateCompletion)
		}
		return nil, fmt.Errorf("failed to insert completion: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE habit_instances SET current = current + 1 WHERE id = ?`, habitInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment habit counter: %w", err)
	}
	if err := requireRowAffected(res, habitInstanceID); err != nil {
		return nil, err
	}

	habitStreak, err := s.streakTx(ctx, tx,
		`SELECT DISTINCT day FROM habit_completions WHERE habit_instance_id = ? ORDER BY day DESC`,
		day, habitInstanceID)
	if err != nil {
		return nil, err
	}

	goalStreak, err := s.streakTx(ctx, tx,
		`SELECT DISTINCT hc.day FROM habit_completions hc
		 JOIN habit_instances hi ON hi.id = hc.habit_instance_id
		 WHERE hi.goal_instance_id = ? ORDER BY hc.day DESC`,
		day, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE goal_instances SET streak = ? WHERE id = ?`, goalStreak, goalID); err != nil {
		return nil, fmt.Errorf("failed to update goal streak: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	logging.Store("Logged completion %s for habit %s (streak %d)", completion.ID, habitInstanceID, habitStreak)
	return &CompletionResult{Completion: completion, HabitStreak: habitStreak, GoalStreak: goalStreak}, nil
}

// streakTx counts consecutive calendar days ending at refDay over the days
// produced by the given query (which must yield distinct days descending).
func (s *Store) streakTx(ctx context.Context, q querier, query, refDay string, args ...any) (int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to load completion days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return 0, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return consecutiveDays(days, refDay), nil
}

// consecutiveDays walks a descending list of distinct YYYY-MM-DD days and
// counts the unbroken run ending at refDay.
func consecutiveDays(days []string, refDay string) int {
	ref, err := time.Parse("2006-01-02", refDay)
	if err != nil {
		return 0
	}
	streak := 0
	expect := ref
	for _, d := range days {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if day.After(expect) {
			continue
		}
		if !day.Equal(expect) {
			break
		}
		streak++
		expect = expect.AddDate(0, 0, -1)
	}
	return streak
}

// HabitStreak computes the current streak for a habit instance as of the
// store's clock.
func (s *Store) HabitStreak(ctx context.Context, habitInstanceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streakTx(ctx, s.db,
		`SELECT DISTINCT day FROM habit_completions WHERE habit_instance_id = ? ORDER BY day DESC`,
		dayOf(s.now()), habitInstanceID)
}

// CountCompletionsSince counts events for a habit instance on or after the
// given day.
func (s *Store) CountCompletionsSince(ctx context.Context, habitInstanceID, sinceDay string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_completions WHERE habit_instance_id = ? AND day >= ?`,
		habitInstanceID, sinceDay).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return n, nil
}

// CompletedOnDay reports whether the habit instance has an event on the day.
func (s *Store) CompletedOnDay(ctx context.Context, habitInstanceID, day string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM habit_completions WHERE habit_instance_id = ? AND day = ?`,
		habitInstanceID, day).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return true, nil
}

// Today returns the store clock's current calendar day.
func (s *Store) Today() string {
	return dayOf(s.now())
}
