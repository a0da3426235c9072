package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/logging"
)

// GoalRecord is a goal instance joined with its definition and life metric,
// the shape the resolver and the reader work with.
type GoalRecord struct {
	Instance    domain.GoalInstance
	Title       string
	Description string
	LifeMetric  string
	Term        domain.TermBucket
}

// CreateGoalDefinition inserts a new goal definition, assigning ID and
// creation time when unset.
func (s *Store) CreateGoalDefinition(ctx context.Context, def *domain.GoalDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goal_definitions (id, user_id, title, description, life_metric_id, term, archived, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.UserID, def.Title, nullable(def.Description), nullable(def.LifeMetricID),
		nullable(string(def.Term)), boolToInt(def.Archived), timestamp(def.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert goal definition: %w", err)
	}
	logging.StoreDebug("Created goal definition %s (%q)", def.ID, def.Title)
	return nil
}

// CreateGoalInstance inserts a new run of a goal definition.
func (s *Store) CreateGoalInstance(ctx context.Context, inst *domain.GoalInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Status == "" {
		inst.Status = domain.GoalStatusActive
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.now()
	}

	var targetDate any
	if inst.TargetDate != nil {
		targetDate = timestamp(*inst.TargetDate)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goal_instances (id, definition_id, user_id, status, target_value, manual_offset, streak, target_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.DefinitionID, inst.UserID, string(inst.Status), inst.TargetValue,
		inst.ManualOffset, inst.Streak, targetDate, timestamp(inst.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert goal instance: %w", err)
	}
	logging.StoreDebug("Created goal instance %s (definition %s)", inst.ID, inst.DefinitionID)
	return nil
}

// GetGoal returns a goal instance joined with its definition.
func (s *Store) GetGoal(ctx context.Context, instanceID string) (*GoalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getGoal(ctx, s.db, instanceID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) getGoal(ctx context.Context, q querier, instanceID string) (*GoalRecord, error) {
	row := q.QueryRowContext(ctx, goalSelect+` WHERE gi.id = ?`, instanceID)
	rec, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal instance %s: %w", instanceID, ErrNotFound)
	}
	return rec, err
}

const goalSelect = `
	SELECT gi.id, gi.definition_id, gi.user_id, gi.status, gi.target_value,
	       gi.manual_offset, gi.streak, COALESCE(gi.target_date, ''), gi.created_at,
	       gd.title, COALESCE(gd.description, ''), COALESCE(lm.name, ''), COALESCE(gd.term, '')
	FROM goal_instances gi
	JOIN goal_definitions gd ON gd.id = gi.definition_id
	LEFT JOIN life_metrics lm ON lm.id = gd.life_metric_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (*GoalRecord, error) {
	var (
		rec                  GoalRecord
		status               string
		targetDate, created  string
		term                 string
	)
	err := row.Scan(&rec.Instance.ID, &rec.Instance.DefinitionID, &rec.Instance.UserID,
		&status, &rec.Instance.TargetValue, &rec.Instance.ManualOffset, &rec.Instance.Streak,
		&targetDate, &created, &rec.Title, &rec.Description, &rec.LifeMetric, &term)
	if err != nil {
		return nil, err
	}
	rec.Instance.Status = domain.GoalStatus(status)
	rec.Instance.CreatedAt = parseTime(created)
	rec.Term = domain.TermBucket(term)
	if targetDate != "" {
		t := parseTime(targetDate)
		rec.Instance.TargetDate = &t
	}
	return &rec, nil
}

// ListActiveGoals returns all of a user's active, unarchived goal instances
// in creation order (oldest first).
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]GoalRecord, error) {
	return s.listGoals(ctx, userID, false)
}

// ListActiveGoalsWithHabits returns active goal instances that have at least
// one linked habit instance. Goals with zero habits are excluded from the
// agent's candidate pool since it cannot act on them.
func (s *Store) ListActiveGoalsWithHabits(ctx context.Context, userID string) ([]GoalRecord, error) {
	return s.listGoals(ctx, userID, true)
}

func (s *Store) listGoals(ctx context.Context, userID string, requireHabits bool) ([]GoalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := goalSelect + ` WHERE gi.user_id = ? AND gi.status = 'active' AND gd.archived = 0`
	if requireHabits {
		query += ` AND EXISTS (SELECT 1 FROM habit_instances hi WHERE hi.goal_instance_id = gi.id)`
	}
	query += ` ORDER BY gi.created_at ASC, gi.id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var records []GoalRecord
	for rows.Next() {
		rec, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// SetGoalStatus updates the lifecycle status of a goal instance.
func (s *Store) SetGoalStatus(ctx context.Context, instanceID string, status domain.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE goal_instances SET status = ? WHERE id = ?`, string(status), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update goal status: %w", err)
	}
	return requireRowAffected(res, instanceID)
}

// SetManualOffset updates the manual progress credit of a goal instance.
func (s *Store) SetManualOffset(ctx context.Context, instanceID string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE goal_instances SET manual_offset = ? WHERE id = ?`, offset, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update manual offset: %w", err)
	}
	return requireRowAffected(res, instanceID)
}

// ArchiveGoalDefinition marks a goal definition archived. Definitions are
// never deleted.
func (s *Store) ArchiveGoalDefinition(ctx context.Context, definitionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE goal_definitions SET archived = 1 WHERE id = ?`, definitionID)
	if err != nil {
		return fmt.Errorf("failed to archive goal definition: %w", err)
	}
	return requireRowAffected(res, definitionID)
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
