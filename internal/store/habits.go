package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/logging"
)

// HabitRecord pairs a habit definition with one of its goal-linked instances.
type HabitRecord struct {
	Definition domain.HabitDefinition
	Instance   domain.HabitInstance
}

// HabitSpec describes a habit to create or link during goal creation or a
// bulk habit replacement.
type HabitSpec struct {
	Name        string
	Description string
	Frequency   domain.Frequency
	PerPeriod   int
	Target      int
}

// CreateHabitDefinition inserts a new reusable habit concept.
func (s *Store) CreateHabitDefinition(ctx context.Context, def *domain.HabitDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createHabitDefinition(ctx, s.db, def)
}

func (s *Store) createHabitDefinition(ctx context.Context, q querier, def *domain.HabitDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = s.now()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO habit_definitions (id, user_id, name, description, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.ID, def.UserID, def.Name, nullable(def.Description), boolToInt(def.Active), timestamp(def.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert habit definition: %w", err)
	}
	logging.StoreDebug("Created habit definition %s (%q)", def.ID, def.Name)
	return nil
}

// CreateHabitInstance links a habit definition to a goal instance. At most
// one instance may exist per (definition, goal) pair.
func (s *Store) CreateHabitInstance(ctx context.Context, inst *domain.HabitInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createHabitInstance(ctx, s.db, inst)
}

func (s *Store) createHabitInstance(ctx context.Context, q querier, inst *domain.HabitInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Frequency == "" {
		inst.Frequency = domain.FrequencyDaily
	}
	if inst.PerPeriod <= 0 {
		inst.PerPeriod = 1
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.now()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO habit_instances (id, definition_id, goal_instance_id, target, current, frequency, per_period, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.DefinitionID, inst.GoalID, inst.Target, inst.Current,
		string(inst.Frequency), inst.PerPeriod, timestamp(inst.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("definition %s goal %s: %w", inst.DefinitionID, inst.GoalID, ErrHabitAlreadyLinked)
		}
		return fmt.Errorf("failed to insert habit instance: %w", err)
	}
	logging.StoreDebug("Linked habit %s to goal %s", inst.DefinitionID, inst.GoalID)
	return nil
}

// isUniqueViolation reports whether an error came from a UNIQUE constraint.
// modernc.org/sqlite does not export a typed constraint error, so this falls
// back to message inspection.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const habitSelect = `
	SELECT hd.id, hd.user_id, hd.name, COALESCE(hd.description, ''), hd.active, hd.created_at,
	       hi.id, hi.definition_id, hi.goal_instance_id, hi.target, hi.current,
	       hi.frequency, hi.per_period, hi.created_at
	FROM habit_instances hi
	JOIN habit_definitions hd ON hd.id = hi.definition_id`

func scanHabit(row rowScanner) (*HabitRecord, error) {
	var (
		rec                  HabitRecord
		active               int
		defCreated, iCreated string
		frequency            string
	)
	err := row.Scan(&rec.Definition.ID, &rec.Definition.UserID, &rec.Definition.Name,
		&rec.Definition.Description, &active, &defCreated,
		&rec.Instance.ID, &rec.Instance.DefinitionID, &rec.Instance.GoalID,
		&rec.Instance.Target, &rec.Instance.Current, &frequency,
		&rec.Instance.PerPeriod, &iCreated)
	if err != nil {
		return nil, err
	}
	rec.Definition.Active = active != 0
	rec.Definition.CreatedAt = parseTime(defCreated)
	rec.Instance.Frequency = domain.Frequency(frequency)
	rec.Instance.CreatedAt = parseTime(iCreated)
	return &rec, nil
}

func (s *Store) queryHabits(ctx context.Context, query string, args ...any) ([]HabitRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var records []HabitRecord
	for rows.Next() {
		rec, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListActiveHabits returns every active habit instance for a user, one
// record per goal link, oldest first.
func (s *Store) ListActiveHabits(ctx context.Context, userID string) ([]HabitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryHabits(ctx,
		habitSelect+` WHERE hd.user_id = ? AND hd.active = 1 ORDER BY hi.created_at ASC, hi.id ASC`, userID)
}

// ListHabitsByGoal returns the active habit instances linked to one of the
// user's goals. A goal id belonging to another user yields nothing.
func (s *Store) ListHabitsByGoal(ctx context.Context, userID, goalInstanceID string) ([]HabitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryHabits(ctx,
		habitSelect+` WHERE hi.goal_instance_id = ? AND hd.user_id = ? AND hd.active = 1
		 ORDER BY hi.created_at ASC, hi.id ASC`, goalInstanceID, userID)
}

// ListHabitsByGoals returns the active habit instances linked to any of the
// given goals. Used for focus-set narrowing in the matcher.
func (s *Store) ListHabitsByGoals(ctx context.Context, goalInstanceIDs []string) ([]HabitRecord, error) {
	if len(goalInstanceIDs) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(goalInstanceIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(goalInstanceIDs))
	for i, id := range goalInstanceIDs {
		args[i] = id
	}
	return s.queryHabits(ctx,
		habitSelect+` WHERE hi.goal_instance_id IN (`+placeholders+`) AND hd.active = 1
		 ORDER BY hi.created_at ASC, hi.id ASC`, args...)
}

// GetHabitInstance returns one habit instance with its definition.
func (s *Store) GetHabitInstance(ctx context.Context, instanceID string) (*HabitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, habitSelect+` WHERE hi.id = ?`, instanceID)
	rec, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit instance %s: %w", instanceID, ErrNotFound)
	}
	return rec, err
}

// ListHabitInstancesForGoal returns the bare instances under a goal, the
// input shape of the progress aggregator.
func (s *Store) ListHabitInstancesForGoal(ctx context.Context, userID, goalInstanceID string) ([]domain.HabitInstance, error) {
	records, err := s.ListHabitsByGoal(ctx, userID, goalInstanceID)
	if err != nil {
		return nil, err
	}
	instances := make([]domain.HabitInstance, 0, len(records))
	for _, r := range records {
		instances = append(instances, r.Instance)
	}
	return instances, nil
}

// SetHabitActive toggles a habit definition's active flag.
func (s *Store) SetHabitActive(ctx context.Context, definitionID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habit_definitions SET active = ? WHERE id = ?`, boolToInt(active), definitionID)
	if err != nil {
		return fmt.Errorf("failed to update habit active flag: %w", err)
	}
	return requireRowAffected(res, definitionID)
}

// SetHabitTarget updates a habit instance's target counter.
func (s *Store) SetHabitTarget(ctx context.Context, instanceID string, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habit_instances SET target = ? WHERE id = ?`, target, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update habit target: %w", err)
	}
	return requireRowAffected(res, instanceID)
}

// ReplaceGoalHabits swaps the habit set under a goal in one transaction.
// offsetFor receives the old habit set, the old manual offset, and the new
// habit set, and returns the new manual offset; it is how the caller keeps
// the goal's combined progress unchanged across the swap.
func (s *Store) ReplaceGoalHabits(ctx context.Context, userID, goalInstanceID string, specs []HabitSpec,
	offsetFor func(old []domain.HabitInstance, oldOffset int, replacement []domain.HabitInstance) int) ([]domain.HabitInstance, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	goal, err := s.getGoal(ctx, tx, goalInstanceID)
	if err != nil {
		return nil, err
	}

	oldInstances, err := s.listInstancesTx(ctx, tx, goalInstanceID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM habit_instances WHERE goal_instance_id = ?`, goalInstanceID); err != nil {
		return nil, fmt.Errorf("failed to remove old habit links: %w", err)
	}

	replacement := make([]domain.HabitInstance, 0, len(specs))
	for _, spec := range specs {
		defID, err := s.findOrCreateDefinitionTx(ctx, tx, userID, spec)
		if err != nil {
			return nil, err
		}
		inst := domain.HabitInstance{
			DefinitionID: defID,
			GoalID:       goalInstanceID,
			Target:       spec.Target,
			Frequency:    spec.Frequency,
			PerPeriod:    spec.PerPeriod,
		}
		if err := s.createHabitInstance(ctx, tx, &inst); err != nil {
			return nil, err
		}
		replacement = append(replacement, inst)
	}

	newOffset := goal.Instance.ManualOffset
	if offsetFor != nil {
		newOffset = offsetFor(oldInstances, goal.Instance.ManualOffset, replacement)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE goal_instances SET manual_offset = ? WHERE id = ?`, newOffset, goalInstanceID); err != nil {
		return nil, fmt.Errorf("failed to update manual offset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit habit replacement: %w", err)
	}
	logging.Store("Replaced %d habits with %d under goal %s (offset %d -> %d)",
		len(oldInstances), len(replacement), goalInstanceID, goal.Instance.ManualOffset, newOffset)
	return replacement, nil
}

func (s *Store) listInstancesTx(ctx context.Context, q querier, goalInstanceID string) ([]domain.HabitInstance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, definition_id, goal_instance_id, target, current, frequency, per_period, created_at
		 FROM habit_instances WHERE goal_instance_id = ? ORDER BY created_at ASC, id ASC`, goalInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.HabitInstance
	for rows.Next() {
		var (
			inst      domain.HabitInstance
			frequency string
			created   string
		)
		if err := rows.Scan(&inst.ID, &inst.DefinitionID, &inst.GoalID, &inst.Target,
			&inst.Current, &frequency, &inst.PerPeriod, &created); err != nil {
			return nil, err
		}
		inst.Frequency = domain.Frequency(frequency)
		inst.CreatedAt = parseTime(created)
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// findOrCreateDefinitionTx reuses an existing active definition with the same
// name, or creates a new one.
func (s *Store) findOrCreateDefinitionTx(ctx context.Context, tx *sql.Tx, userID string, spec HabitSpec) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM habit_definitions WHERE user_id = ? AND name = ? AND active = 1`,
		userID, spec.Name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up habit definition: %w", err)
	}

	def := domain.HabitDefinition{
		UserID:      userID,
		Name:        spec.Name,
		Description: spec.Description,
		Active:      true,
	}
	if err := s.createHabitDefinition(ctx, tx, &def); err != nil {
		return "", err
	}
	return def.ID, nil
}
