package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/logging"
)

// defaultLifeMetrics are seeded for users with no categories.
var defaultLifeMetrics = []struct {
	name  string
	color string
}{
	{"Health", "#34d399"},
	{"Career", "#60a5fa"},
	{"Finances", "#fbbf24"},
	{"Relationships", "#f472b6"},
	{"Growth", "#a78bfa"},
}

// ListLifeMetrics returns a user's life-metric categories.
func (s *Store) ListLifeMetrics(ctx context.Context, userID string) ([]domain.LifeMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, COALESCE(color, ''), created_at
		 FROM life_metrics WHERE user_id = ? ORDER BY created_at ASC, name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list life metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.LifeMetric
	for rows.Next() {
		var (
			m       domain.LifeMetric
			created string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Color, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// CreateLifeMetric inserts a category.
func (s *Store) CreateLifeMetric(ctx context.Context, m *domain.LifeMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO life_metrics (id, user_id, name, color, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Name, nullable(m.Color), timestamp(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert life metric: %w", err)
	}
	return nil
}

// SeedDefaultLifeMetrics creates the default categories for a user who has
// none. Returns the seeded (or already existing) metrics.
func (s *Store) SeedDefaultLifeMetrics(ctx context.Context, userID string) ([]domain.LifeMetric, error) {
	existing, err := s.ListLifeMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	for _, d := range defaultLifeMetrics {
		m := domain.LifeMetric{UserID: userID, Name: d.name, Color: d.color}
		if err := s.CreateLifeMetric(ctx, &m); err != nil {
			// Another writer may have seeded concurrently; the unique
			// (user, name) constraint makes that a benign race.
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
	}
	logging.Store("Seeded default life metrics for user %s", userID)
	return s.ListLifeMetrics(ctx, userID)
}

// ListInsights returns a user's insights, highest confidence first.
func (s *Store) ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, text, confidence, votes, created_at
		 FROM insights WHERE user_id = ?
		 ORDER BY confidence DESC, created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []domain.Insight
	for rows.Next() {
		var (
			in      domain.Insight
			created string
		)
		if err := rows.Scan(&in.ID, &in.UserID, &in.Text, &in.Confidence, &in.Votes, &created); err != nil {
			return nil, err
		}
		in.CreatedAt = parseTime(created)
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

// CreateInsight inserts an observation. Used by seeding; the engine itself
// only reads insights.
func (s *Store) CreateInsight(ctx context.Context, in *domain.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (id, user_id, text, confidence, votes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.Text, in.Confidence, in.Votes, timestamp(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}
	return nil
}

// Turn is one persisted conversation turn.
type Turn struct {
	ID        string
	UserID    string
	ThreadID  string
	UserInput string
	Answer    string
	CardsJSON string
}

// SaveTurn records a finished turn: the user input, the final answer, and the
// encoded cards it surfaced.
func (s *Store) SaveTurn(ctx context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, thread_id, user_input, answer, cards_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.ThreadID, turn.UserInput, turn.Answer,
		nullable(turn.CardsJSON), timestamp(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last n turns of a thread, oldest first.
func (s *Store) RecentTurns(ctx context.Context, userID, threadID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, thread_id, COALESCE(user_input, ''), COALESCE(answer, ''), COALESCE(cards_json, '')
		 FROM (
			SELECT * FROM turns WHERE user_id = ? AND thread_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`, userID, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.ThreadID, &t.UserInput, &t.Answer, &t.CardsJSON); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// EncodeCards serializes cards for turn persistence.
func EncodeCards(cards []domain.Card) (string, error) {
	if len(cards) == 0 {
		return "", nil
	}
	encoded := make([]json.RawMessage, 0, len(cards))
	for _, c := range cards {
		raw, err := domain.EncodeCard(c)
		if err != nil {
			return "", err
		}
		encoded = append(encoded, raw)
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
