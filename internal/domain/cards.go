package domain

import (
	"encoding/json"
	"time"
)

// Card is a typed, UI-renderable payload returned by an action alongside its
// natural-language result. Cards surface out of the dispatch loop immediately
// so downstream persistence can happen on explicit confirmation.
type Card interface {
	CardType() string
}

// Card type discriminators, as they appear on the wire.
const (
	CardPrioritization       = "prioritization"
	CardHabitReview          = "habit_review"
	CardHabitCompletion      = "habit_completion"
	CardHabitCompletionError = "habit_completion_error"
	CardOptimization         = "optimization"
)

// PrioritizationCard proposes a ranked focus set. Empty Items means "clear".
type PrioritizationCard struct {
	Items []GoalRef `json:"items"`
}

func (PrioritizationCard) CardType() string { return CardPrioritization }

// HabitReviewItem is one row of a habit checklist.
type HabitReviewItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Streak    int    `json:"streak"`
	Points    int    `json:"points"`
}

// HabitReviewCard lists habits for review, typically today's checklist.
type HabitReviewCard struct {
	Habits []HabitReviewItem `json:"habits"`
}

func (HabitReviewCard) CardType() string { return CardHabitReview }

// CompletedHabit describes a freshly logged completion.
type CompletedHabit struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completed_at"`
	Streak      int       `json:"streak"`
	RelatedGoal string    `json:"related_goal,omitempty"`
}

// HabitCompletionCard confirms a logged completion.
type HabitCompletionCard struct {
	Habit CompletedHabit `json:"habit"`
}

func (HabitCompletionCard) CardType() string { return CardHabitCompletion }

// HabitCompletionErrorCard reports a failed completion attempt (no match or
// same-day duplicate) together with the habits the user could have meant.
type HabitCompletionErrorCard struct {
	Reason       string   `json:"reason"`
	Message      string   `json:"message"`
	ActiveHabits []string `json:"active_habits"`
}

func (HabitCompletionErrorCard) CardType() string { return CardHabitCompletionError }

// OptimizationCard summarizes a bulk habit replacement under a goal.
type OptimizationCard struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

func (OptimizationCard) CardType() string { return CardOptimization }

// EncodeCard marshals a card with its type discriminator injected, producing
// the wire format {"type": ..., ...fields}.
func EncodeCard(c Card) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	typ, err := json.Marshal(c.CardType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}
