// Package domain defines the core entities of the coaching engine:
// goal definitions and instances, habit definitions and instances,
// completion events, priority snapshots, and the structured cards
// actions return for UI rendering.
package domain

import "time"

// GoalStatus tracks the lifecycle of a GoalInstance.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusArchived  GoalStatus = "archived"
)

// TermBucket classifies a goal by time horizon.
type TermBucket string

const (
	TermShort  TermBucket = "short"
	TermMedium TermBucket = "medium"
	TermLong   TermBucket = "long"
)

// Frequency is a habit's repetition period.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// LifeMetric is a category a goal belongs to (health, career, finances...).
type LifeMetric struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GoalDefinition is the stable identity for a goal concept. Definitions are
// never deleted, only archived.
type GoalDefinition struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	LifeMetricID string     `json:"life_metric_id,omitempty"`
	Term         TermBucket `json:"term,omitempty"`
	Archived     bool       `json:"archived"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GoalInstance is one tracked run of a GoalDefinition. Progress is derived;
// only the manual offset is stored.
type GoalInstance struct {
	ID           string     `json:"id"`
	DefinitionID string     `json:"definition_id"`
	UserID       string     `json:"user_id"`
	Status       GoalStatus `json:"status"`
	TargetValue  int        `json:"target_value,omitempty"`
	ManualOffset int        `json:"manual_offset"`
	Streak       int        `json:"streak"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HabitDefinition is a reusable habit concept, independent of any goal.
type HabitDefinition struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// HabitInstance links one HabitDefinition to one GoalInstance. At most one
// instance exists per (definition, goal instance) pair.
type HabitInstance struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definition_id"`
	GoalID       string    `json:"goal_instance_id"`
	Target       int       `json:"target"`
	Current      int       `json:"current"`
	Frequency    Frequency `json:"frequency"`
	PerPeriod    int       `json:"per_period"`
	CreatedAt    time.Time `json:"created_at"`
}

// HabitCompletion is an immutable event recording one occurrence of a habit.
// Day is the completion's calendar day (YYYY-MM-DD, UTC); the store enforces
// at most one event per (habit instance, day).
type HabitCompletion struct {
	ID              string    `json:"id"`
	HabitInstanceID string    `json:"habit_instance_id"`
	UserID          string    `json:"user_id"`
	Note            string    `json:"note,omitempty"`
	Day             string    `json:"day"`
	CompletedAt     time.Time `json:"completed_at"`
}

// PriorityItem is one ranked entry in a priority snapshot.
type PriorityItem struct {
	GoalInstanceID string `json:"goal_instance_id"`
	Rank           int    `json:"rank"`
	Reason         string `json:"reason,omitempty"`
}

// PrioritySnapshot is an immutable, timestamped focus set. The current focus
// is always the most recent snapshot; snapshots are superseded, never edited.
// An empty Items list is a valid cleared focus.
type PrioritySnapshot struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Items          []PriorityItem `json:"items"`
	SourceThreadID string         `json:"source_thread_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Insight is a short observation about the user. Read-only for this engine.
type Insight struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Votes      int       `json:"votes"`
	CreatedAt  time.Time `json:"created_at"`
}

// GoalRef is a resolved, display-ready reference to a goal instance, as
// produced by the title resolver and rendered in prioritization cards.
type GoalRef struct {
	GoalInstanceID string     `json:"goal_instance_id"`
	Rank           int        `json:"rank"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	TargetDate     *time.Time `json:"target_date,omitempty"`
	LifeMetric     string     `json:"life_metric,omitempty"`
}

// SnapshotItems reduces resolved refs to the persistence-safe fields a
// priority snapshot stores.
func SnapshotItems(refs []GoalRef) []PriorityItem {
	items := make([]PriorityItem, 0, len(refs))
	for _, r := range refs {
		items = append(items, PriorityItem{GoalInstanceID: r.GoalInstanceID, Rank: r.Rank})
	}
	return items
}
