// Package reader produces read-only scoped views of a user's goals, habits,
// insights, and life-metric categories. Both the agent's get_context action
// and the resolver feed from here. Reads are pure except for one lazy,
// one-time side effect: seeding default categories for a user who has none.
package reader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"momentum/internal/domain"
	"momentum/internal/logging"
	"momentum/internal/progress"
	"momentum/internal/store"
)

// Scope selects which slice of state to read.
type Scope string

const (
	ScopeFocus      Scope = "focus"
	ScopeGoals      Scope = "goals"
	ScopeHabits     Scope = "habits"
	ScopeInsights   Scope = "insights"
	ScopeCategories Scope = "categories"
)

// ValidScope reports whether s names a readable scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeFocus, ScopeGoals, ScopeHabits, ScopeInsights, ScopeCategories:
		return true
	}
	return false
}

// Filters narrows a read.
type Filters struct {
	// GoalID narrows the habits scope to one goal's habits.
	GoalID string
	// IncludeEmpty includes active goals with zero linked habits, which are
	// otherwise excluded from the agent's candidate pool.
	IncludeEmpty bool
	// Limit caps insights; 0 means the default.
	Limit int
}

// GoalView is one goal with its derived progress.
type GoalView struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      domain.GoalStatus `json:"status"`
	Progress    int               `json:"progress"`
	Streak      int               `json:"streak"`
	TargetDate  *time.Time        `json:"target_date,omitempty"`
	LifeMetric  string            `json:"life_metric,omitempty"`
	HabitCount  int               `json:"habit_count"`
	CreatedAt   time.Time         `json:"created_at"`
}

// HabitView is one habit instance with rates derived from the completion
// log over the trailing window, never from cached counters.
type HabitView struct {
	InstanceID     string           `json:"instance_id"`
	DefinitionID   string           `json:"definition_id"`
	GoalID         string           `json:"goal_instance_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Target         int              `json:"target"`
	Current        int              `json:"current"`
	Frequency      domain.Frequency `json:"frequency"`
	PerPeriod      int              `json:"per_period"`
	CompletionRate float64          `json:"completion_rate"`
	Streak         int              `json:"streak"`
	CompletedToday bool             `json:"completed_today"`
}

// FocusItem is one ranked focus entry hydrated with current goal state.
type FocusItem struct {
	domain.GoalRef
	Progress int `json:"progress"`
}

// FocusView is the current focus set.
type FocusView struct {
	Items     []FocusItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}

// View is the result of one scoped read. Only the section matching the
// requested scope is populated.
type View struct {
	Scope      Scope               `json:"scope"`
	Focus      *FocusView          `json:"focus,omitempty"`
	Goals      []GoalView          `json:"goals,omitempty"`
	Habits     []HabitView         `json:"habits,omitempty"`
	Insights   []domain.Insight    `json:"insights,omitempty"`
	Categories []domain.LifeMetric `json:"categories,omitempty"`
}

// Reader serves scoped views from the store.
type Reader struct {
	store      *store.Store
	windowDays int
	seedGroup  singleflight.Group
}

// New creates a reader. windowDays is the trailing window for completion
// rates and streaks.
func New(s *store.Store, windowDays int) *Reader {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Reader{store: s, windowDays: windowDays}
}

// Read produces a scoped view of the user's state.
func (r *Reader) Read(ctx context.Context, userID string, scope Scope, f Filters) (*View, error) {
	timer := logging.StartTimer(logging.CategoryReader, "Read."+string(scope))
	defer timer.Stop()

	view := &View{Scope: scope}
	switch scope {
	case ScopeFocus:
		fv, err := r.readFocus(ctx, userID)
		if err != nil {
			return nil, err
		}
		view.Focus = fv

	case ScopeGoals:
		goals, err := r.readGoals(ctx, userID, f)
		if err != nil {
			return nil, err
		}
		view.Goals = goals

	case ScopeHabits:
		habits, err := r.readHabits(ctx, userID, f)
		if err != nil {
			return nil, err
		}
		view.Habits = habits

	case ScopeInsights:
		insights, err := r.store.ListInsights(ctx, userID, f.Limit)
		if err != nil {
			return nil, err
		}
		view.Insights = insights

	case ScopeCategories:
		categories, err := r.readCategories(ctx, userID)
		if err != nil {
			return nil, err
		}
		view.Categories = categories

	default:
		return nil, fmt.Errorf("unknown scope: %s", scope)
	}
	return view, nil
}

func (r *Reader) readGoals(ctx context.Context, userID string, f Filters) ([]GoalView, error) {
	var (
		records []store.GoalRecord
		err     error
	)
	if f.IncludeEmpty {
		records, err = r.store.ListActiveGoals(ctx, userID)
	} else {
		records, err = r.store.ListActiveGoalsWithHabits(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	views := make([]GoalView, 0, len(records))
	for _, rec := range records {
		gv, err := r.goalView(ctx, rec)
		if err != nil {
			return nil, err
		}
		views = append(views, *gv)
	}
	return views, nil
}

func (r *Reader) goalView(ctx context.Context, rec store.GoalRecord) (*GoalView, error) {
	instances, err := r.store.ListHabitInstancesForGoal(ctx, rec.Instance.UserID, rec.Instance.ID)
	if err != nil {
		return nil, err
	}
	return &GoalView{
		ID:          rec.Instance.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Status:      rec.Instance.Status,
		Progress:    progress.Goal(instances, rec.Instance.ManualOffset, rec.Instance.Status),
		Streak:      rec.Instance.Streak,
		TargetDate:  rec.Instance.TargetDate,
		LifeMetric:  rec.LifeMetric,
		HabitCount:  len(instances),
		CreatedAt:   rec.Instance.CreatedAt,
	}, nil
}

func (r *Reader) readHabits(ctx context.Context, userID string, f Filters) ([]HabitView, error) {
	var (
		records []store.HabitRecord
		err     error
	)
	if f.GoalID != "" {
		records, err = r.store.ListHabitsByGoal(ctx, userID, f.GoalID)
	} else {
		records, err = r.store.ListActiveHabits(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	today := r.store.Today()
	sinceDay := windowStart(today, r.windowDays)

	views := make([]HabitView, 0, len(records))
	for _, rec := range records {
		count, err := r.store.CountCompletionsSince(ctx, rec.Instance.ID, sinceDay)
		if err != nil {
			return nil, err
		}
		streak, err := r.store.HabitStreak(ctx, rec.Instance.ID)
		if err != nil {
			return nil, err
		}
		completedToday, err := r.store.CompletedOnDay(ctx, rec.Instance.ID, today)
		if err != nil {
			return nil, err
		}
		views = append(views, HabitView{
			InstanceID:     rec.Instance.ID,
			DefinitionID:   rec.Definition.ID,
			GoalID:         rec.Instance.GoalID,
			Name:           rec.Definition.Name,
			Description:    rec.Definition.Description,
			Target:         rec.Instance.Target,
			Current:        rec.Instance.Current,
			Frequency:      rec.Instance.Frequency,
			PerPeriod:      rec.Instance.PerPeriod,
			CompletionRate: completionRate(count, rec.Instance.Frequency, rec.Instance.PerPeriod, r.windowDays),
			Streak:         streak,
			CompletedToday: completedToday,
		})
	}
	return views, nil
}

func (r *Reader) readFocus(ctx context.Context, userID string) (*FocusView, error) {
	snap, err := r.store.LatestPrioritySnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	fv := &FocusView{Items: []FocusItem{}}
	if snap == nil {
		return fv, nil
	}
	fv.CreatedAt = snap.CreatedAt

	for _, item := range snap.Items {
		rec, err := r.store.GetGoal(ctx, item.GoalInstanceID)
		if err != nil {
			// Goal may have been archived since the snapshot was taken.
			logging.Get(logging.CategoryReader).Debug("Focus goal %s unavailable: %v", item.GoalInstanceID, err)
			continue
		}
		gv, err := r.goalView(ctx, *rec)
		if err != nil {
			return nil, err
		}
		fv.Items = append(fv.Items, FocusItem{
			GoalRef: domain.GoalRef{
				GoalInstanceID: rec.Instance.ID,
				Rank:           item.Rank,
				Title:          rec.Title,
				Description:    rec.Description,
				TargetDate:     rec.Instance.TargetDate,
				LifeMetric:     rec.LifeMetric,
			},
			Progress: gv.Progress,
		})
	}
	return fv, nil
}

// readCategories lists the user's life metrics, lazily seeding the defaults
// exactly once for a user with none. The singleflight group collapses
// concurrent first reads into one seeding pass.
func (r *Reader) readCategories(ctx context.Context, userID string) ([]domain.LifeMetric, error) {
	metrics, err := r.store.ListLifeMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		return metrics, nil
	}

	v, err, _ := r.seedGroup.Do(userID, func() (interface{}, error) {
		return r.store.SeedDefaultLifeMetrics(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.LifeMetric), nil
}

// completionRate compares logged completions against the expected count for
// the frequency over the window, clamped to [0,1].
func completionRate(actual int, freq domain.Frequency, perPeriod, windowDays int) float64 {
	if perPeriod <= 0 {
		perPeriod = 1
	}
	var expected float64
	switch freq {
	case domain.FrequencyWeekly:
		expected = float64(windowDays) / 7 * float64(perPeriod)
	case domain.FrequencyMonthly:
		expected = float64(windowDays) / 30 * float64(perPeriod)
	default:
		expected = float64(windowDays) * float64(perPeriod)
	}
	if expected <= 0 {
		return 0
	}
	rate := float64(actual) / expected
	if rate > 1 {
		return 1
	}
	return rate
}

// windowStart returns the day windowDays before today (inclusive bound).
func windowStart(today string, windowDays int) string {
	t, err := time.Parse("2006-01-02", today)
	if err != nil {
		return today
	}
	return t.AddDate(0, 0, -windowDays+1).Format("2006-01-02")
}
