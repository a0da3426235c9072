package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum/internal/config"
	"momentum/internal/domain"
	"momentum/internal/focus"
	"momentum/internal/matcher"
	"momentum/internal/reader"
	"momentum/internal/resolver"
	"momentum/internal/store"
)

const testUser = "user-1"

func newFixture(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	actions := &Actions{
		Store:    s,
		Reader:   reader.New(s, cfg.Coach.HabitWindowDays),
		Resolver: resolver.New(nil, cfg.Coach.FocusLimit),
		Matcher:  matcher.New(s, cfg.Matcher),
		Focus:    focus.New(s, cfg.Coach.FocusLimit),
	}
	reg := NewRegistry()
	actions.RegisterAll(reg)
	return reg, s
}

func dispatch(t *testing.T, reg *Registry, name string, args map[string]any) *Result {
	t.Helper()
	res, err := reg.Dispatch(context.Background(), name, Request{
		UserID: testUser, ThreadID: "t1", Args: args,
	})
	require.NoError(t, err)
	return res
}

func TestRegistryValidation(t *testing.T) {
	reg, _ := newFixture(t)
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "bogus_tool", Request{UserID: testUser})
		assert.ErrorIs(t, err, ErrToolNotFound)
	})

	t.Run("missing required argument", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "get_context", Request{UserID: testUser, Args: map[string]any{}})
		assert.ErrorIs(t, err, ErrInvalidArgs)
	})

	t.Run("unknown argument", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "get_context", Request{UserID: testUser, Args: map[string]any{
			"scope": "goals", "bogus": 1,
		}})
		assert.ErrorIs(t, err, ErrInvalidArgs)
	})

	t.Run("enum violation", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "get_context", Request{UserID: testUser, Args: map[string]any{
			"scope": "everything",
		}})
		assert.ErrorIs(t, err, ErrInvalidArgs)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "get_context", Request{UserID: testUser, Args: map[string]any{
			"scope": 7,
		}})
		assert.ErrorIs(t, err, ErrInvalidArgs)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := reg.Register(&Tool{Name: "get_context", Execute: func(context.Context, Request) (*Result, error) {
			return &Result{}, nil
		}})
		assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
	})

	t.Run("all tools registered", func(t *testing.T) {
		names := make([]string, 0)
		for _, tool := range reg.All() {
			names = append(names, tool.Name)
		}
		assert.Equal(t, []string{
			"add_habit", "create_goal", "get_context", "log_habit_completion",
			"optimize_habits", "prioritize_goals", "remove_priority",
			"review_habits", "update_habit",
		}, names)
	})
}

func TestCreateGoalAndGetContext(t *testing.T) {
	reg, _ := newFixture(t)

	res := dispatch(t, reg, "create_goal", map[string]any{
		"title":       "Run a 10k",
		"description": "Race this fall",
		"life_metric": "Health",
		"term":        "medium",
		"target_date": "2026-11-01",
		"habits": []any{
			map[string]any{"name": "Morning run", "frequency": "daily", "target": float64(30)},
		},
	})
	assert.Contains(t, res.Text, "Run a 10k")

	view := dispatch(t, reg, "get_context", map[string]any{"scope": "goals"})
	var decoded struct {
		Goals []struct {
			Title      string `json:"title"`
			HabitCount int    `json:"habit_count"`
		} `json:"goals"`
	}
	require.NoError(t, json.Unmarshal([]byte(view.Text), &decoded))
	require.Len(t, decoded.Goals, 1)
	assert.Equal(t, "Run a 10k", decoded.Goals[0].Title)
	assert.Equal(t, 1, decoded.Goals[0].HabitCount)
}

func TestLogHabitCompletionFlow(t *testing.T) {
	reg, _ := newFixture(t)

	dispatch(t, reg, "create_goal", map[string]any{
		"title": "Health",
		"habits": []any{
			map[string]any{"name": "Morning run", "target": float64(30)},
		},
	})

	t.Run("match and log", func(t *testing.T) {
		res := dispatch(t, reg, "log_habit_completion", map[string]any{
			"habit_description": "went for my morning run",
			"notes":             "5k easy",
		})
		card, ok := res.Card.(domain.HabitCompletionCard)
		require.True(t, ok)
		assert.Equal(t, "Morning run", card.Habit.Title)
		assert.Equal(t, 1, card.Habit.Streak)
		assert.Equal(t, "Health", card.Habit.RelatedGoal)
	})

	t.Run("same day duplicate is a distinguishable result, not an error", func(t *testing.T) {
		res := dispatch(t, reg, "log_habit_completion", map[string]any{
			"habit_description": "morning run",
		})
		card, ok := res.Card.(domain.HabitCompletionErrorCard)
		require.True(t, ok)
		assert.Equal(t, "already_completed", card.Reason)
		assert.Contains(t, res.Text, "already completed")
	})

	t.Run("no match returns error card with active titles", func(t *testing.T) {
		res := dispatch(t, reg, "log_habit_completion", map[string]any{
			"habit_description": "polished the silverware",
		})
		card, ok := res.Card.(domain.HabitCompletionErrorCard)
		require.True(t, ok)
		assert.Equal(t, "no_match", card.Reason)
		assert.Equal(t, []string{"Morning run"}, card.ActiveHabits)
	})
}

func TestPrioritizeGoals(t *testing.T) {
	reg, s := newFixture(t)

	for _, title := range []string{"Ship landing page", "Run 5k", "Save $500"} {
		dispatch(t, reg, "create_goal", map[string]any{
			"title": title,
			"habits": []any{
				map[string]any{"name": "Work on " + title, "target": float64(10)},
			},
		})
	}

	t.Run("proposal does not persist", func(t *testing.T) {
		res := dispatch(t, reg, "prioritize_goals", map[string]any{
			"reasoning": "1. Run 5k, 2. Ship landing page",
		})
		card, ok := res.Card.(domain.PrioritizationCard)
		require.True(t, ok)
		require.NotEmpty(t, card.Items)
		assert.Equal(t, "Run 5k", card.Items[0].Title)

		snap, err := s.LatestPrioritySnapshot(context.Background(), testUser)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("a confirm argument is rejected and persists nothing", func(t *testing.T) {
		_, err := reg.Dispatch(context.Background(), "prioritize_goals", Request{
			UserID: testUser,
			Args: map[string]any{
				"reasoning": "1. Run 5k, 2. Ship landing page",
				"confirm":   true,
			},
		})
		require.ErrorIs(t, err, ErrInvalidArgs)

		snap, err := s.LatestPrioritySnapshot(context.Background(), testUser)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("adoption goes through the focus store", func(t *testing.T) {
		res := dispatch(t, reg, "prioritize_goals", map[string]any{
			"reasoning": "1. Run 5k",
		})
		card, ok := res.Card.(domain.PrioritizationCard)
		require.True(t, ok)
		require.NotEmpty(t, card.Items)

		// The app-side confirmation endpoint writes the snapshot.
		f := focus.New(s, 3)
		_, err := f.Apply(context.Background(), testUser, domain.SnapshotItems(card.Items), "t1")
		require.NoError(t, err)

		snap, err := s.LatestPrioritySnapshot(context.Background(), testUser)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, card.Items[0].GoalInstanceID, snap.Items[0].GoalInstanceID)
	})

	t.Run("remove_priority clears", func(t *testing.T) {
		res := dispatch(t, reg, "remove_priority", nil)
		card, ok := res.Card.(domain.PrioritizationCard)
		require.True(t, ok)
		assert.Empty(t, card.Items)

		snap, err := s.LatestPrioritySnapshot(context.Background(), testUser)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Empty(t, snap.Items)
	})
}

func TestUpdateHabit(t *testing.T) {
	reg, s := newFixture(t)

	dispatch(t, reg, "create_goal", map[string]any{
		"title": "Health",
		"habits": []any{
			map[string]any{"name": "Morning run", "target": float64(30)},
		},
	})
	records, err := s.ListActiveHabits(context.Background(), testUser)
	require.NoError(t, err)
	habitID := records[0].Instance.ID

	t.Run("non-uuid id rejected with re-fetch instruction", func(t *testing.T) {
		_, err := reg.Dispatch(context.Background(), "update_habit", Request{
			UserID: testUser,
			Args:   map[string]any{"habit_id": "Morning run", "action": "deactivate"},
		})
		require.ErrorIs(t, err, ErrInvalidArgs)
		assert.Contains(t, err.Error(), "get_context")
	})

	t.Run("set_target", func(t *testing.T) {
		dispatch(t, reg, "update_habit", map[string]any{
			"habit_id": habitID, "action": "set_target", "value": float64(60),
		})
		rec, err := s.GetHabitInstance(context.Background(), habitID)
		require.NoError(t, err)
		assert.Equal(t, 60, rec.Instance.Target)
	})

	t.Run("deactivate then activate", func(t *testing.T) {
		dispatch(t, reg, "update_habit", map[string]any{
			"habit_id": habitID, "action": "deactivate",
		})
		active, err := s.ListActiveHabits(context.Background(), testUser)
		require.NoError(t, err)
		assert.Empty(t, active)

		dispatch(t, reg, "update_habit", map[string]any{
			"habit_id": habitID, "action": "activate",
		})
		active, err = s.ListActiveHabits(context.Background(), testUser)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})
}

func TestMutationsRejectForeignIDs(t *testing.T) {
	reg, s := newFixture(t)
	ctx := context.Background()

	dispatch(t, reg, "create_goal", map[string]any{
		"title": "Health",
		"habits": []any{
			map[string]any{"name": "Morning run", "target": float64(30)},
		},
	})
	goals, err := s.ListActiveGoals(ctx, testUser)
	require.NoError(t, err)
	goalID := goals[0].Instance.ID
	records, err := s.ListActiveHabits(ctx, testUser)
	require.NoError(t, err)
	habitID := records[0].Instance.ID

	t.Run("update_habit", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "update_habit", Request{
			UserID: "user-2",
			Args:   map[string]any{"habit_id": habitID, "action": "deactivate"},
		})
		require.ErrorIs(t, err, store.ErrNotFound)

		active, err := s.ListActiveHabits(ctx, testUser)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("add_habit", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "add_habit", Request{
			UserID: "user-2",
			Args:   map[string]any{"goal_id": goalID, "name": "Squats"},
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("optimize_habits", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "optimize_habits", Request{
			UserID: "user-2",
			Args: map[string]any{
				"goal_id": goalID,
				"habits":  []any{map[string]any{"name": "Squats"}},
			},
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("goal-scoped context read sees nothing", func(t *testing.T) {
		res, err := reg.Dispatch(ctx, "get_context", Request{
			UserID: "user-2",
			Args:   map[string]any{"scope": "habits", "goal_id": goalID},
		})
		require.NoError(t, err)
		var decoded struct {
			Habits []struct {
				Name string `json:"name"`
			} `json:"habits"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.Text), &decoded))
		assert.Empty(t, decoded.Habits)
	})
}

func TestOptimizeHabitsPreservesProgress(t *testing.T) {
	reg, s := newFixture(t)
	ctx := context.Background()

	dispatch(t, reg, "create_goal", map[string]any{
		"title": "Run a 10k",
		"habits": []any{
			map[string]any{"name": "Morning run", "target": float64(10)},
		},
	})
	goals, err := s.ListActiveGoals(ctx, testUser)
	require.NoError(t, err)
	goalID := goals[0].Instance.ID
	require.NoError(t, s.SetManualOffset(ctx, goalID, 25))

	res := dispatch(t, reg, "optimize_habits", map[string]any{
		"goal_id": goalID,
		"habits": []any{
			map[string]any{"name": "Interval training", "frequency": "weekly", "per_period": float64(2), "target": float64(16)},
		},
	})
	card, ok := res.Card.(domain.OptimizationCard)
	require.True(t, ok)
	assert.Equal(t, []string{"Interval training"}, card.Recommendations)

	goal, err := s.GetGoal(ctx, goalID)
	require.NoError(t, err)
	// Old combined progress was offset-only 25; new habits derive 0.
	assert.Equal(t, 25, goal.Instance.ManualOffset)

	t.Run("empty replacement rejected", func(t *testing.T) {
		_, err := reg.Dispatch(ctx, "optimize_habits", Request{
			UserID: testUser,
			Args:   map[string]any{"goal_id": goalID, "habits": []any{}},
		})
		assert.ErrorIs(t, err, ErrInvalidArgs)
	})
}

func TestReviewHabits(t *testing.T) {
	reg, s := newFixture(t)
	ctx := context.Background()

	dispatch(t, reg, "create_goal", map[string]any{
		"title": "Health",
		"habits": []any{
			map[string]any{"name": "Morning run", "target": float64(30)},
			map[string]any{"name": "Stretching", "target": float64(30)},
		},
	})
	records, err := s.ListActiveHabits(ctx, testUser)
	require.NoError(t, err)
	_, err = s.LogCompletion(ctx, records[0].Instance.ID, testUser, "", time.Time{})
	require.NoError(t, err)

	res := dispatch(t, reg, "review_habits", nil)
	card, ok := res.Card.(domain.HabitReviewCard)
	require.True(t, ok)
	require.Len(t, card.Habits, 2)

	completed := 0
	for _, h := range card.Habits {
		if h.Completed {
			completed++
			assert.Equal(t, 1, h.Streak)
		}
	}
	assert.Equal(t, 1, completed)
}
