package reader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum/internal/domain"
	"momentum/internal/store"
)

const testUser = "user-1"

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addGoal(t *testing.T, s *store.Store, title string) string {
	t.Helper()
	ctx := context.Background()
	def := domain.GoalDefinition{UserID: testUser, Title: title}
	require.NoError(t, s.CreateGoalDefinition(ctx, &def))
	inst := domain.GoalInstance{DefinitionID: def.ID, UserID: testUser}
	require.NoError(t, s.CreateGoalInstance(ctx, &inst))
	return inst.ID
}

func addHabit(t *testing.T, s *store.Store, goalID, name string, target int, freq domain.Frequency) string {
	t.Helper()
	ctx := context.Background()
	def := domain.HabitDefinition{UserID: testUser, Name: name, Active: true}
	require.NoError(t, s.CreateHabitDefinition(ctx, &def))
	inst := domain.HabitInstance{DefinitionID: def.ID, GoalID: goalID, Target: target, Frequency: freq}
	require.NoError(t, s.CreateHabitInstance(ctx, &inst))
	return inst.ID
}

func TestReadGoalsExcludesEmptyByDefault(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)
	ctx := context.Background()

	withHabits := addGoal(t, s, "Has habits")
	addGoal(t, s, "Empty goal")
	addHabit(t, s, withHabits, "Morning run", 30, domain.FrequencyDaily)

	view, err := r.Read(ctx, testUser, ScopeGoals, Filters{})
	require.NoError(t, err)
	require.Len(t, view.Goals, 1)
	assert.Equal(t, "Has habits", view.Goals[0].Title)

	all, err := r.Read(ctx, testUser, ScopeGoals, Filters{IncludeEmpty: true})
	require.NoError(t, err)
	assert.Len(t, all.Goals, 2)
}

func TestReadGoalsComputesProgress(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)
	ctx := context.Background()

	goalID := addGoal(t, s, "Run a 10k")
	habitID := addHabit(t, s, goalID, "Morning run", 10, domain.FrequencyDaily)

	at := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	for day := 0; day < 5; day++ {
		_, err := s.LogCompletion(ctx, habitID, testUser, "", at.AddDate(0, 0, day))
		require.NoError(t, err)
	}
	require.NoError(t, s.SetManualOffset(ctx, goalID, 10))

	view, err := r.Read(ctx, testUser, ScopeGoals, Filters{})
	require.NoError(t, err)
	require.Len(t, view.Goals, 1)
	// 5/10 completions -> 50 derived, +10 offset.
	assert.Equal(t, 60, view.Goals[0].Progress)
	assert.Equal(t, 1, view.Goals[0].HabitCount)
}

func TestReadHabitsWindowStats(t *testing.T) {
	s := newStore(t)
	s.SetClock(func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	})
	r := New(s, 10)
	ctx := context.Background()

	goalID := addGoal(t, s, "Health")
	habitID := addHabit(t, s, goalID, "Morning run", 30, domain.FrequencyDaily)

	// 5 completions inside the 10-day window, ending today.
	for day := 0; day < 5; day++ {
		at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC).AddDate(0, 0, -day)
		_, err := s.LogCompletion(ctx, habitID, testUser, "", at)
		require.NoError(t, err)
	}

	view, err := r.Read(ctx, testUser, ScopeHabits, Filters{})
	require.NoError(t, err)
	require.Len(t, view.Habits, 1)

	h := view.Habits[0]
	assert.InDelta(t, 0.5, h.CompletionRate, 0.001)
	assert.Equal(t, 5, h.Streak)
	assert.True(t, h.CompletedToday)
	assert.Equal(t, 5, h.Current)
}

func TestReadHabitsScopedToGoal(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)
	ctx := context.Background()

	health := addGoal(t, s, "Health")
	career := addGoal(t, s, "Career")
	addHabit(t, s, health, "Morning run", 30, domain.FrequencyDaily)
	addHabit(t, s, career, "Deep work", 20, domain.FrequencyDaily)

	view, err := r.Read(ctx, testUser, ScopeHabits, Filters{GoalID: career})
	require.NoError(t, err)
	require.Len(t, view.Habits, 1)
	assert.Equal(t, "Deep work", view.Habits[0].Name)
}

func TestReadFocusHydratesGoals(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)
	ctx := context.Background()

	goalID := addGoal(t, s, "Run a 10k")
	addHabit(t, s, goalID, "Morning run", 30, domain.FrequencyDaily)
	_, err := s.InsertPrioritySnapshot(ctx, testUser,
		[]domain.PriorityItem{{GoalInstanceID: goalID, Rank: 1}}, "")
	require.NoError(t, err)

	view, err := r.Read(ctx, testUser, ScopeFocus, Filters{})
	require.NoError(t, err)
	require.Len(t, view.Focus.Items, 1)
	assert.Equal(t, "Run a 10k", view.Focus.Items[0].Title)
	assert.Equal(t, 1, view.Focus.Items[0].Rank)
}

func TestReadFocusEmptyForNewUser(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)

	view, err := r.Read(context.Background(), testUser, ScopeFocus, Filters{})
	require.NoError(t, err)
	require.NotNil(t, view.Focus)
	assert.Empty(t, view.Focus.Items)
}

func TestReadCategoriesSeedsDefaultsOnce(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)
	ctx := context.Background()

	first, err := r.Read(ctx, testUser, ScopeCategories, Filters{})
	require.NoError(t, err)
	require.Len(t, first.Categories, 5)

	second, err := r.Read(ctx, testUser, ScopeCategories, Filters{})
	require.NoError(t, err)
	assert.Len(t, second.Categories, 5)

	names := make([]string, 0, len(first.Categories))
	for _, c := range first.Categories {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "Health")
	assert.Contains(t, names, "Career")
}

func TestReadUnknownScope(t *testing.T) {
	s := newStore(t)
	r := New(s, 30)

	_, err := r.Read(context.Background(), testUser, Scope("bogus"), Filters{})
	assert.Error(t, err)
	assert.False(t, ValidScope("bogus"))
	assert.True(t, ValidScope(ScopeGoals))
}

func TestCompletionRate(t *testing.T) {
	cases := []struct {
		name   string
		actual int
		freq   domain.Frequency
		per    int
		window int
		want   float64
	}{
		{"daily half", 15, domain.FrequencyDaily, 1, 30, 0.5},
		{"daily capped", 40, domain.FrequencyDaily, 1, 30, 1},
		{"weekly", 2, domain.FrequencyWeekly, 1, 28, 0.5},
		{"monthly", 1, domain.FrequencyMonthly, 1, 30, 1},
		{"per period scales expectation", 15, domain.FrequencyDaily, 2, 30, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := completionRate(tc.actual, tc.freq, tc.per, tc.window)
			assert.InDelta(t, tc.want, got, 0.001)
		})
	}
}
