package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum/internal/domain"
	"momentum/internal/progress"
)

const testUser = "user-1"

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addGoal(t *testing.T, s *Store, title string) string {
	t.Helper()
	ctx := context.Background()
	def := domain.GoalDefinition{UserID: testUser, Title: title}
	require.NoError(t, s.CreateGoalDefinition(ctx, &def))
	inst := domain.GoalInstance{DefinitionID: def.ID, UserID: testUser}
	require.NoError(t, s.CreateGoalInstance(ctx, &inst))
	return inst.ID
}

func addHabit(t *testing.T, s *Store, goalID, name string, target int) string {
	t.Helper()
	ctx := context.Background()
	def := domain.HabitDefinition{UserID: testUser, Name: name, Active: true}
	require.NoError(t, s.CreateHabitDefinition(ctx, &def))
	inst := domain.HabitInstance{DefinitionID: def.ID, GoalID: goalID, Target: target}
	require.NoError(t, s.CreateHabitInstance(ctx, &inst))
	return inst.ID
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	addGoal(t, s1, "Persisted goal")
	require.NoError(t, s1.Close())

	// Reopening runs schema creation and migrations again over existing data.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	goals, err := s2.ListActiveGoals(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "Persisted goal", goals[0].Title)
}

func TestDuplicateCompletionSameDay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	habitID := addHabit(t, s, goalID, "Morning run", 30)

	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	first, err := s.LogCompletion(ctx, habitID, testUser, "felt good", at)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30", first.Completion.Day)
	assert.Equal(t, 1, first.HabitStreak)

	// Later the same calendar day: conflict, and no counter double-increment.
	_, err = s.LogCompletion(ctx, habitID, testUser, "", at.Add(6*time.Hour))
	require.ErrorIs(t, err, ErrDuplicateCompletion)

	rec, err := s.GetHabitInstance(ctx, habitID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Instance.Current)

	// Next day logs fine and extends the streak.
	second, err := s.LogCompletion(ctx, habitID, testUser, "", at.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, second.HabitStreak)
}

func TestLogCompletionChecksOwnership(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	habitID := addHabit(t, s, goalID, "Morning run", 30)

	_, err := s.LogCompletion(ctx, habitID, "someone-else", "", time.Time{})
	require.ErrorIs(t, err, ErrNotFound)

	// Nothing was written for the real owner.
	rec, err := s.GetHabitInstance(ctx, habitID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Instance.Current)
}

func TestListHabitsByGoalScopedToUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	addHabit(t, s, goalID, "Morning run", 30)

	records, err := s.ListHabitsByGoal(ctx, testUser, goalID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// The same goal id under a different user yields nothing.
	records, err = s.ListHabitsByGoal(ctx, "someone-else", goalID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStreakBreaksOnGap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	habitID := addHabit(t, s, goalID, "Morning run", 30)

	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.LogCompletion(ctx, habitID, testUser, "", at)
	require.NoError(t, err)
	_, err = s.LogCompletion(ctx, habitID, testUser, "", at.AddDate(0, 0, 1))
	require.NoError(t, err)

	// Skip a day.
	res, err := s.LogCompletion(ctx, habitID, testUser, "", at.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.HabitStreak)
}

func TestGoalStreakSpansHabits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	runID := addHabit(t, s, goalID, "Morning run", 30)
	stretchID := addHabit(t, s, goalID, "Stretching", 30)

	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.LogCompletion(ctx, runID, testUser, "", at)
	require.NoError(t, err)
	// Different habit the next day still extends the goal streak.
	res, err := s.LogCompletion(ctx, stretchID, testUser, "", at.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.GoalStreak)

	goal, err := s.GetGoal(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, 2, goal.Instance.Streak)
}

func TestListActiveGoalsWithHabits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	withHabits := addGoal(t, s, "Has habits")
	addGoal(t, s, "No habits yet")
	addHabit(t, s, withHabits, "Something daily", 10)

	all, err := s.ListActiveGoals(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	actionable, err := s.ListActiveGoalsWithHabits(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, actionable, 1)
	assert.Equal(t, "Has habits", actionable[0].Title)
}

func TestHabitAlreadyLinked(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")

	def := domain.HabitDefinition{UserID: testUser, Name: "Morning run", Active: true}
	require.NoError(t, s.CreateHabitDefinition(ctx, &def))
	first := domain.HabitInstance{DefinitionID: def.ID, GoalID: goalID}
	require.NoError(t, s.CreateHabitInstance(ctx, &first))

	dup := domain.HabitInstance{DefinitionID: def.ID, GoalID: goalID}
	err := s.CreateHabitInstance(ctx, &dup)
	assert.ErrorIs(t, err, ErrHabitAlreadyLinked)
}

func TestReplaceGoalHabitsPreservesProgress(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Run a 10k")

	runID := addHabit(t, s, goalID, "Morning run", 30)
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for day := 0; day < 15; day++ {
		_, err := s.LogCompletion(ctx, runID, testUser, "", at.AddDate(0, 0, day))
		require.NoError(t, err)
	}
	require.NoError(t, s.SetManualOffset(ctx, goalID, 5))

	before, err := s.ListHabitInstancesForGoal(ctx, testUser, goalID)
	require.NoError(t, err)
	goal, err := s.GetGoal(ctx, goalID)
	require.NoError(t, err)
	progressBefore := progress.Goal(before, goal.Instance.ManualOffset, goal.Instance.Status)

	replacement, err := s.ReplaceGoalHabits(ctx, testUser, goalID, []HabitSpec{
		{Name: "Interval training", Frequency: domain.FrequencyWeekly, PerPeriod: 2, Target: 16},
		{Name: "Long run", Frequency: domain.FrequencyWeekly, PerPeriod: 1, Target: 8},
	}, progress.PreservingOffset)
	require.NoError(t, err)
	require.Len(t, replacement, 2)

	after, err := s.ListHabitInstancesForGoal(ctx, testUser, goalID)
	require.NoError(t, err)
	goalAfter, err := s.GetGoal(ctx, goalID)
	require.NoError(t, err)
	progressAfter := progress.Goal(after, goalAfter.Instance.ManualOffset, goalAfter.Instance.Status)

	assert.Equal(t, progressBefore, progressAfter)
	for _, inst := range after {
		assert.Equal(t, 0, inst.Current)
	}

	// Completion events for the removed habit remain queryable.
	n, err := s.CountCompletionsSince(ctx, runID, "2026-08-01")
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestReplaceGoalHabitsReusesDefinitionByName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	goalID := addGoal(t, s, "Health")
	addHabit(t, s, goalID, "Morning run", 30)

	replacement, err := s.ReplaceGoalHabits(ctx, testUser, goalID, []HabitSpec{
		{Name: "Morning run", Frequency: domain.FrequencyDaily, PerPeriod: 1, Target: 60},
	}, nil)
	require.NoError(t, err)
	require.Len(t, replacement, 1)

	records, err := s.ListHabitsByGoal(ctx, testUser, goalID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 60, records[0].Instance.Target)

	// Only one definition with that name exists.
	var count int
	err = s.DB().QueryRow(
		`SELECT COUNT(*) FROM habit_definitions WHERE user_id = ? AND name = ?`,
		testUser, "Morning run").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrioritySnapshots(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	t.Run("none yet", func(t *testing.T) {
		snap, err := s.LatestPrioritySnapshot(ctx, testUser)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	items := []domain.PriorityItem{
		{GoalInstanceID: "g1", Rank: 1},
		{GoalInstanceID: "g2", Rank: 2},
	}
	first, err := s.InsertPrioritySnapshot(ctx, testUser, items, "thread-1")
	require.NoError(t, err)

	t.Run("latest returns inserted items", func(t *testing.T) {
		snap, err := s.LatestPrioritySnapshot(ctx, testUser)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, first.ID, snap.ID)
		if diff := cmp.Diff(items, snap.Items); diff != "" {
			t.Errorf("items mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("newer snapshot supersedes", func(t *testing.T) {
		_, err := s.InsertPrioritySnapshot(ctx, testUser,
			[]domain.PriorityItem{{GoalInstanceID: "g3", Rank: 1}}, "thread-1")
		require.NoError(t, err)

		snap, err := s.LatestPrioritySnapshot(ctx, testUser)
		require.NoError(t, err)
		require.Len(t, snap.Items, 1)
		assert.Equal(t, "g3", snap.Items[0].GoalInstanceID)
	})

	t.Run("empty snapshot clears without deleting history", func(t *testing.T) {
		_, err := s.InsertPrioritySnapshot(ctx, testUser, nil, "thread-1")
		require.NoError(t, err)

		snap, err := s.LatestPrioritySnapshot(ctx, testUser)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Empty(t, snap.Items)

		var count int
		err = s.DB().QueryRow(`SELECT COUNT(*) FROM priority_snapshots WHERE user_id = ?`, testUser).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestTurns(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i, input := range []string{"first", "second", "third"} {
		s.SetClock(func() time.Time {
			return time.Date(2026, 8, 30, 10, i, 0, 0, time.UTC)
		})
		require.NoError(t, s.SaveTurn(ctx, &Turn{
			UserID: testUser, ThreadID: "t1", UserInput: input, Answer: "ok " + input,
		}))
	}

	turns, err := s.RecentTurns(ctx, testUser, "t1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].UserInput)
	assert.Equal(t, "third", turns[1].UserInput)
}

func TestConsecutiveDays(t *testing.T) {
	cases := []struct {
		name string
		days []string
		ref  string
		want int
	}{
		{"empty", nil, "2026-08-30", 0},
		{"single today", []string{"2026-08-30"}, "2026-08-30", 1},
		{"unbroken run", []string{"2026-08-30", "2026-08-29", "2026-08-28"}, "2026-08-30", 3},
		{"gap stops the run", []string{"2026-08-30", "2026-08-28"}, "2026-08-30", 1},
		{"not completed today", []string{"2026-08-29", "2026-08-28"}, "2026-08-30", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, consecutiveDays(tc.days, tc.ref))
		})
	}
}
