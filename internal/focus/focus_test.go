package focus

import (
	"context"
	"path/filepath"
	"testing"

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

func TestApply(t *testing.T) {
	s := newStore(t)
	f := New(s, 3)
	ctx := context.Background()

	t.Run("fills missing ranks", func(t *testing.T) {
		snap, err := f.Apply(ctx, testUser, []domain.PriorityItem{
			{GoalInstanceID: "g1"},
			{GoalInstanceID: "g2"},
		}, "thread-1")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Items[0].Rank)
		assert.Equal(t, 2, snap.Items[1].Rank)
	})

	t.Run("rejects oversized focus set", func(t *testing.T) {
		items := []domain.PriorityItem{
			{GoalInstanceID: "g1"}, {GoalInstanceID: "g2"},
			{GoalInstanceID: "g3"}, {GoalInstanceID: "g4"},
		}
		_, err := f.Apply(ctx, testUser, items, "")
		assert.Error(t, err)
	})

	t.Run("rejects missing goal id", func(t *testing.T) {
		_, err := f.Apply(ctx, testUser, []domain.PriorityItem{{Rank: 1}}, "")
		assert.Error(t, err)
	})
}

func TestClearSupersedes(t *testing.T) {
	s := newStore(t)
	f := New(s, 3)
	ctx := context.Background()

	_, err := f.Apply(ctx, testUser, []domain.PriorityItem{{GoalInstanceID: "g1", Rank: 1}}, "")
	require.NoError(t, err)

	_, err = f.Clear(ctx, testUser, "")
	require.NoError(t, err)

	latest, err := f.Latest(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Empty(t, latest.Items)
}

func TestLatestNilForNewUser(t *testing.T) {
	s := newStore(t)
	f := New(s, 3)

	latest, err := f.Latest(context.Background(), "someone-else")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
