package reactions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ageniuscoder/mmchat/client/internal/models"
)

func TestAggregate(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Aggregate(nil))
	})

	t.Run("groups by emoji", func(t *testing.T) {
		got := Aggregate(map[string]models.Reaction{
			"u1": {Type: "like", Emoji: "👍", At: t0},
			"u2": {Type: "like", Emoji: "👍", At: t0.Add(time.Second)},
			"u3": {Type: "love", Emoji: "❤️", At: t0.Add(-time.Second)},
		})
		require.Len(t, got, 2)
		assert.Equal(t, "👍", got[0].Emoji)
		assert.Equal(t, 2, got[0].Count)
		assert.Equal(t, []string{"u1", "u2"}, got[0].UserIDs)
		assert.Equal(t, "❤️", got[1].Emoji)
		assert.Equal(t, []string{"u3"}, got[1].UserIDs)
	})

	t.Run("ties break on earliest reaction", func(t *testing.T) {
		got := Aggregate(map[string]models.Reaction{
			"u1": {Emoji: "😂", At: t0.Add(time.Minute)},
			"u2": {Emoji: "🔥", At: t0},
		})
		require.Len(t, got, 2)
		assert.Equal(t, "🔥", got[0].Emoji)
	})
}

func TestSameUserReactionReplaces(t *testing.T) {
	t0 := time.Now()
	byUser := Apply(nil, "a", &models.Reaction{Type: "like", Emoji: "👍", At: t0})
	byUser = Apply(byUser, "a", &models.Reaction{Type: "love", Emoji: "❤️", At: t0.Add(time.Second)})

	got := Aggregate(byUser)
	require.Len(t, got, 1)
	assert.Equal(t, "❤️", got[0].Emoji)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, []string{"a"}, got[0].UserIDs)
}

func TestRemoveReaction(t *testing.T) {
	byUser := Apply(nil, "a", &models.Reaction{Emoji: "👍"})
	byUser = Apply(byUser, "b", &models.Reaction{Emoji: "👍"})
	byUser = Apply(byUser, "a", nil)

	got := Aggregate(byUser)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, []string{"b"}, got[0].UserIDs)
}
