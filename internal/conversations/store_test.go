package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ids(cs []models.Conversation) []string {
	out := make([]string, len(cs))
	for i := range cs {
		out[i] = cs[i].ID
	}
	return out
}

func TestTouchReordersList(t *testing.T) {
	s := NewStore(nil, nil, nil)
	s.Upsert(models.Conversation{ID: "a", CreatedAt: t0})
	s.Upsert(models.Conversation{ID: "b", CreatedAt: t0.Add(time.Minute)})
	s.Upsert(models.Conversation{ID: "c", CreatedAt: t0.Add(2 * time.Minute)})
	assert.Equal(t, []string{"c", "b", "a"}, ids(s.List()))

	s.Touch("a", models.LastMessage{MessageID: "m1", Preview: "hi", At: t0.Add(time.Hour)})
	assert.Equal(t, []string{"a", "c", "b"}, ids(s.List()))

	c := s.Touch("a", models.LastMessage{MessageID: "m1", Preview: "message deleted", At: t0.Add(time.Hour)})
	assert.Equal(t, "message deleted", c.LastMessage.Preview)
}

func TestUnreadScenario(t *testing.T) {
	s := NewStore(nil, nil, nil)
	s.Upsert(models.Conversation{ID: "conv", Participants: []string{"alice", "bob"}})

	c, _ := s.Get("conv")
	assert.Zero(t, c.Unread["alice"])

	n, bumped := s.IncrementUnread("conv", "alice")
	assert.True(t, bumped)
	assert.Equal(t, 1, n)

	s.Focus("conv")
	require.NoError(t, s.ClearUnread("conv", "alice"))
	require.NoError(t, s.ClearUnread("conv", "alice"))
	c, _ = s.Get("conv")
	assert.Zero(t, c.Unread["alice"])

	_, bumped = s.IncrementUnread("conv", "alice")
	assert.False(t, bumped)

	s.Blur("conv")
	n, _ = s.IncrementUnread("conv", "alice")
	assert.Equal(t, 1, n)
}

func TestClearUnreadUnknown(t *testing.T) {
	s := NewStore(nil, nil, nil)
	assert.ErrorIs(t, s.ClearUnread("nope", "me"), ErrUnknownConversation)
}

func TestPlaceholderHydratedByUpsert(t *testing.T) {
	s := NewStore(nil, nil, nil)
	c, created := s.Ensure("x")
	assert.True(t, created)
	assert.False(t, c.Hydrated)
	s.IncrementUnread("x", "me")

	c = s.Upsert(models.Conversation{ID: "x", Kind: models.Group, Name: "team"})
	assert.True(t, c.Hydrated)
	assert.Equal(t, "team", c.Name)
	assert.Equal(t, 1, c.Unread["me"])

	_, created = s.Ensure("x")
	assert.False(t, created)
}

func TestRemoveAndSyncState(t *testing.T) {
	s := NewStore(nil, nil, nil)
	s.Upsert(models.Conversation{ID: "x"})
	s.Focus("x")

	s.SetSyncState("x", models.SyncResyncFailed, assert.AnError)
	c, _ := s.Get("x")
	assert.Equal(t, models.SyncResyncFailed, c.SyncState)
	assert.NotEmpty(t, c.SyncError)

	assert.True(t, s.Remove("x"))
	assert.False(t, s.Remove("x"))
	assert.Empty(t, s.Focused())
	assert.Empty(t, s.List())
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := NewStore(kv, nil, nil)
	s.Upsert(models.Conversation{ID: "a", CreatedAt: t0})
	s.Touch("b", models.LastMessage{MessageID: "m", At: t0.Add(time.Minute)})

	again := NewStore(kv, nil, nil)
	require.NoError(t, again.Restore(ctx))
	assert.Equal(t, []string{"b", "a"}, ids(again.List()))
}
