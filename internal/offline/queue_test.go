package offline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ageniuscoder/mmchat/client/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func action(id string) Action {
	return Action{CorrelationID: id, Kind: KindSend, Intent: "send_message", Payload: []byte(`{}`)}
}

func TestDrainIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, err := New(ctx, storage.NewMemory(), 5, nil, nil)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, action(id)))
	}
	require.NoError(t, q.Enqueue(ctx, action("a")))
	assert.Equal(t, 3, q.Size())

	var order []string
	n, err := q.Drain(ctx, func(_ context.Context, a Action) error {
		order = append(order, a.CorrelationID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, q.Size())
}

func TestDrainPausesOnUnavailable(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 5, nil, nil)
	require.NoError(t, q.Enqueue(ctx, action("a")))
	require.NoError(t, q.Enqueue(ctx, action("b")))

	n, err := q.Drain(ctx, func(context.Context, Action) error {
		return ErrUnavailable
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, n)

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", head.CorrelationID)
	assert.Zero(t, head.Attempts)
}

func TestFailureCeilingMovesToFailed(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 2, nil, nil)
	var surfaced []string
	q.OnFailed = func(a Action) { surfaced = append(surfaced, a.CorrelationID) }

	require.NoError(t, q.Enqueue(ctx, action("bad")))
	require.NoError(t, q.Enqueue(ctx, action("good")))

	send := func(_ context.Context, a Action) error {
		if a.CorrelationID == "bad" {
			return errors.New("rejected")
		}
		return nil
	}

	_, err := q.Drain(ctx, send)
	require.Error(t, err)
	head, _ := q.Peek()
	assert.Equal(t, 1, head.Attempts)
	assert.Equal(t, "rejected", head.LastError)

	n, err := q.Drain(ctx, send)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"bad"}, surfaced)
	assert.Zero(t, q.Size())

	failed := q.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 5, nil, nil)
	var surfaced []string
	q.OnFailed = func(a Action) { surfaced = append(surfaced, a.CorrelationID) }
	require.NoError(t, q.Enqueue(ctx, action("bad")))
	require.NoError(t, q.Enqueue(ctx, action("good")))

	var sent []string
	n, err := q.Drain(ctx, func(_ context.Context, a Action) error {
		sent = append(sent, a.CorrelationID)
		if a.CorrelationID == "bad" {
			return fmt.Errorf("%w: not a member", ErrPermanent)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"bad", "good"}, sent)
	assert.Equal(t, []string{"bad"}, surfaced)

	failed := q.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Attempts)
	assert.Contains(t, failed[0].LastError, "not a member")
}

func TestRetryAndAbandon(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 1, nil, nil)
	require.NoError(t, q.Enqueue(ctx, action("x")))
	require.NoError(t, q.Enqueue(ctx, action("y")))
	_, _ = q.Drain(ctx, func(context.Context, Action) error { return errors.New("nope") })
	require.Len(t, q.Failed(), 2)

	a, err := q.Retry(ctx, "x")
	require.NoError(t, err)
	assert.Zero(t, a.Attempts)
	assert.True(t, q.Contains("x"))

	_, err = q.Abandon(ctx, "y")
	require.NoError(t, err)
	assert.Empty(t, q.Failed())

	_, err = q.Abandon(ctx, "y")
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = q.Retry(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	q, _ := New(ctx, kv, 5, nil, nil)
	require.NoError(t, q.Enqueue(ctx, action("c1")))
	require.NoError(t, q.Enqueue(ctx, action("c2")))

	again, err := New(ctx, kv, 5, nil, nil)
	require.NoError(t, err)
	items := again.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "c1", items[0].CorrelationID)
	assert.Equal(t, "c2", items[1].CorrelationID)
}

func TestConcurrentDrainIsNoop(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 5, nil, nil)
	require.NoError(t, q.Enqueue(ctx, action("a")))

	inner := -1
	_, err := q.Drain(ctx, func(ctx context.Context, a Action) error {
		inner, _ = q.Drain(ctx, func(context.Context, Action) error { return nil })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inner)
	assert.Zero(t, q.Size())
}

func TestEnqueueRequiresCorrelationID(t *testing.T) {
	q, _ := New(context.Background(), nil, 5, nil, nil)
	assert.Error(t, q.Enqueue(context.Background(), Action{Kind: KindSend}))
}

func TestPushFrontAndFail(t *testing.T) {
	ctx := context.Background()
	q, _ := New(ctx, nil, 5, nil, nil)
	var surfaced []string
	q.OnFailed = func(a Action) { surfaced = append(surfaced, a.CorrelationID) }

	require.NoError(t, q.Enqueue(ctx, action("b")))
	require.NoError(t, q.PushFront(ctx, action("a")))
	head, _ := q.Peek()
	assert.Equal(t, "a", head.CorrelationID)

	require.NoError(t, q.Fail(ctx, action("a"), errors.New("ack timeout")))
	assert.Equal(t, []string{"a"}, surfaced)
	assert.Equal(t, 1, q.Size())
	require.Len(t, q.Failed(), 1)
	assert.Equal(t, "ack timeout", q.Failed()[0].LastError)
}
