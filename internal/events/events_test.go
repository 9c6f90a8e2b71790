package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster[int](4)
	a, cancelA := b.Subscribe()
	c, cancelC := b.Subscribe()
	defer cancelA()
	defer cancelC()

	b.Publish(7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-c)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster[int](1)
	ch, cancel := b.Subscribe()

	b.Publish(1)
	b.Publish(2)

	require.Equal(t, 0, b.Len())
	v, ok := <-ch
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-ch
	assert.False(t, ok)

	cancel() // already dropped, must not panic
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish(Change{Topic: TopicMessage}) })
}
