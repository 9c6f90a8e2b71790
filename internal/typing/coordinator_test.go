package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recorder) emit(_ string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, isTyping)
	return nil
}

func (r *recorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func TestLocalTypingIsDebounced(t *testing.T) {
	rec := &recorder{}
	c := New(rec.emit, Options{EmitInterval: time.Hour, IdleStop: time.Hour}, nil, nil)

	for i := 0; i < 20; i++ {
		c.SetTyping("c1", true)
	}
	assert.Equal(t, []bool{true}, rec.snapshot())

	c.NotifySent("c1")
	assert.Equal(t, []bool{true, false}, rec.snapshot())

	// a second stop is a no-op
	c.SetTyping("c1", false)
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestLocalTypingStopsAfterSilence(t *testing.T) {
	rec := &recorder{}
	c := New(rec.emit, Options{EmitInterval: time.Hour, IdleStop: 20 * time.Millisecond}, nil, nil)

	c.SetTyping("c1", true)
	require.Eventually(t, func() bool {
		calls := rec.snapshot()
		return len(calls) == 2 && !calls[1]
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteTypingSet(t *testing.T) {
	c := New(nil, Options{}, nil, nil)

	c.OnRemoteTyping("c1", "bob", true, time.Minute)
	c.OnRemoteTyping("c1", "alice", true, time.Minute)
	c.OnRemoteTyping("c2", "carol", true, time.Minute)
	assert.Equal(t, []string{"alice", "bob"}, c.Typing("c1"))

	c.OnRemoteTyping("c1", "bob", false, 0)
	assert.Equal(t, []string{"alice"}, c.Typing("c1"))
	assert.Equal(t, []string{"carol"}, c.Typing("c2"))
}

func TestRemoteTypingExpiresWithoutStop(t *testing.T) {
	c := New(nil, Options{}, nil, nil)

	c.OnRemoteTyping("c1", "bob", true, 20*time.Millisecond)
	require.Equal(t, []string{"bob"}, c.Typing("c1"))

	require.Eventually(t, func() bool {
		return len(c.Typing("c1")) == 0
	}, time.Second, 5*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.remote, "expired entries are removed, not only hidden")
}

func TestRemoteTypingHiddenPastTTLEvenBeforeTimerFires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(nil, Options{Now: func() time.Time { return now }}, nil, nil)

	c.OnRemoteTyping("c1", "bob", true, 5*time.Second)
	assert.Equal(t, []string{"bob"}, c.Typing("c1"))

	now = now.Add(5 * time.Second)
	assert.Empty(t, c.Typing("c1"))
}

func TestRefreshExtendsTTL(t *testing.T) {
	c := New(nil, Options{}, nil, nil)

	c.OnRemoteTyping("c1", "bob", true, 30*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	c.OnRemoteTyping("c1", "bob", true, time.Minute)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, []string{"bob"}, c.Typing("c1"))
}

func TestReset(t *testing.T) {
	rec := &recorder{}
	c := New(rec.emit, Options{EmitInterval: time.Hour, IdleStop: time.Hour}, nil, nil)
	c.SetTyping("c1", true)
	c.OnRemoteTyping("c1", "bob", true, time.Minute)

	c.Reset()

	assert.Empty(t, c.Typing("c1"))
	c.SetTyping("c1", true)
	assert.Equal(t, []bool{true, true}, rec.snapshot())
}
