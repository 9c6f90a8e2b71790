// Package events carries store change notifications to subscribers.
package events

import "sync"

type Topic string

const (
	TopicMessage      Topic = "message"
	TopicConversation Topic = "conversation"
	TopicPresence     Topic = "presence"
	TopicTyping       Topic = "typing"
	TopicQueue        Topic = "queue"
	TopicConnection   Topic = "connection"
)

// Change tells a subscriber which record moved. Data holds a copy of the
// record after the change, or nil when it was removed.
type Change struct {
	Topic          Topic  `json:"topic"`
	ConversationID string `json:"conversation_id,omitempty"`
	ID             string `json:"id,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// Broadcaster fans values out to subscribers over buffered channels.
// A subscriber whose buffer is full is dropped and its channel closed, so
// it must resubscribe and reload a snapshot.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
	size int
}

// Bus is the broadcaster all stores publish their changes on.
type Bus = Broadcaster[Change]

func NewBroadcaster[T any](size int) *Broadcaster[T] {
	if size <= 0 {
		size = 64
	}
	return &Broadcaster[T]{subs: make(map[chan T]struct{}), size: size}
}

func NewBus() *Bus {
	return NewBroadcaster[Change](256)
}

// Subscribe returns a receive channel and a cancel func. Cancel is safe to
// call more than once.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Publish never blocks. Nil receivers are ignored so stores can run
// without a bus in tests.
func (b *Broadcaster[T]) Publish(v T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// slow subscriber -> drop
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Len reports the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
