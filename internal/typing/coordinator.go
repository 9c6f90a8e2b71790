// Package typing keeps ephemeral typing flags for the local user and peers.
package typing

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ageniuscoder/mmchat/client/internal/events"
)

// Emitter transmits the local user's typing flag for a conversation.
type Emitter func(conversationID string, isTyping bool) error

type Options struct {
	EmitInterval time.Duration // minimum gap between "typing" emits
	IdleStop     time.Duration // silence after which "stopped" is emitted
	RemoteTTL    time.Duration // default lifetime of a peer's flag
	Now          func() time.Time
}

func (o *Options) defaults() {
	if o.EmitInterval <= 0 {
		o.EmitInterval = time.Second
	}
	if o.IdleStop <= 0 {
		o.IdleStop = 4 * time.Second
	}
	if o.RemoteTTL <= 0 {
		o.RemoteTTL = 6 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type local struct {
	limiter *rate.Limiter
	typing  bool
	stop    *time.Timer
}

type remote struct {
	expires time.Time
	timer   *time.Timer
}

// Coordinator owns every typing timer. All timers are created and stopped
// here and nowhere else.
type Coordinator struct {
	mu     sync.Mutex
	opts   Options
	emit   Emitter
	bus    *events.Bus
	log    *slog.Logger
	local  map[string]*local
	remote map[string]map[string]*remote
}

func New(emit Emitter, opts Options, bus *events.Bus, logger *slog.Logger) *Coordinator {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		opts:   opts,
		emit:   emit,
		bus:    bus,
		log:    logger.With("component", "typing"),
		local:  make(map[string]*local),
		remote: make(map[string]map[string]*remote),
	}
}

// SetTyping records a local keystroke (true) or an explicit stop (false).
// Keystrokes are debounced to at most one emit per EmitInterval and an
// idle timer emits the stop after IdleStop of silence.
func (c *Coordinator) SetTyping(conversationID string, isTyping bool) {
	if !isTyping {
		c.stopLocal(conversationID)
		return
	}

	c.mu.Lock()
	st := c.local[conversationID]
	if st == nil {
		st = &local{limiter: rate.NewLimiter(rate.Every(c.opts.EmitInterval), 1)}
		c.local[conversationID] = st
	}
	allowed := st.limiter.Allow()
	send := !st.typing || allowed
	st.typing = true
	if st.stop != nil {
		st.stop.Stop()
	}
	st.stop = time.AfterFunc(c.opts.IdleStop, func() { c.stopLocal(conversationID) })
	c.mu.Unlock()

	if send {
		c.transmit(conversationID, true)
	}
}

// NotifySent ends the local typing state right away; called on send.
func (c *Coordinator) NotifySent(conversationID string) {
	c.stopLocal(conversationID)
}

func (c *Coordinator) stopLocal(conversationID string) {
	c.mu.Lock()
	st := c.local[conversationID]
	if st == nil || !st.typing {
		c.mu.Unlock()
		return
	}
	st.typing = false
	if st.stop != nil {
		st.stop.Stop()
		st.stop = nil
	}
	c.mu.Unlock()

	c.transmit(conversationID, false)
}

func (c *Coordinator) transmit(conversationID string, isTyping bool) {
	if c.emit == nil {
		return
	}
	if err := c.emit(conversationID, isTyping); err != nil {
		// typing is ephemeral: never queued, never retried
		c.log.Debug("typing emit dropped", "conversation", conversationID, "typing", isTyping, "error", err)
	}
}

// OnRemoteTyping applies a peer's typing event. ttl <= 0 uses RemoteTTL.
// The flag expires on its own if no stop ever arrives.
func (c *Coordinator) OnRemoteTyping(conversationID, userID string, isTyping bool, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.RemoteTTL
	}

	c.mu.Lock()
	users := c.remote[conversationID]
	if !isTyping {
		changed := c.dropRemoteLocked(conversationID, userID)
		c.mu.Unlock()
		if changed {
			c.publish(conversationID)
		}
		return
	}
	if users == nil {
		users = make(map[string]*remote)
		c.remote[conversationID] = users
	}
	e := users[userID]
	if e == nil {
		e = &remote{}
		users[userID] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	expires := c.opts.Now().Add(ttl)
	e.expires = expires
	e.timer = time.AfterFunc(ttl, func() { c.expire(conversationID, userID, expires) })
	c.mu.Unlock()

	c.publish(conversationID)
}

func (c *Coordinator) expire(conversationID, userID string, expires time.Time) {
	c.mu.Lock()
	e := c.remote[conversationID][userID]
	if e == nil || !e.expires.Equal(expires) {
		c.mu.Unlock()
		return
	}
	c.dropRemoteLocked(conversationID, userID)
	c.mu.Unlock()
	c.publish(conversationID)
}

func (c *Coordinator) dropRemoteLocked(conversationID, userID string) bool {
	users := c.remote[conversationID]
	e, ok := users[userID]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(c.remote, conversationID)
	}
	return true
}

// Typing returns the peers currently typing in the conversation, sorted.
func (c *Coordinator) Typing(conversationID string) []string {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for uid, e := range c.remote[conversationID] {
		if now.Before(e.expires) {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

// Reset forgets every peer flag and cancels local timers without emitting.
// Used when the session drops: peer state is unknown until they type again.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	convs := make([]string, 0, len(c.remote))
	for conv, users := range c.remote {
		for _, e := range users {
			if e.timer != nil {
				e.timer.Stop()
			}
		}
		convs = append(convs, conv)
	}
	c.remote = make(map[string]map[string]*remote)
	for _, st := range c.local {
		if st.stop != nil {
			st.stop.Stop()
			st.stop = nil
		}
		st.typing = false
	}
	c.mu.Unlock()

	for _, conv := range convs {
		c.publish(conv)
	}
}

func (c *Coordinator) publish(conversationID string) {
	c.bus.Publish(events.Change{
		Topic:          events.TopicTyping,
		ConversationID: conversationID,
		Data:           c.Typing(conversationID),
	})
}
