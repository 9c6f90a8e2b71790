package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/conversations"
	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/messages"
	"github.com/ageniuscoder/mmchat/client/internal/metrics"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/offline"
	"github.com/ageniuscoder/mmchat/client/internal/presence"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
	"github.com/ageniuscoder/mmchat/client/internal/typing"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Remote is the REST side of the server the manager calls into.
type Remote interface {
	FetchMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error)
	FetchConversations(ctx context.Context) ([]models.Conversation, error)
}

type Options struct {
	ReconnectBase     time.Duration
	ReconnectFactor   float64
	ReconnectMax      time.Duration
	ReconnectAttempts int
	AckTimeout        time.Duration
	RetryBase         time.Duration
	RetryCeiling      int
	TypingTTL         time.Duration
	PageSize          int
	FetchTimeout      time.Duration
}

func (o *Options) defaults() {
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectFactor < 1 {
		o.ReconnectFactor = 2
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 10
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryCeiling <= 0 {
		o.RetryCeiling = 5
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = 6 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
}

// Deps are the stores and collaborators the manager drives. Presence and
// Typing talk back through the manager, so they are usually set after
// NewManager using PresenceTransport and TypingEmitter.
type Deps struct {
	Self          string
	Messages      *messages.Store
	Conversations *conversations.Store
	Queue         *offline.Queue
	Presence      *presence.Tracker
	Typing        *typing.Coordinator
	Remote        Remote
	KV            storage.KV
	Metrics       *metrics.Metrics
	Bus           *events.Bus
	Logger        *slog.Logger
}

// Result is what Send reports for an accepted intent.
type Result struct {
	CorrelationID string          `json:"correlation_id,omitempty"`
	Queued        bool            `json:"queued"`
	Message       *models.Message `json:"message,omitempty"`
}

// Manager owns the single server session, reconnects it with backoff,
// funnels outbound intents one at a time and applies inbound events to the
// stores in arrival order.
type Manager struct {
	Deps

	opts   Options
	dialer Dialer
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	sess     Session
	pending  map[string]chan Event
	cursors  map[string]time.Time
	resolved map[string]string
	cancel   context.CancelFunc
	done     chan struct{}

	// out is held for every transmit of a queueable intent, so a live send
	// and the drain never interleave.
	out       sync.Mutex
	kick      chan struct{}
	hydrating atomic.Bool
	handlers  map[string]func(ctx context.Context, ev Event) error
}

func NewManager(dialer Dialer, deps Deps, opts Options) *Manager {
	opts.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	m := &Manager{
		Deps:     deps,
		opts:     opts,
		dialer:   dialer,
		log:      deps.Logger.With("component", "manager"),
		state:    StateDisconnected,
		pending:  make(map[string]chan Event),
		cursors:  make(map[string]time.Time),
		resolved: make(map[string]string),
		kick:     make(chan struct{}, 1),
	}
	m.handlers = m.dispatchTable()
	if m.Queue != nil {
		m.Queue.OnFailed = m.onActionFailed
		m.Queue.OnChange = func(size int) { m.Metrics.QueueDepth.Set(float64(size)) }
		m.Metrics.QueueDepth.Set(float64(m.Queue.Size()))
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if !changed {
		return
	}
	if s == StateConnected {
		m.Metrics.Connected.Set(1)
	} else {
		m.Metrics.Connected.Set(0)
	}
	m.log.Info("connection state", "state", s)
	m.Bus.Publish(events.Change{Topic: events.TopicConnection, Data: s})
}

func (m *Manager) session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Connect starts the session loop. It returns at once; progress is
// observable through State and the connection topic.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.mu.Unlock()

	go m.drainLoop(ctx)
	go func() {
		defer close(done)
		m.run(ctx)
		cancel()
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
	}()
}

// Disconnect closes the session and waits for the loop to exit. Queued
// intents stay queued.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) run(ctx context.Context) {
	m.setState(StateConnecting)
	for {
		sess, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Error("giving up on server", "error", err, "attempts", m.opts.ReconnectAttempts)
			}
			m.setState(StateDisconnected)
			return
		}
		m.online(ctx, sess)
		m.serve(ctx, sess)
		m.offline(sess)
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		m.setState(StateReconnecting)
	}
}

func (m *Manager) dial(ctx context.Context) (Session, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.ReconnectBase
	b.Multiplier = m.opts.ReconnectFactor
	b.MaxInterval = m.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.opts.ReconnectAttempts)), ctx)

	var sess Session
	err := backoff.RetryNotify(func() error {
		s, err := m.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}, bo, func(err error, wait time.Duration) {
		m.Metrics.Reconnects.Inc()
		m.log.Warn("dial failed", "error", err, "retry_in", wait)
	})
	return sess, err
}

// online runs once per new session: it re-joins open conversations, asks
// for everything after the stored cursors, reconciles presence and starts
// the drain.
func (m *Manager) online(ctx context.Context, sess Session) {
	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	m.setState(StateConnected)

	open := m.Messages.OpenConversations()
	var cursors []Cursor
	for _, id := range open {
		if _, err := m.transmit(ctx, Intent{Type: IntentJoin, ConversationID: id}); err != nil {
			m.log.Warn("rejoin failed", "conversation_id", id, "error", err)
		}
		since := m.Cursor(ctx, id)
		if since.IsZero() {
			// history came from page loads only
			since = m.Messages.Newest(id)
		}
		if !since.IsZero() {
			cursors = append(cursors, Cursor{ConversationID: id, Since: since})
		}
	}
	if len(cursors) > 0 {
		if _, err := m.transmit(ctx, Intent{Type: IntentSync, Cursors: cursors}); err != nil {
			m.log.Warn("sync request failed", "error", err)
		}
	}
	if m.Presence != nil {
		m.Presence.Reconcile(ctx)
	}
	go m.hydrate(ctx)
	m.kickDrain()
}

func (m *Manager) serve(ctx context.Context, sess Session) {
	for {
		select {
		case frame, ok := <-sess.Inbound():
			if !ok {
				return
			}
			m.dispatch(ctx, frame)
		case <-sess.Done():
			return
		case <-ctx.Done():
			_ = sess.Close()
			return
		}
	}
}

func (m *Manager) offline(sess Session) {
	_ = sess.Close()
	m.mu.Lock()
	if m.sess == sess {
		m.sess = nil
	}
	m.mu.Unlock()
	if m.Typing != nil {
		m.Typing.Reset()
	}
	m.log.Info("session ended")
}

// Send applies an intent locally and transmits it. Queueable intents go
// straight out only when connected with nothing queued ahead of them and
// no other send in flight; otherwise they are queued and Result.Queued is
// set. A queued intent is not an error.
func (m *Manager) Send(ctx context.Context, in Intent) (Result, error) {
	if err := ValidateIntent(in); err != nil {
		return Result{}, err
	}
	switch in.Type {
	case IntentTyping:
		if m.Typing != nil {
			m.Typing.SetTyping(in.ConversationID, in.IsTyping)
		}
		return Result{}, nil
	case IntentSetPresence:
		if m.Presence == nil {
			return Result{}, ErrTransportUnavailable
		}
		return Result{}, m.Presence.Set(in.Status)
	case IntentJoin:
		return Result{}, m.Open(ctx, in.ConversationID)
	case IntentLeave:
		m.Close(ctx, in.ConversationID)
		return Result{}, nil
	case IntentHeartbeat, IntentSync:
		_, err := m.transmit(ctx, in)
		return Result{}, err
	}

	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}
	res := Result{CorrelationID: in.CorrelationID}
	msg, err := m.applyLocal(in)
	if err != nil {
		return Result{}, err
	}
	res.Message = msg

	a, err := toAction(in)
	if err != nil {
		return Result{}, err
	}
	if m.State() != StateConnected || m.Queue.Size() > 0 || !m.out.TryLock() {
		if err := m.Queue.Enqueue(ctx, a); err != nil {
			return res, err
		}
		m.kickDrain()
		res.Queued = true
		return res, nil
	}
	defer m.out.Unlock()

	ack, err := m.deliver(ctx, in)
	switch {
	case err == nil:
		if ack.Message != nil {
			c := ack.Message.Clone()
			res.Message = &c
		}
		return res, nil
	case errors.Is(err, ErrTransportUnavailable):
		if err := m.Queue.PushFront(ctx, a); err != nil {
			return res, err
		}
		m.kickDrain()
		res.Queued = true
		return res, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return res, err
	default:
		a.Attempts = m.opts.RetryCeiling
		_ = m.Queue.Fail(ctx, a, err)
		return res, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
}

// applyLocal renders the user's own action before the server confirms it.
// Edits, deletes and reactions are ordered by the store relative to server
// time, never by the local clock.
func (m *Manager) applyLocal(in Intent) (*models.Message, error) {
	now := time.Now().UTC()
	var (
		msg models.Message
		err error
	)
	switch in.Type {
	case IntentSend:
		msg, err = m.Messages.AppendOptimistic(messages.Draft{
			CorrelationID:  in.CorrelationID,
			ConversationID: in.ConversationID,
			Content:        in.Content,
			Kind:           in.Kind,
			Media:          in.Media,
			ReplyTo:        in.ReplyTo,
		})
		if err == nil {
			m.refreshPreview(msg.ConversationID)
			if m.Typing != nil {
				m.Typing.NotifySent(msg.ConversationID)
			}
		}
	case IntentEdit:
		msg, _, err = m.Messages.ApplyEdit(in.MessageID, in.Content, time.Time{})
		if err == nil {
			m.refreshPreview(msg.ConversationID)
		}
	case IntentDelete:
		msg, _, err = m.Messages.ApplyDelete(in.MessageID, time.Time{})
		if err == nil {
			m.refreshPreview(msg.ConversationID)
		}
	case IntentReact:
		msg, err = m.Messages.ApplyReaction(in.MessageID, m.Self, reactionOf(in.ReactionType, in.Emoji, time.Time{}))
	case IntentMarkRead:
		var changed []models.Message
		changed, err = m.Messages.MarkRead(in.MessageID, m.Self, now)
		if err == nil && len(changed) > 0 {
			msg = changed[0]
		}
	}
	if err != nil {
		return nil, err
	}
	if msg.Key() == "" {
		return nil, nil
	}
	return &msg, nil
}

// reactionOf builds a reaction; without an emoji it is a timestamped removal.
func reactionOf(kind string, emoji *string, at time.Time) *models.Reaction {
	r := &models.Reaction{Type: kind, At: at}
	if emoji != nil {
		r.Emoji = *emoji
	}
	return r
}

// transmit writes one intent on the current session. Intents the server
// acks wait for the matching message_ack up to AckTimeout.
func (m *Manager) transmit(ctx context.Context, in Intent) (Event, error) {
	sess := m.session()
	if sess == nil {
		return Event{}, ErrTransportUnavailable
	}
	frame, err := json.Marshal(in)
	if err != nil {
		return Event{}, fmt.Errorf("chat: encode %s: %w", in.Type, err)
	}
	if !needsAck(in.Type) {
		return Event{}, sess.Send(ctx, frame)
	}

	ch := make(chan Event, 1)
	m.mu.Lock()
	m.pending[in.CorrelationID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.pending[in.CorrelationID] == ch {
			delete(m.pending, in.CorrelationID)
		}
		m.mu.Unlock()
	}()

	start := time.Now()
	if err := sess.Send(ctx, frame); err != nil {
		return Event{}, err
	}
	timer := time.NewTimer(m.opts.AckTimeout)
	defer timer.Stop()
	select {
	case ev := <-ch:
		m.Metrics.AckLatency.Observe(time.Since(start).Seconds())
		if ev.Error != "" {
			return ev, fmt.Errorf("%w: %s", ErrRejected, ev.Error)
		}
		return ev, nil
	case <-timer.C:
		return Event{}, ErrAckTimeout
	case <-sess.Done():
		return Event{}, ErrTransportUnavailable
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// deliver retries an ack timeout with backoff up to the retry ceiling.
// Anything else ends the attempt at once.
func (m *Manager) deliver(ctx context.Context, in Intent) (Event, error) {
	var ack Event
	bo := backoff.WithContext(backoff.WithMaxRetries(m.retryBackOff(), uint64(m.opts.RetryCeiling-1)), ctx)
	err := backoff.RetryNotify(func() error {
		ev, err := m.transmit(ctx, in)
		if err == nil {
			ack = ev
			return nil
		}
		if errors.Is(err, ErrAckTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}, bo, func(err error, wait time.Duration) {
		m.log.Warn("no ack, retrying", "correlation_id", in.CorrelationID, "type", in.Type, "retry_in", wait)
	})
	return ack, err
}

func (m *Manager) retryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.RetryBase
	b.Multiplier = m.opts.ReconnectFactor
	b.MaxInterval = m.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Manager) kickDrain() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// drainLoop replays the offline queue whenever kicked while connected. A
// drain paused by a failing action is retried after a backoff delay.
func (m *Manager) drainLoop(ctx context.Context) {
	bo := m.retryBackOff()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		}
		for m.State() == StateConnected && m.Queue.Size() > 0 {
			n, err := m.Queue.Drain(ctx, m.sendAction)
			if n > 0 {
				m.log.Info("drained offline queue", "sent", n, "left", m.Queue.Size())
			}
			if err == nil {
				bo.Reset()
				continue
			}
			if errors.Is(err, offline.ErrUnavailable) || ctx.Err() != nil {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
		}
	}
}

func (m *Manager) sendAction(ctx context.Context, a offline.Action) error {
	in, err := fromAction(a)
	if err != nil {
		return err
	}
	in.MessageID = m.resolve(in.MessageID)

	m.out.Lock()
	defer m.out.Unlock()
	_, err = m.transmit(ctx, in)
	switch {
	case errors.Is(err, ErrTransportUnavailable):
		return fmt.Errorf("%w: %v", offline.ErrUnavailable, err)
	case errors.Is(err, ErrRejected):
		return fmt.Errorf("%w: %w", offline.ErrPermanent, err)
	}
	return err
}

// resolve maps a correlation id that has since been acked to its server id.
func (m *Manager) resolve(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sid, ok := m.resolved[id]; ok {
		return sid
	}
	return id
}

func (m *Manager) onActionFailed(a offline.Action) {
	m.Metrics.SendFailures.Inc()
	if a.Kind != offline.KindSend {
		return
	}
	if _, err := m.Messages.MarkFailed(a.CorrelationID); err != nil {
		m.log.Debug("failed action has no pending message", "correlation_id", a.CorrelationID)
	}
}

// Failed lists the intents waiting for Retry or Abandon.
func (m *Manager) Failed() []offline.Action {
	return m.Queue.Failed()
}

// Retry re-queues a failed intent with a fresh attempt budget.
func (m *Manager) Retry(ctx context.Context, correlationID string) error {
	a, err := m.Queue.Retry(ctx, correlationID)
	if err != nil {
		return err
	}
	if a.Kind == offline.KindSend {
		_, _ = m.Messages.MarkPending(correlationID)
	}
	m.kickDrain()
	return nil
}

// Abandon drops a failed intent. An unsent message is removed from its log.
func (m *Manager) Abandon(ctx context.Context, correlationID string) error {
	a, err := m.Queue.Abandon(ctx, correlationID)
	if err != nil {
		return err
	}
	if a.Kind == offline.KindSend && m.Messages.Discard(correlationID) {
		m.refreshPreview(a.ConversationID)
	}
	return nil
}

// Open shows a conversation: it becomes focused, its unread counter is
// cleared and the server is asked to stream its events. An empty log gets
// its newest page; a conversation whose resync failed is refetched.
func (m *Manager) Open(ctx context.Context, conversationID string) error {
	m.Messages.Open(conversationID)
	m.Conversations.Ensure(conversationID)
	m.Conversations.Focus(conversationID)
	if err := m.Conversations.ClearUnread(conversationID, m.Self); err != nil {
		return err
	}
	if _, err := m.transmit(ctx, Intent{Type: IntentJoin, ConversationID: conversationID}); err != nil && !errors.Is(err, ErrTransportUnavailable) {
		m.log.Warn("join failed", "conversation_id", conversationID, "error", err)
	}
	if c, ok := m.Conversations.Get(conversationID); ok && c.SyncState == models.SyncResyncFailed {
		m.resync(ctx, conversationID)
		return nil
	}
	if len(m.Messages.Messages(conversationID)) == 0 && m.Remote != nil {
		if _, err := m.Messages.LoadOlder(ctx, conversationID); err != nil {
			return err
		}
		m.advanceCursor(ctx, conversationID, m.Messages.Newest(conversationID))
		m.refreshPreview(conversationID)
	}
	return nil
}

// Close hides a conversation; pages still loading for it are dropped.
func (m *Manager) Close(ctx context.Context, conversationID string) {
	m.Messages.Close(conversationID)
	m.Conversations.Blur(conversationID)
	if _, err := m.transmit(ctx, Intent{Type: IntentLeave, ConversationID: conversationID}); err != nil && !errors.Is(err, ErrTransportUnavailable) {
		m.log.Warn("leave failed", "conversation_id", conversationID, "error", err)
	}
}

// Cursor returns the time of the last event applied for a conversation.
func (m *Manager) Cursor(ctx context.Context, conversationID string) time.Time {
	m.mu.Lock()
	at, ok := m.cursors[conversationID]
	m.mu.Unlock()
	if ok || m.KV == nil {
		return at
	}
	if err := storage.GetJSON(ctx, m.KV, storage.KeyCursor(conversationID), &at); err != nil {
		return time.Time{}
	}
	m.mu.Lock()
	if cur := m.cursors[conversationID]; at.After(cur) {
		m.cursors[conversationID] = at
	}
	m.mu.Unlock()
	return at
}

func (m *Manager) advanceCursor(ctx context.Context, conversationID string, at time.Time) {
	if at.IsZero() || conversationID == "" {
		return
	}
	if !at.After(m.Cursor(ctx, conversationID)) {
		return
	}
	m.mu.Lock()
	if !at.After(m.cursors[conversationID]) {
		m.mu.Unlock()
		return
	}
	m.cursors[conversationID] = at
	m.mu.Unlock()
	m.storeCursor(ctx, conversationID, at)
}

func (m *Manager) storeCursor(ctx context.Context, conversationID string, at time.Time) {
	if m.KV == nil {
		return
	}
	if err := storage.PutJSON(ctx, m.KV, storage.KeyCursor(conversationID), at); err != nil {
		m.log.Warn("cursor write failed", "conversation_id", conversationID, "error", err)
	}
}

// refreshPreview copies the newest message of the log onto the
// conversation list entry.
func (m *Manager) refreshPreview(conversationID string) {
	last, ok := m.Messages.Last(conversationID)
	if !ok {
		return
	}
	m.Conversations.Touch(conversationID, models.LastMessage{
		MessageID: last.Key(),
		Preview:   models.Preview(&last),
		At:        last.OrderTime(),
	})
}

func (m *Manager) hydrate(ctx context.Context) {
	if m.Remote == nil || !m.hydrating.CompareAndSwap(false, true) {
		return
	}
	defer m.hydrating.Store(false)

	ctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()
	list, err := m.Remote.FetchConversations(ctx)
	if err != nil {
		m.log.Warn("fetch conversations failed", "error", err)
		return
	}
	for _, c := range list {
		m.Conversations.Upsert(c)
	}
}

// PresenceTransport lets the presence tracker reach the server through the
// current session.
func (m *Manager) PresenceTransport() presence.Transport {
	return presenceLink{m: m}
}

type presenceLink struct{ m *Manager }

func (p presenceLink) Heartbeat() error {
	_, err := p.m.transmit(context.Background(), Intent{Type: IntentHeartbeat})
	return err
}

func (p presenceLink) Announce(status models.Status) error {
	_, err := p.m.transmit(context.Background(), Intent{Type: IntentSetPresence, Status: status})
	return err
}

// TypingEmitter sends typing indicators through the current session. They
// are never queued.
func (m *Manager) TypingEmitter() typing.Emitter {
	return func(conversationID string, isTyping bool) error {
		_, err := m.transmit(context.Background(), Intent{Type: IntentTyping, ConversationID: conversationID, IsTyping: isTyping})
		return err
	}
}

var actionKinds = map[string]offline.Kind{
	IntentSend:     offline.KindSend,
	IntentEdit:     offline.KindEdit,
	IntentDelete:   offline.KindDelete,
	IntentReact:    offline.KindReact,
	IntentMarkRead: offline.KindMarkRead,
}

func toAction(in Intent) (offline.Action, error) {
	kind, ok := actionKinds[in.Type]
	if !ok {
		return offline.Action{}, fmt.Errorf("chat: %s cannot be queued", in.Type)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return offline.Action{}, fmt.Errorf("chat: encode %s: %w", in.Type, err)
	}
	return offline.Action{
		CorrelationID:  in.CorrelationID,
		Kind:           kind,
		ConversationID: in.ConversationID,
		Intent:         in.Type,
		Payload:        payload,
		EnqueuedAt:     time.Now().UTC(),
	}, nil
}

func fromAction(a offline.Action) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(a.Payload, &in); err != nil {
		return Intent{}, fmt.Errorf("chat: decode queued %s: %w", a.Intent, err)
	}
	in.CorrelationID = a.CorrelationID
	return in, nil
}
