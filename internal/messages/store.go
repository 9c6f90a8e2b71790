// Package messages keeps the per-conversation message logs and the local
// API that reads them.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/reactions"
	"github.com/google/uuid"
)

var (
	ErrUnknownMessage     = errors.New("messages: unknown message")
	ErrConversationClosed = errors.New("messages: conversation closed")
	ErrEmptyDraft         = errors.New("messages: draft has no content")
)

// Fetcher loads history pages from the server.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error)
}

// Draft is what the UI hands over for an optimistic send.
type Draft struct {
	CorrelationID  string             `json:"correlation_id,omitempty"`
	ConversationID string             `json:"conversation_id" validate:"required"`
	Content        string             `json:"content"`
	Kind           models.MessageKind `json:"kind" validate:"omitempty,oneof=text image file voice video"`
	Media          *models.MediaRef   `json:"media,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
}

type convLog struct {
	msgs      []*models.Message
	open      bool
	epoch     uint64
	exhausted bool
}

// Store holds every loaded conversation log ordered by
// (server time | local time, then id). Pending messages sit at the tail
// until acked.
type Store struct {
	mu       sync.Mutex
	self     string
	logs     map[string]*convLog
	byID     map[string]*models.Message
	byCorr   map[string]*models.Message
	fetch    Fetcher
	pageSize int
	bus      *events.Bus
	log      *slog.Logger
	now      func() time.Time
}

func NewStore(self string, fetch Fetcher, pageSize int, bus *events.Bus, logger *slog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		self:     self,
		logs:     make(map[string]*convLog),
		byID:     make(map[string]*models.Message),
		byCorr:   make(map[string]*models.Message),
		fetch:    fetch,
		pageSize: pageSize,
		bus:      bus,
		log:      logger.With("component", "messages"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) logFor(conversationID string) *convLog {
	l, ok := s.logs[conversationID]
	if !ok {
		l = &convLog{}
		s.logs[conversationID] = l
	}
	return l
}

func (l *convLog) insert(m *models.Message) {
	i := sort.Search(len(l.msgs), func(i int) bool { return m.Before(l.msgs[i]) })
	l.msgs = append(l.msgs, nil)
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
}

func (l *convLog) remove(m *models.Message) {
	for i, x := range l.msgs {
		if x == m {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			return
		}
	}
}

// AppendOptimistic puts a pending message at the tail of its conversation.
// A draft whose correlation id is already held returns the held message.
func (s *Store) AppendOptimistic(d Draft) (models.Message, error) {
	if d.Content == "" && d.Media == nil {
		return models.Message{}, ErrEmptyDraft
	}
	if d.CorrelationID == "" {
		d.CorrelationID = uuid.NewString()
	}
	if d.Kind == "" {
		d.Kind = models.KindText
	}

	s.mu.Lock()
	if m, ok := s.byCorr[d.CorrelationID]; ok {
		out := m.Clone()
		s.mu.Unlock()
		return out, nil
	}
	now := s.now()
	m := &models.Message{
		CorrelationID:  d.CorrelationID,
		ConversationID: d.ConversationID,
		SenderID:       s.self,
		Content:        d.Content,
		Kind:           d.Kind,
		Media:          d.Media,
		ReplyTo:        d.ReplyTo,
		State:          models.StatePending,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
	s.logFor(d.ConversationID).insert(m)
	s.byCorr[m.CorrelationID] = m
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, nil
}

// ApplyAck maps a correlation id onto the server's id and timestamp and
// moves the message into its server-ordered slot. The correlation id stops
// being addressable. A repeated ack for an already-mapped id is a no-op.
func (s *Store) ApplyAck(correlationID string, srv models.Message) (models.Message, error) {
	s.mu.Lock()
	m, ok := s.byCorr[correlationID]
	if !ok {
		if held, dup := s.byID[srv.ID]; dup && srv.ID != "" {
			out := held.Clone()
			s.mu.Unlock()
			return out, nil
		}
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: correlation %s", ErrUnknownMessage, correlationID)
	}
	if srv.ID == "" {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: ack without server id", ErrUnknownMessage)
	}

	l := s.logFor(m.ConversationID)
	delete(s.byCorr, correlationID)

	// the broadcast copy may have beaten the ack here
	if held, dup := s.byID[srv.ID]; dup {
		l.remove(m)
		if held.CorrelationID == "" {
			held.CorrelationID = correlationID
		}
		out := held.Clone()
		s.mu.Unlock()
		s.publish(out)
		return out, nil
	}

	l.remove(m)
	m.ID = srv.ID
	m.ServerAt = srv.ServerAt
	if m.ServerAt.IsZero() {
		m.ServerAt = s.now()
	}
	// an edit or delete made while pending is still queued behind the send
	// and keeps its content
	if !m.Edited && !m.Deleted {
		if srv.Content != "" {
			m.Content = srv.Content
		}
		if m.Media == nil && srv.Media != nil {
			media := *srv.Media
			m.Media = &media
		}
	}
	m.ModifiedAt = m.ServerAt
	if !srv.ModifiedAt.IsZero() {
		m.ModifiedAt = srv.ModifiedAt
	}
	m.State = models.StateSent
	if m.State.Advances(srv.State) {
		m.State = srv.State
	}
	l.insert(m)
	s.byID[m.ID] = m
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, nil
}

// ApplyInbound merges a server message. A message id already held is a
// no-op; a message echoing a held correlation id is treated as its ack.
// inserted is true only for a message the store had never seen.
func (s *Store) ApplyInbound(srv models.Message) (msg models.Message, inserted bool, err error) {
	if srv.ID == "" || srv.ConversationID == "" {
		return models.Message{}, false, fmt.Errorf("%w: inbound message without id", ErrUnknownMessage)
	}
	s.mu.Lock()
	if held, ok := s.byID[srv.ID]; ok {
		out := held.Clone()
		s.mu.Unlock()
		s.log.Debug("duplicate message dropped", "message_id", srv.ID)
		return out, false, nil
	}
	if srv.CorrelationID != "" {
		if _, ok := s.byCorr[srv.CorrelationID]; ok {
			s.mu.Unlock()
			out, err := s.ApplyAck(srv.CorrelationID, srv)
			return out, false, err
		}
	}

	m := srv.Clone()
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if m.ServerAt.IsZero() {
		m.ServerAt = s.now()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.ServerAt
	}
	if m.ModifiedAt.IsZero() {
		m.ModifiedAt = m.ServerAt
	}
	if !models.StateSent.Advances(m.State) {
		m.State = models.StateSent
	}
	s.logFor(m.ConversationID).insert(&m)
	s.byID[m.ID] = &m
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, true, nil
}

// ApplyEdit replaces the content if at is newer than the message's last
// modification. An older or equal timestamp is dropped and applied is false.
// A zero at marks the user's own edit: it is stamped just after the last
// modification the store knows of, so any later server change still wins.
func (s *Store) ApplyEdit(messageID, content string, at time.Time) (models.Message, bool, error) {
	return s.modify(messageID, at, func(m *models.Message) {
		m.Content = content
		m.Edited = true
		m.Deleted = false
	})
}

// ApplyDelete tombstones the message under the same last-write-wins rule as
// ApplyEdit. The tombstone keeps its slot in the log.
func (s *Store) ApplyDelete(messageID string, at time.Time) (models.Message, bool, error) {
	return s.modify(messageID, at, func(m *models.Message) {
		m.Content = ""
		m.Media = nil
		m.Deleted = true
	})
}

func (s *Store) modify(messageID string, at time.Time, fn func(m *models.Message)) (models.Message, bool, error) {
	s.mu.Lock()
	m, ok := s.lookupLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return models.Message{}, false, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if at.IsZero() {
		at = m.ModifiedAt.Add(localTick)
	}
	if !at.After(m.ModifiedAt) {
		out := m.Clone()
		s.mu.Unlock()
		s.log.Debug("stale modification dropped", "message_id", messageID, "at", at, "current", m.ModifiedAt)
		return out, false, nil
	}
	fn(m)
	m.ModifiedAt = at
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, true, nil
}

// ApplyReaction sets userID's reaction or, when r is nil or has no emoji,
// clears it. A reaction older than the one held for the user is dropped. A
// zero r.At marks the user's own reaction and is stamped like a local edit.
func (s *Store) ApplyReaction(messageID, userID string, r *models.Reaction) (models.Message, error) {
	s.mu.Lock()
	m, ok := s.lookupLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	held, has := m.Reactions[userID]
	if r != nil {
		c := *r
		if c.At.IsZero() {
			c.At = reactionStamp(m, held, has)
		}
		if has && c.At.Before(held.At) {
			out := m.Clone()
			s.mu.Unlock()
			s.log.Debug("stale reaction dropped", "message_id", messageID, "user_id", userID, "at", c.At, "current", held.At)
			return out, nil
		}
		r = &c
		if r.Emoji == "" {
			r = nil
		}
	}
	m.Reactions = reactions.Apply(m.Reactions, userID, r)
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, nil
}

// localTick separates a local change from the server time it follows.
const localTick = time.Millisecond

func reactionStamp(m *models.Message, held models.Reaction, has bool) time.Time {
	if has {
		return held.At.Add(localTick)
	}
	return m.OrderTime().Add(localTick)
}

// MarkRead records that userID read messageID. A peer's receipt is
// cumulative: every own message ordered at or before it becomes read.
// It returns the messages that changed.
func (s *Store) MarkRead(messageID, userID string, at time.Time) ([]models.Message, error) {
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	target, ok := s.lookupLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	var changed []models.Message
	mark := func(m *models.Message) {
		if _, seen := m.ReadBy[userID]; seen {
			return
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]time.Time)
		}
		m.ReadBy[userID] = at
		if m.SenderID == s.self && userID != s.self && m.State.Advances(models.StateRead) {
			m.State = models.StateRead
		}
		changed = append(changed, m.Clone())
	}

	if userID == s.self {
		mark(target)
	} else {
		for _, m := range s.logFor(target.ConversationID).msgs {
			if target.Before(m) {
				break
			}
			if m.SenderID == s.self && m.Acked() {
				mark(m)
			}
		}
		if target.SenderID != s.self {
			mark(target)
		}
	}
	s.mu.Unlock()

	for _, m := range changed {
		s.publish(m)
	}
	return changed, nil
}

// MarkDelivered advances an own message to delivered. Receipts never move
// a message backwards.
func (s *Store) MarkDelivered(messageID string) (models.Message, bool, error) {
	return s.advance(messageID, models.StateDelivered)
}

func (s *Store) advance(key string, next models.SendState) (models.Message, bool, error) {
	s.mu.Lock()
	m, ok := s.lookupLocked(key)
	if !ok {
		s.mu.Unlock()
		return models.Message{}, false, fmt.Errorf("%w: %s", ErrUnknownMessage, key)
	}
	if !m.State.Advances(next) {
		out := m.Clone()
		s.mu.Unlock()
		return out, false, nil
	}
	m.State = next
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, true, nil
}

// MarkFailed flags an unacked message as failed.
func (s *Store) MarkFailed(correlationID string) (models.Message, error) {
	return s.setUnacked(correlationID, models.StateFailed)
}

// MarkPending puts a failed message back to pending for a retry.
func (s *Store) MarkPending(correlationID string) (models.Message, error) {
	return s.setUnacked(correlationID, models.StatePending)
}

func (s *Store) setUnacked(correlationID string, state models.SendState) (models.Message, error) {
	s.mu.Lock()
	m, ok := s.byCorr[correlationID]
	if !ok {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: correlation %s", ErrUnknownMessage, correlationID)
	}
	m.State = state
	out := m.Clone()
	s.mu.Unlock()

	s.publish(out)
	return out, nil
}

// Discard drops an unacked message, used when its send is abandoned.
func (s *Store) Discard(correlationID string) bool {
	s.mu.Lock()
	m, ok := s.byCorr[correlationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byCorr, correlationID)
	s.logFor(m.ConversationID).remove(m)
	s.mu.Unlock()

	s.bus.Publish(events.Change{Topic: events.TopicMessage, ConversationID: m.ConversationID, ID: correlationID})
	return true
}

// Get looks a message up by server id, or by correlation id while unacked.
func (s *Store) Get(key string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.lookupLocked(key)
	if !ok {
		return models.Message{}, false
	}
	return m.Clone(), true
}

func (s *Store) lookupLocked(key string) (*models.Message, bool) {
	if m, ok := s.byID[key]; ok {
		return m, true
	}
	m, ok := s.byCorr[key]
	return m, ok
}

// Messages returns a copy of the conversation log in order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]models.Message, 0, len(l.msgs))
	for _, m := range l.msgs {
		out = append(out, m.Clone())
	}
	return out
}

// Last returns the newest message of the conversation.
func (s *Store) Last(conversationID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[conversationID]
	if !ok || len(l.msgs) == 0 {
		return models.Message{}, false
	}
	return l.msgs[len(l.msgs)-1].Clone(), true
}

// Newest returns the server time of the newest acked message held for a
// conversation, or the zero time.
func (s *Store) Newest(conversationID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var at time.Time
	if l, ok := s.logs[conversationID]; ok {
		for _, m := range l.msgs {
			if m.Acked() && m.ServerAt.After(at) {
				at = m.ServerAt
			}
		}
	}
	return at
}

// Open marks a conversation log as shown.
func (s *Store) Open(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.logFor(conversationID)
	if !l.open {
		l.open = true
		l.epoch++
	}
}

// Close marks a log as hidden; pages still in flight for it are discarded.
func (s *Store) Close(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[conversationID]; ok && l.open {
		l.open = false
		l.epoch++
	}
}

func (s *Store) IsOpen(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[conversationID]
	return ok && l.open
}

// OpenConversations lists the open logs, sorted by id.
func (s *Store) OpenConversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, l := range s.logs {
		if l.open {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// LoadOlder fetches one page strictly older than the oldest held acked
// message and merges it, skipping ids already held. The conversation must be
// open when the fetch starts and still be open, without having been closed
// in between, when it returns; otherwise the page is dropped and
// ErrConversationClosed is returned.
func (s *Store) LoadOlder(ctx context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	l, ok := s.logs[conversationID]
	if !ok || !l.open {
		s.mu.Unlock()
		return 0, ErrConversationClosed
	}
	if l.exhausted || s.fetch == nil {
		s.mu.Unlock()
		return 0, nil
	}
	epoch := l.epoch
	before := s.now()
	for _, m := range l.msgs {
		if m.Acked() {
			before = m.ServerAt
			break
		}
	}
	s.mu.Unlock()

	page, err := s.fetch.FetchMessages(ctx, conversationID, before, s.pageSize)
	if err != nil {
		return 0, fmt.Errorf("messages: load older %s: %w", conversationID, err)
	}

	s.mu.Lock()
	if !l.open || l.epoch != epoch {
		s.mu.Unlock()
		s.log.Debug("discarding page for closed conversation", "conversation_id", conversationID)
		return 0, ErrConversationClosed
	}
	if len(page) < s.pageSize {
		l.exhausted = true
	}
	added := s.mergeLocked(conversationID, page)
	s.mu.Unlock()

	for _, m := range added {
		s.publish(m)
	}
	return len(added), nil
}

// Reset replaces the acked history of a conversation with page, keeping
// messages still waiting for an ack. Used after the server reports a gap.
func (s *Store) Reset(conversationID string, page []models.Message) int {
	s.mu.Lock()
	l := s.logFor(conversationID)
	kept := l.msgs[:0]
	for _, m := range l.msgs {
		if m.Acked() {
			delete(s.byID, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	l.msgs = kept
	l.exhausted = len(page) < s.pageSize
	added := s.mergeLocked(conversationID, page)
	s.mu.Unlock()

	s.bus.Publish(events.Change{Topic: events.TopicMessage, ConversationID: conversationID})
	return len(added)
}

func (s *Store) mergeLocked(conversationID string, page []models.Message) []models.Message {
	l := s.logFor(conversationID)
	var added []models.Message
	for i := range page {
		srv := page[i]
		if srv.ID == "" {
			continue
		}
		if _, ok := s.byID[srv.ID]; ok {
			continue
		}
		if srv.CorrelationID != "" {
			if _, ok := s.byCorr[srv.CorrelationID]; ok {
				continue
			}
		}
		m := srv.Clone()
		m.ConversationID = conversationID
		if m.ServerAt.IsZero() {
			continue
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.ServerAt
		}
		if m.ModifiedAt.IsZero() {
			m.ModifiedAt = m.ServerAt
		}
		if !models.StateSent.Advances(m.State) {
			m.State = models.StateSent
		}
		l.insert(&m)
		s.byID[m.ID] = &m
		added = append(added, m.Clone())
	}
	return added
}

func (s *Store) publish(m models.Message) {
	s.bus.Publish(events.Change{
		Topic:          events.TopicMessage,
		ConversationID: m.ConversationID,
		ID:             m.Key(),
		Data:           m,
	})
}
