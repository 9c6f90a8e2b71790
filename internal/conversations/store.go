package conversations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ageniuscoder/mmchat/client/internal/events"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

var ErrUnknownConversation = errors.New("conversations: unknown conversation")

// Store is the conversation list, newest activity first.
type Store struct {
	mu      sync.Mutex
	kv      storage.KV
	list    []*models.Conversation
	byID    map[string]*models.Conversation
	focused string
	bus     *events.Bus
	log     *slog.Logger
}

func NewStore(kv storage.KV, bus *events.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:   kv,
		byID: make(map[string]*models.Conversation),
		bus:  bus,
		log:  logger.With("component", "conversations"),
	}
}

// Restore loads the snapshot written by a previous run.
func (s *Store) Restore(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	var snap []models.Conversation
	if err := storage.GetJSON(ctx, s.kv, storage.KeyConversations, &snap); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("conversations: restore: %w", err)
	}
	s.mu.Lock()
	for i := range snap {
		c := snap[i]
		if c.ID == "" {
			continue
		}
		if _, ok := s.byID[c.ID]; ok {
			continue
		}
		s.byID[c.ID] = &c
		s.list = append(s.list, &c)
	}
	s.sortLocked()
	n := len(s.list)
	s.mu.Unlock()

	s.log.Info("restored conversations", "count", n)
	return nil
}

// Upsert stores a server-confirmed conversation. Local unread counters and
// a newer last message survive the merge.
func (s *Store) Upsert(c models.Conversation) models.Conversation {
	s.mu.Lock()
	in := c.Clone()
	in.Hydrated = true
	if in.SyncState == "" {
		in.SyncState = models.SyncOK
	}
	if cur, ok := s.byID[in.ID]; ok {
		if in.Unread == nil {
			in.Unread = cur.Unread
		}
		if cur.LastMessage != nil && (in.LastMessage == nil || cur.LastMessage.At.After(in.LastMessage.At)) {
			in.LastMessage = cur.LastMessage
		}
		if cur.SyncState != models.SyncOK && c.SyncState == "" {
			in.SyncState, in.SyncError = cur.SyncState, cur.SyncError
		}
		*cur = in
	} else {
		p := &in
		s.byID[in.ID] = p
		s.list = append(s.list, p)
	}
	s.sortLocked()
	out := s.byID[in.ID].Clone()
	s.mu.Unlock()

	s.changed(out)
	return out
}

// Ensure returns the conversation, creating an unhydrated placeholder for an
// id first seen on an inbound message.
func (s *Store) Ensure(id string) (models.Conversation, bool) {
	s.mu.Lock()
	if cur, ok := s.byID[id]; ok {
		out := cur.Clone()
		s.mu.Unlock()
		return out, false
	}
	c := s.placeholderLocked(id)
	s.sortLocked()
	out := c.Clone()
	s.mu.Unlock()

	s.changed(out)
	return out, true
}

func (s *Store) placeholderLocked(id string) *models.Conversation {
	c := &models.Conversation{ID: id, Kind: models.Direct, Unread: map[string]int{}, SyncState: models.SyncOK}
	s.byID[id] = c
	s.list = append(s.list, c)
	return c
}

// Touch sets the last message summary and re-sorts.
func (s *Store) Touch(id string, lm models.LastMessage) models.Conversation {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		c = s.placeholderLocked(id)
	}
	c.LastMessage = &lm
	s.sortLocked()
	out := c.Clone()
	s.mu.Unlock()

	s.changed(out)
	return out
}

// IncrementUnread bumps userID's counter unless the conversation is focused.
func (s *Store) IncrementUnread(id, userID string) (int, bool) {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		c = s.placeholderLocked(id)
		s.sortLocked()
	}
	if s.focused == id {
		n := c.Unread[userID]
		s.mu.Unlock()
		return n, false
	}
	if c.Unread == nil {
		c.Unread = make(map[string]int)
	}
	c.Unread[userID]++
	n := c.Unread[userID]
	out := c.Clone()
	s.mu.Unlock()

	s.changed(out)
	return n, true
}

// ClearUnread zeroes userID's counter. Clearing a zero counter is a no-op.
func (s *Store) ClearUnread(id, userID string) error {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	if c.Unread[userID] == 0 {
		s.mu.Unlock()
		return nil
	}
	c.Unread[userID] = 0
	out := c.Clone()
	s.mu.Unlock()

	s.changed(out)
	return nil
}

// Focus marks the conversation the user is looking at. Only one is
// focused at a time.
func (s *Store) Focus(id string) {
	s.mu.Lock()
	s.focused = id
	s.mu.Unlock()
}

// Blur clears the focus if id holds it.
func (s *Store) Blur(id string) {
	s.mu.Lock()
	if s.focused == id {
		s.focused = ""
	}
	s.mu.Unlock()
}

func (s *Store) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Remove destroys a conversation.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	for i, x := range s.list {
		if x == c {
			s.list = append(s.list[:i], s.list[i+1:]...)
			break
		}
	}
	if s.focused == id {
		s.focused = ""
	}
	s.persistLocked()
	s.mu.Unlock()

	s.bus.Publish(events.Change{Topic: events.TopicConversation, ConversationID: id, ID: id})
	return true
}

// SetSyncState records the resync progress of a conversation.
func (s *Store) SetSyncState(id string, state models.SyncState, cause error) {
	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		c = s.placeholderLocked(id)
		s.sortLocked()
	}
	c.SyncState = state
	c.SyncError = ""
	if cause != nil {
		c.SyncError = cause.Error()
	}
	out := c.Clone()
	s.mu.Unlock()

	s.changed(out)
}

func (s *Store) Get(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

// List returns the conversations ordered by last activity, newest first.
func (s *Store) List() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.list))
	for _, c := range s.list {
		out = append(out, c.Clone())
	}
	return out
}

// IDs returns every known conversation id in list order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.list))
	for _, c := range s.list {
		out = append(out, c.ID)
	}
	return out
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.list, func(i, j int) bool {
		a, b := s.list[i].ActivityAt(), s.list[j].ActivityAt()
		if !a.Equal(b) {
			return a.After(b)
		}
		return s.list[i].ID < s.list[j].ID
	})
}

func (s *Store) changed(c models.Conversation) {
	s.mu.Lock()
	s.persistLocked()
	s.mu.Unlock()
	s.bus.Publish(events.Change{Topic: events.TopicConversation, ConversationID: c.ID, ID: c.ID, Data: c})
}

func (s *Store) persistLocked() {
	if s.kv == nil {
		return
	}
	snap := make([]models.Conversation, 0, len(s.list))
	for _, c := range s.list {
		snap = append(snap, c.Clone())
	}
	if err := storage.PutJSON(context.Background(), s.kv, storage.KeyConversations, snap); err != nil {
		s.log.Warn("persist conversations", "error", err)
	}
}
