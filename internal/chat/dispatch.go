package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/conversations"
	"github.com/ageniuscoder/mmchat/client/internal/messages"
	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/ageniuscoder/mmchat/client/internal/storage"
)

// dispatchTable is the only place inbound events reach the stores.
func (m *Manager) dispatchTable() map[string]func(ctx context.Context, ev Event) error {
	return map[string]func(ctx context.Context, ev Event) error{
		EventNewMessage:          m.onNewMessage,
		EventMessageAck:          m.onAck,
		EventMessageEdited:       m.onEdited,
		EventMessageDeleted:      m.onDeleted,
		EventMessageReaction:     m.onReaction,
		EventReadReceipt:         m.onReadReceipt,
		EventDeliveryReceipt:     m.onDeliveryReceipt,
		EventTypingStart:         m.onTyping,
		EventTypingStop:          m.onTyping,
		EventPresenceUpdate:      m.onPresence,
		EventResyncRequired:      m.onResyncRequired,
		EventConversationUpdated: m.onConversationUpdated,
		EventConversationRemoved: m.onConversationRemoved,
	}
}

// dispatch decodes one frame and applies it. Malformed frames and events
// about messages this client never loaded are logged and dropped.
func (m *Manager) dispatch(ctx context.Context, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.Metrics.MalformedDrops.Inc()
			m.log.Error("inbound event panicked", "panic", r)
		}
	}()

	ev, err := DecodeEvent(frame)
	if err != nil {
		m.Metrics.MalformedDrops.Inc()
		m.log.Warn("dropping inbound frame", "error", err)
		return
	}
	h, ok := m.handlers[ev.Type]
	if !ok {
		return
	}
	if err := h(ctx, ev); err != nil {
		switch {
		case errors.Is(err, ErrMalformedEvent):
			m.Metrics.MalformedDrops.Inc()
			m.log.Warn("dropping inbound event", "type", ev.Type, "error", err)
		case errors.Is(err, messages.ErrUnknownMessage), errors.Is(err, conversations.ErrUnknownConversation):
			m.log.Debug("event for unloaded record", "type", ev.Type, "error", err)
		default:
			m.log.Warn("inbound event failed", "type", ev.Type, "error", err)
		}
		return
	}
	m.Metrics.InboundEvents.WithLabelValues(ev.Type).Inc()
}

func (m *Manager) eventTime(ev Event) time.Time {
	if !ev.At.IsZero() {
		return ev.At
	}
	return time.Now().UTC()
}

func (m *Manager) onNewMessage(ctx context.Context, ev Event) error {
	msg, inserted, err := m.Messages.ApplyInbound(*ev.Message)
	if err != nil {
		return err
	}
	if _, created := m.Conversations.Ensure(msg.ConversationID); created {
		go m.hydrate(ctx)
	}
	m.refreshPreview(msg.ConversationID)
	m.advanceCursor(ctx, msg.ConversationID, msg.ServerAt)
	if msg.CorrelationID != "" {
		m.ackResolved(msg.CorrelationID, msg.ID)
	}
	if !inserted || msg.SenderID == m.Self {
		return nil
	}
	m.Conversations.IncrementUnread(msg.ConversationID, m.Self)
	if m.Typing != nil {
		m.Typing.OnRemoteTyping(msg.ConversationID, msg.SenderID, false, 0)
	}
	return nil
}

// onAck confirms an intent. For a send the optimistic message takes its
// server id and slot. The waiting sender, if any, is woken last.
func (m *Manager) onAck(ctx context.Context, ev Event) error {
	if ev.Error == "" && ev.Message != nil {
		if _, ok := m.Messages.Get(ev.CorrelationID); ok {
			msg, err := m.Messages.ApplyAck(ev.CorrelationID, *ev.Message)
			if err != nil {
				return err
			}
			m.refreshPreview(msg.ConversationID)
			m.advanceCursor(ctx, msg.ConversationID, msg.ServerAt)
			m.ackResolved(ev.CorrelationID, msg.ID)
		}
	}

	m.mu.Lock()
	ch, waiting := m.pending[ev.CorrelationID]
	m.mu.Unlock()
	if waiting {
		select {
		case ch <- ev:
		default:
		}
		return nil
	}
	if ev.Error == "" {
		// late ack for an intent nobody waits on any more
		m.Queue.Remove(ctx, ev.CorrelationID)
		if _, err := m.Queue.Abandon(ctx, ev.CorrelationID); err == nil {
			m.log.Info("late ack cleared failed action", "correlation_id", ev.CorrelationID)
		}
	}
	return nil
}

// ackResolved records the server id of an acked correlation id so queued
// intents that still reference the correlation id can be rewritten.
func (m *Manager) ackResolved(correlationID, messageID string) {
	if messageID == "" {
		return
	}
	m.mu.Lock()
	m.resolved[correlationID] = messageID
	m.mu.Unlock()
}

func (m *Manager) onEdited(ctx context.Context, ev Event) error {
	msg, applied, err := m.Messages.ApplyEdit(ev.MessageID, ev.Content, m.eventTime(ev))
	if err != nil {
		return err
	}
	if applied {
		m.refreshPreview(msg.ConversationID)
	}
	m.advanceCursor(ctx, msg.ConversationID, ev.At)
	return nil
}

func (m *Manager) onDeleted(ctx context.Context, ev Event) error {
	msg, applied, err := m.Messages.ApplyDelete(ev.MessageID, m.eventTime(ev))
	if err != nil {
		return err
	}
	if applied {
		m.refreshPreview(msg.ConversationID)
	}
	m.advanceCursor(ctx, msg.ConversationID, ev.At)
	return nil
}

func (m *Manager) onReaction(ctx context.Context, ev Event) error {
	msg, err := m.Messages.ApplyReaction(ev.MessageID, ev.UserID, reactionOf(ev.ReactionType, ev.Emoji, m.eventTime(ev)))
	if err != nil {
		return err
	}
	m.advanceCursor(ctx, msg.ConversationID, ev.At)
	return nil
}

func (m *Manager) onReadReceipt(ctx context.Context, ev Event) error {
	changed, err := m.Messages.MarkRead(ev.MessageID, ev.UserID, m.eventTime(ev))
	if err != nil {
		return err
	}
	if msg, ok := m.Messages.Get(ev.MessageID); ok {
		if ev.UserID == m.Self {
			// read on another device
			_ = m.Conversations.ClearUnread(msg.ConversationID, m.Self)
		}
		m.advanceCursor(ctx, msg.ConversationID, ev.At)
	}
	m.log.Debug("read receipt applied", "message_id", ev.MessageID, "user_id", ev.UserID, "changed", len(changed))
	return nil
}

func (m *Manager) onDeliveryReceipt(ctx context.Context, ev Event) error {
	_, _, err := m.Messages.MarkDelivered(ev.MessageID)
	return err
}

func (m *Manager) onTyping(ctx context.Context, ev Event) error {
	if m.Typing == nil || ev.UserID == m.Self {
		return nil
	}
	ttl := m.opts.TypingTTL
	if ev.TTLMillis > 0 {
		ttl = time.Duration(ev.TTLMillis) * time.Millisecond
	}
	m.Typing.OnRemoteTyping(ev.ConversationID, ev.UserID, ev.Type == EventTypingStart, ttl)
	return nil
}

func (m *Manager) onPresence(ctx context.Context, ev Event) error {
	if m.Presence == nil {
		return nil
	}
	m.Presence.ApplyRemote(models.Presence{UserID: ev.UserID, Status: ev.Status, LastSeen: ev.LastSeen})
	return nil
}

func (m *Manager) onResyncRequired(ctx context.Context, ev Event) error {
	m.log.Warn("server asked for a resync", "conversation_id", ev.ConversationID)
	m.resync(ctx, ev.ConversationID)
	return nil
}

// resync replaces the acked history of a conversation with the newest
// page from the server. It runs on the dispatch path so no later event for
// the conversation is applied before the page lands. A failure is left on
// the conversation as resync_failed.
func (m *Manager) resync(ctx context.Context, conversationID string) {
	if m.Remote == nil {
		return
	}
	m.Conversations.SetSyncState(conversationID, models.SyncResyncing, nil)

	fctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()
	page, err := m.Remote.FetchMessages(fctx, conversationID, time.Now().UTC(), m.opts.PageSize)
	if err != nil {
		m.Metrics.Resyncs.WithLabelValues("failed").Inc()
		m.log.Error("resync failed", "conversation_id", conversationID, "error", err)
		m.Conversations.SetSyncState(conversationID, models.SyncResyncFailed, fmt.Errorf("%w: %v", ErrResyncRequired, err))
		return
	}

	n := m.Messages.Reset(conversationID, page)
	var newest time.Time
	for _, msg := range page {
		if msg.ServerAt.After(newest) {
			newest = msg.ServerAt
		}
	}
	if !newest.IsZero() {
		m.mu.Lock()
		m.cursors[conversationID] = newest
		m.mu.Unlock()
		m.storeCursor(ctx, conversationID, newest)
	}
	m.refreshPreview(conversationID)
	m.Conversations.SetSyncState(conversationID, models.SyncOK, nil)
	m.Metrics.Resyncs.WithLabelValues("ok").Inc()
	m.log.Info("resync done", "conversation_id", conversationID, "messages", n)
}

func (m *Manager) onConversationUpdated(ctx context.Context, ev Event) error {
	m.Conversations.Upsert(*ev.Conversation)
	return nil
}

func (m *Manager) onConversationRemoved(ctx context.Context, ev Event) error {
	m.Messages.Close(ev.ConversationID)
	if !m.Conversations.Remove(ev.ConversationID) {
		return fmt.Errorf("%w: %s", conversations.ErrUnknownConversation, ev.ConversationID)
	}
	m.mu.Lock()
	delete(m.cursors, ev.ConversationID)
	m.mu.Unlock()
	if m.KV != nil {
		_ = m.KV.Delete(ctx, storage.KeyCursor(ev.ConversationID))
	}
	return nil
}
