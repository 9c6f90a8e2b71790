package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/models"
)

// Outbound intent types.
const (
	IntentJoin        = "join_conversation"
	IntentLeave       = "leave_conversation"
	IntentSend        = "send_message"
	IntentEdit        = "edit_message"
	IntentDelete      = "delete_message"
	IntentReact       = "react_message"
	IntentMarkRead    = "mark_read"
	IntentTyping      = "typing"
	IntentHeartbeat   = "heartbeat"
	IntentSetPresence = "set_presence"
	IntentSync        = "sync"
)

// Inbound event types.
const (
	EventNewMessage          = "new_message"
	EventMessageAck          = "message_ack"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventMessageReaction     = "message_reaction"
	EventReadReceipt         = "read_receipt"
	EventDeliveryReceipt     = "delivery_receipt"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventPresenceUpdate      = "presence_update"
	EventResyncRequired      = "resync_required"
	EventConversationUpdated = "conversation_updated"
	EventConversationRemoved = "conversation_removed"
)

// Cursor is the last event time applied for one conversation.
type Cursor struct {
	ConversationID string    `json:"conversation_id"`
	Since          time.Time `json:"since"`
}

// Intent is one outbound frame. Which fields are set depends on Type.
type Intent struct {
	Type           string             `json:"type" validate:"required"`
	CorrelationID  string             `json:"correlation_id,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	MessageID      string             `json:"message_id,omitempty"`
	Content        string             `json:"content,omitempty"`
	Kind           models.MessageKind `json:"kind,omitempty" validate:"omitempty,oneof=text image file voice video"`
	Media          *models.MediaRef   `json:"media,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	ReactionType   string             `json:"reaction_type,omitempty"`
	Emoji          *string            `json:"emoji,omitempty"` // nil removes the reaction
	IsTyping       bool               `json:"is_typing,omitempty"`
	Status         models.Status      `json:"status,omitempty"`
	Cursors        []Cursor           `json:"cursors,omitempty"`
}

// Event is one inbound frame.
type Event struct {
	Type           string               `json:"type"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	MessageID      string               `json:"message_id,omitempty"`
	UserID         string               `json:"user_id,omitempty"`
	Message        *models.Message      `json:"message,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
	Content        string               `json:"content,omitempty"`
	ReactionType   string               `json:"reaction_type,omitempty"`
	Emoji          *string              `json:"emoji,omitempty"`
	Status         models.Status        `json:"status,omitempty"`
	LastSeen       time.Time            `json:"last_seen,omitempty"`
	At             time.Time            `json:"at,omitempty"`
	TTLMillis      int64                `json:"ttl_ms,omitempty"`
	Error          string               `json:"error,omitempty"` // set on a rejected intent's ack
}

// needsAck lists the intents the server confirms with message_ack.
func needsAck(t string) bool {
	switch t {
	case IntentSend, IntentEdit, IntentDelete, IntentReact, IntentMarkRead:
		return true
	}
	return false
}

// DecodeEvent parses a frame and checks that the fields its type needs are
// present. Anything else is ErrMalformedEvent.
func DecodeEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	missing := func(field string) (Event, error) {
		return Event{}, fmt.Errorf("%w: %s without %s", ErrMalformedEvent, ev.Type, field)
	}
	switch ev.Type {
	case EventNewMessage:
		if ev.Message == nil || ev.Message.ID == "" || ev.Message.ConversationID == "" {
			return missing("message")
		}
	case EventMessageAck:
		if ev.CorrelationID == "" {
			return missing("correlation_id")
		}
	case EventMessageEdited, EventMessageDeleted, EventDeliveryReceipt:
		if ev.MessageID == "" {
			return missing("message_id")
		}
	case EventMessageReaction, EventReadReceipt:
		if ev.MessageID == "" || ev.UserID == "" {
			return missing("message_id/user_id")
		}
	case EventTypingStart, EventTypingStop:
		if ev.ConversationID == "" || ev.UserID == "" {
			return missing("conversation_id/user_id")
		}
	case EventPresenceUpdate:
		if ev.UserID == "" || !ev.Status.Valid() {
			return missing("user_id/status")
		}
	case EventResyncRequired, EventConversationRemoved:
		if ev.ConversationID == "" {
			return missing("conversation_id")
		}
	case EventConversationUpdated:
		if ev.Conversation == nil || ev.Conversation.ID == "" {
			return missing("conversation")
		}
	case "":
		return Event{}, fmt.Errorf("%w: frame without type", ErrMalformedEvent)
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, ev.Type)
	}
	return ev, nil
}
