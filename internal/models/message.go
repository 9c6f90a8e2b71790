package models

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
	KindVoice MessageKind = "voice"
	KindVideo MessageKind = "video"
)

// SendState tracks an outgoing message through the server pipeline.
// pending -> sent -> delivered -> read, with failed as a side exit.
type SendState string

const (
	StatePending   SendState = "pending"
	StateSent      SendState = "sent"
	StateDelivered SendState = "delivered"
	StateRead      SendState = "read"
	StateFailed    SendState = "failed"
)

func (s SendState) rank() int {
	switch s {
	case StateSent:
		return 1
	case StateDelivered:
		return 2
	case StateRead:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next goes forward.
func (s SendState) Advances(next SendState) bool {
	return next.rank() > s.rank()
}

// MediaRef is what the external uploader hands back for a media message.
type MediaRef struct {
	URL      string  `json:"url"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration,omitempty"` // seconds, voice/video only
}

type Message struct {
	ID             string               `json:"id,omitempty"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Content        string               `json:"content"`
	Kind           MessageKind          `json:"kind"`
	Media          *MediaRef            `json:"media,omitempty"`
	ReplyTo        string               `json:"reply_to,omitempty"`
	Edited         bool                 `json:"edited"`
	Deleted        bool                 `json:"deleted"`
	State          SendState            `json:"state"`
	CreatedAt      time.Time            `json:"created_at"`
	ServerAt       time.Time            `json:"server_at"`
	ModifiedAt     time.Time            `json:"modified_at"`
	Reactions      map[string]Reaction  `json:"reactions,omitempty"`
	ReadBy         map[string]time.Time `json:"read_by,omitempty"`
}

// Acked reports whether the server has assigned an id and timestamp.
func (m *Message) Acked() bool {
	return m.ID != "" && !m.ServerAt.IsZero()
}

// OrderTime is the timestamp the message is sequenced by.
func (m *Message) OrderTime() time.Time {
	if !m.ServerAt.IsZero() {
		return m.ServerAt
	}
	return m.CreatedAt
}

// Key returns the id the message is addressable by: server id once acked,
// correlation id before that.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.CorrelationID
}

// Before reports whether m sorts ahead of o. Acked messages order by server
// time; unacked ones float at the tail ordered by local creation time.
func (m *Message) Before(o *Message) bool {
	ma, oa := !m.ServerAt.IsZero(), !o.ServerAt.IsZero()
	if ma != oa {
		return ma
	}
	mt, ot := m.OrderTime(), o.OrderTime()
	if !mt.Equal(ot) {
		return mt.Before(ot)
	}
	if ma {
		return m.ID < o.ID
	}
	return m.CorrelationID < o.CorrelationID
}

// Clone returns a deep copy safe to hand outside the store.
func (m *Message) Clone() Message {
	c := *m
	if m.Media != nil {
		media := *m.Media
		c.Media = &media
	}
	if m.Reactions != nil {
		c.Reactions = make(map[string]Reaction, len(m.Reactions))
		for k, v := range m.Reactions {
			c.Reactions[k] = v
		}
	}
	if m.ReadBy != nil {
		c.ReadBy = make(map[string]time.Time, len(m.ReadBy))
		for k, v := range m.ReadBy {
			c.ReadBy[k] = v
		}
	}
	return c
}

const previewLen = 80

// Preview renders the one-line summary used by the conversation list.
func Preview(m *Message) string {
	if m.Deleted {
		return "message deleted"
	}
	switch m.Kind {
	case KindImage:
		return "[image]"
	case KindFile:
		if m.Media != nil && m.Media.Name != "" {
			return "[file] " + m.Media.Name
		}
		return "[file]"
	case KindVoice:
		return "[voice]"
	case KindVideo:
		return "[video]"
	}
	s := strings.TrimSpace(strings.ReplaceAll(m.Content, "\n", " "))
	if r := []rune(s); len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return s
}
