package models

import "time"

type ConversationKind string

const (
	Direct ConversationKind = "direct"
	Group  ConversationKind = "group"
)

type SyncState string

const (
	SyncOK           SyncState = "ok"
	SyncResyncing    SyncState = "resyncing"
	SyncResyncFailed SyncState = "resync_failed"
)

type LastMessage struct {
	MessageID string    `json:"message_id"`
	Preview   string    `json:"preview"`
	At        time.Time `json:"at"`
}

// Conversation references participants by user id only.
type Conversation struct {
	ID           string           `json:"id"`
	Kind         ConversationKind `json:"kind"`
	Participants []string         `json:"participants"`
	Name         string           `json:"name,omitempty"`
	Avatar       string           `json:"avatar,omitempty"`
	LastMessage  *LastMessage     `json:"last_message,omitempty"`
	Unread       map[string]int   `json:"unread"`
	Muted        map[string]bool  `json:"muted,omitempty"`
	Pinned       map[string]bool  `json:"pinned,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`

	// Hydrated is false for placeholders created from an inbound message
	// that referenced an unknown conversation.
	Hydrated  bool      `json:"hydrated"`
	SyncState SyncState `json:"sync_state"`
	SyncError string    `json:"sync_error,omitempty"`
}

// ActivityAt is the timestamp the conversation list is sorted by.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.At
	}
	return c.CreatedAt
}

func (c *Conversation) Clone() Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	out.Unread = copyMap(c.Unread)
	out.Muted = copyMap(c.Muted)
	out.Pinned = copyMap(c.Pinned)
	return out
}

func copyMap[V any](in map[string]V) map[string]V {
	if in == nil {
		return nil
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
