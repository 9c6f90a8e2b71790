package models

import "time"

// Reaction is one user's reaction on one message. A user holds at most one.
type Reaction struct {
	Type  string    `json:"type"`
	Emoji string    `json:"emoji"`
	At    time.Time `json:"at"`
}
