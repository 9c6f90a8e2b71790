package models

import "time"

type Status string

const (
	Online  Status = "online"
	Away    Status = "away"
	Busy    Status = "busy"
	Offline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case Online, Away, Busy, Offline:
		return true
	}
	return false
}

// User profile fields are immutable here except Status/LastSeen, which only
// the presence tracker writes.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar,omitempty"`
	Status      Status    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

type Presence struct {
	UserID   string    `json:"user_id"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}
