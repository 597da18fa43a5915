package domain

import "time"

type RoomID string

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

type Room struct {
	ID          RoomID     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
	Owner       UserID     `json:"owner"`
	Members     []UserID   `json:"members"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func (r *Room) IsPrivate() bool { return r.Visibility == Private }

func (r *Room) HasMember(id UserID) bool {
	for _, m := range r.Members {
		if m == id {
			return true
		}
	}
	return false
}

// RoomMembers is the persisted membership view the hub needs for
// authorization and presence.
type RoomMembers struct {
	Visibility Visibility
	Members    []Identity
}

func (rm RoomMembers) Contains(id UserID) bool {
	for _, m := range rm.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// PresenceEntry is one line of a presence snapshot.
type PresenceEntry struct {
	Identity Identity `json:"identity"`
	IsOnline bool     `json:"isOnline"`
}

// PresenceSnapshot is derived on demand, never stored.
type PresenceSnapshot []PresenceEntry
