package core

import (
	"sort"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/samber/lo"
)

// LiveRoom is the ephemeral state of a loaded room: connected sessions and
// typing flags. It is not safe for concurrent use; the hub serializes every
// access under the room's critical section.
type LiveRoom struct {
	id      domain.RoomID
	members map[ConnectionID]*Connection
	typing  map[domain.UserID]bool
}

func NewLiveRoom(id domain.RoomID) *LiveRoom {
	return &LiveRoom{
		id:      id,
		members: make(map[ConnectionID]*Connection),
		typing:  make(map[domain.UserID]bool),
	}
}

func (r *LiveRoom) ID() domain.RoomID { return r.id }
func (r *LiveRoom) Len() int          { return len(r.members) }
func (r *LiveRoom) Empty() bool       { return len(r.members) == 0 }

// Add returns true if c was not already a member.
func (r *LiveRoom) Add(c *Connection) bool {
	if _, ok := r.members[c.ID()]; ok {
		return false
	}
	r.members[c.ID()] = c
	return true
}

func (r *LiveRoom) Remove(cid ConnectionID) (*Connection, bool) {
	c, ok := r.members[cid]
	if !ok {
		return nil, false
	}
	delete(r.members, cid)
	return c, true
}

func (r *LiveRoom) Has(cid ConnectionID) bool {
	_, ok := r.members[cid]
	return ok
}

// Connections returns the members ordered by connection id.
func (r *LiveRoom) Connections() []*Connection {
	out := lo.Values(r.members)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *LiveRoom) Others(cid ConnectionID) []*Connection {
	return lo.Filter(r.Connections(), func(c *Connection, _ int) bool {
		return c.ID() != cid
	})
}

func (r *LiveRoom) Online(uid domain.UserID) bool {
	return lo.SomeBy(lo.Values(r.members), func(c *Connection) bool {
		return c.Identity().ID == uid
	})
}

// Presence derives the snapshot over persisted members from live membership.
func (r *LiveRoom) Presence(persisted []domain.Identity) domain.PresenceSnapshot {
	return lo.Map(persisted, func(id domain.Identity, _ int) domain.PresenceEntry {
		return domain.PresenceEntry{Identity: id, IsOnline: r.Online(id.ID)}
	})
}

// SetTyping records the last-written typing state for uid.
func (r *LiveRoom) SetTyping(uid domain.UserID, typing bool) {
	if typing {
		r.typing[uid] = true
		return
	}
	delete(r.typing, uid)
}

// ClearTyping drops the flag and reports whether it was set.
func (r *LiveRoom) ClearTyping(uid domain.UserID) bool {
	was := r.typing[uid]
	delete(r.typing, uid)
	return was
}
