package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type connEntry struct {
	conn  *core.Connection
	rooms map[domain.RoomID]struct{}
}

// Registry tracks every live connection and the rooms it participates in.
// Its lock is a leaf: the registry never calls out while holding it.
type Registry struct {
	mu            sync.RWMutex
	conns         map[core.ConnectionID]*connEntry
	byUser        map[domain.UserID]map[core.ConnectionID]struct{}
	singleSession bool
}

type RegistryOption func(*Registry)

// WithSingleSession rejects a second live connection for the same identity.
func WithSingleSession(enabled bool) RegistryOption {
	return func(r *Registry) { r.singleSession = enabled }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conns:  make(map[core.ConnectionID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnectionID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register admits an authenticated connection and moves it to Active.
func (r *Registry) Register(conn *core.Connection) (core.ConnectionID, error) {
	uid := conn.Identity().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.singleSession && len(r.byUser[uid]) > 0 {
		log.Warn().Str("module", "app.registry").Str("user", string(uid)).Msg("duplicate session rejected")
		return "", domain.ErrDuplicateSession
	}
	if err := conn.Activate(); err != nil {
		return "", err
	}
	r.conns[conn.ID()] = &connEntry{conn: conn, rooms: make(map[domain.RoomID]struct{})}
	if r.byUser[uid] == nil {
		r.byUser[uid] = make(map[core.ConnectionID]struct{})
	}
	r.byUser[uid][conn.ID()] = struct{}{}
	log.Info().Str("module", "app.registry").Str("cid", string(conn.ID())).Str("user", string(uid)).Int("total", len(r.conns)).Msg("registered connection")
	return conn.ID(), nil
}

func (r *Registry) Lookup(cid core.ConnectionID) (*core.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.conn, nil
	}
	return nil, domain.ErrConnectionNotFound
}

// Unregister removes cid and returns the rooms it was in. A second call for
// the same id reports ok=false and changes nothing.
func (r *Registry) Unregister(cid core.ConnectionID) (*core.Connection, []domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil, nil, false
	}
	delete(r.conns, cid)
	uid := e.conn.Identity().ID
	delete(r.byUser[uid], cid)
	if len(r.byUser[uid]) == 0 {
		delete(r.byUser, uid)
	}
	e.conn.MarkClosing()
	rooms := sortedRooms(e.rooms)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Int("rooms", len(rooms)).Int("total", len(r.conns)).Msg("unregistered connection")
	return e.conn, rooms, true
}

// TrackRoom records that cid participates in room. added is false when it
// already did.
func (r *Registry) TrackRoom(cid core.ConnectionID, room domain.RoomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false, domain.ErrConnectionNotFound
	}
	if _, ok := e.rooms[room]; ok {
		return false, nil
	}
	e.rooms[room] = struct{}{}
	return true, nil
}

func (r *Registry) UntrackRoom(cid core.ConnectionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok {
		delete(e.rooms, room)
	}
}

func (r *Registry) RoomsOf(cid core.ConnectionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil
	}
	return sortedRooms(e.rooms)
}

func (r *Registry) ConnectionsOf(uid domain.UserID) []*core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Connection, 0, len(r.byUser[uid]))
	for cid := range r.byUser[uid] {
		out = append(out, r.conns[cid].conn)
	}
	return out
}

func (r *Registry) All() []*core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.conns, func(_ core.ConnectionID, e *connEntry) *core.Connection {
		return e.conn
	})
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func sortedRooms(set map[domain.RoomID]struct{}) []domain.RoomID {
	out := lo.Keys(set)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
