package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeRoom struct {
	visibility domain.Visibility
	members    []domain.Identity
}

type fakeStore struct {
	mu         sync.Mutex
	users      map[domain.UserID]domain.Identity
	rooms      map[domain.RoomID]*fakeRoom
	messages   []domain.Message
	seq        int
	failCreate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[domain.UserID]domain.Identity),
		rooms: make(map[domain.RoomID]*fakeRoom),
	}
}

func (s *fakeStore) addUser(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id.ID] = id
}

func (s *fakeStore) addRoom(id domain.RoomID, vis domain.Visibility, members ...domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[id] = &fakeRoom{visibility: vis, members: members}
	for _, m := range members {
		s.users[m.ID] = m
	}
}

func (s *fakeStore) CreateMessage(_ context.Context, content string, sender domain.UserID, room domain.RoomID) (domain.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return domain.MessageRecord{}, s.failCreate
	}
	s.seq++
	rec := domain.MessageRecord{ID: domain.MessageID(fmt.Sprintf("m%d", s.seq)), CreatedAt: time.Now().UTC()}
	s.messages = append(s.messages, domain.Message{ID: rec.ID, RoomID: room, SenderID: sender, Content: content, CreatedAt: rec.CreatedAt})
	return rec, nil
}

func (s *fakeStore) GetRoomMembers(_ context.Context, room domain.RoomID) (domain.RoomMembers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return domain.RoomMembers{}, domain.ErrRoomNotFound
	}
	return domain.RoomMembers{Visibility: r.visibility, Members: append([]domain.Identity(nil), r.members...)}, nil
}

func (s *fakeStore) AddMember(_ context.Context, room domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, m := range r.members {
		if m.ID == user {
			return nil
		}
	}
	id, ok := s.users[user]
	if !ok {
		return errors.New("unknown user")
	}
	r.members = append(r.members, id)
	return nil
}

func (s *fakeStore) RemoveMember(_ context.Context, room domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return domain.ErrRoomNotFound
	}
	kept := r.members[:0]
	for _, m := range r.members {
		if m.ID != user {
			kept = append(kept, m)
		}
	}
	r.members = kept
	return nil
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var (
	alice = domain.Identity{ID: "u-alice", Username: "alice"}
	bob   = domain.Identity{ID: "u-bob", Username: "bob"}
	carol = domain.Identity{ID: "u-carol", Username: "carol"}
)

type fixture struct {
	store *fakeStore
	reg   *Registry
	disp  *Dispatcher
	hub   *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	for _, id := range []domain.Identity{alice, bob, carol} {
		store.addUser(id)
	}
	reg := NewRegistry()
	disp := NewDispatcher(SimplePolicy{})
	return &fixture{store: store, reg: reg, disp: disp, hub: NewHub(store, reg, disp)}
}

func (f *fixture) connect(t *testing.T, id domain.Identity, queueSize int) *core.Connection {
	t.Helper()
	c := core.NewConnection(queueSize)
	require.NoError(t, c.Authenticate(id))
	_, err := f.reg.Register(c)
	require.NoError(t, err)
	return c
}

type received struct {
	Type string
	Data map[string]any
}

// drain pops every queued frame without blocking.
func drain(t *testing.T, c *core.Connection) []received {
	t.Helper()
	var out []received
	for c.Queue().Len() > 0 {
		f, ok := c.Queue().Next(context.Background())
		if !ok {
			break
		}
		var env struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &env))
		out = append(out, received{Type: env.Type, Data: env.Data})
	}
	return out
}

func types(rs []received) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Type)
	}
	return out
}

func ofType(rs []received, kind string) []received {
	var out []received
	for _, r := range rs {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out
}
