package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// roomSlot is the critical section of one room. The slot lives while a
// caller holds a reference or the room has live members; otherwise it is
// dropped, which unloads the room.
type roomSlot struct {
	mu   sync.Mutex
	refs int
	live *core.LiveRoom
}

// Hub owns live room state. Mutating calls for one room are serialized under
// that room's slot; calls for different rooms run concurrently.
type Hub struct {
	store      core.Store
	registry   *Registry
	dispatcher *Dispatcher
	maxContent int

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomSlot
}

type HubOption func(*Hub)

func WithMaxContentLength(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.maxContent = n
		}
	}
}

func NewHub(store core.Store, registry *Registry, dispatcher *Dispatcher, opts ...HubOption) *Hub {
	h := &Hub{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		maxContent: domain.DefaultMaxContentLength,
		rooms:      make(map[domain.RoomID]*roomSlot),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) acquire(id domain.RoomID) *roomSlot {
	h.mu.Lock()
	slot, ok := h.rooms[id]
	if !ok {
		slot = &roomSlot{live: core.NewLiveRoom(id)}
		h.rooms[id] = slot
	}
	slot.refs++
	h.mu.Unlock()

	slot.mu.Lock()
	return slot
}

// acquireLoaded is acquire for readers that must not load a room.
func (h *Hub) acquireLoaded(id domain.RoomID) *roomSlot {
	h.mu.Lock()
	slot, ok := h.rooms[id]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	slot.refs++
	h.mu.Unlock()

	slot.mu.Lock()
	return slot
}

func (h *Hub) release(id domain.RoomID, slot *roomSlot) {
	empty := slot.live.Empty()
	slot.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && empty && h.rooms[id] == slot {
		delete(h.rooms, id)
		log.Debug().Str("module", "app.hub").Str("room", string(id)).Msg("room unloaded")
	}
}

// Join adds cid to the room's live membership and returns the presence
// snapshot. Joining twice is idempotent and does not re-announce.
func (h *Hub) Join(ctx context.Context, roomID domain.RoomID, cid core.ConnectionID) (domain.PresenceSnapshot, error) {
	conn, err := h.registry.Lookup(cid)
	if err != nil {
		return nil, err
	}
	return h.join(ctx, roomID, conn)
}

// join runs under the room lock. The registry's room set is updated while
// the lock is held, so it always matches the live set once the lock drops.
func (h *Hub) join(ctx context.Context, roomID domain.RoomID, conn *core.Connection) (domain.PresenceSnapshot, error) {
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)
	live := slot.live

	if !conn.Alive() {
		return nil, domain.ErrConnectionNotFound
	}
	me := conn.Identity()
	members, err := h.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if members.Visibility == domain.Private && !members.Contains(me.ID) {
		log.Warn().Str("module", "app.hub").Str("room", string(roomID)).Str("user", string(me.ID)).Msg("private room join denied")
		return nil, domain.ErrForbidden
	}
	if live.Has(conn.ID()) {
		return live.Presence(members.Members), nil
	}
	if _, err := h.registry.TrackRoom(conn.ID(), roomID); err != nil {
		return nil, err
	}
	if !members.Contains(me.ID) {
		if err := h.store.AddMember(ctx, roomID, me.ID); err != nil {
			h.registry.UntrackRoom(conn.ID(), roomID)
			return nil, domain.Persistence("add member", err)
		}
		members.Members = append(members.Members, me)
	}

	live.Add(conn)
	snap := live.Presence(members.Members)
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("cid", string(conn.ID())).Str("user", string(me.ID)).Int("live", live.Len()).Msg("joined room")

	h.broadcast(live.Others(conn.ID()), core.KindUserJoined, core.UserJoinedPayload{RoomID: roomID, Identity: me})
	h.broadcast(live.Connections(), core.KindUpdateUsers, core.UpdateUsersPayload{RoomID: roomID, Users: snap})
	return snap, nil
}

// Leave removes cid from the room. It reports false, and broadcasts
// nothing, when cid was not a live member.
func (h *Hub) Leave(ctx context.Context, roomID domain.RoomID, cid core.ConnectionID) bool {
	slot := h.acquireLoaded(roomID)
	if slot == nil {
		return false
	}
	defer h.release(roomID, slot)
	conn, ok := slot.live.Remove(cid)
	if ok {
		h.registry.UntrackRoom(cid, roomID)
		h.departed(ctx, slot.live, []*core.Connection{conn})
	}
	return ok
}

// departed runs the presence side effects for connections that just left.
func (h *Hub) departed(ctx context.Context, live *core.LiveRoom, gone []*core.Connection) {
	roomID := live.ID()
	remaining := live.Connections()
	for _, c := range gone {
		id := c.Identity()
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("cid", string(c.ID())).Str("user", string(id.ID)).Int("live", live.Len()).Msg("left room")
		if !live.Online(id.ID) && live.ClearTyping(id.ID) {
			h.broadcast(remaining, core.KindUserStoppedTyping, core.TypingPayload{RoomID: roomID, Username: id.Username})
		}
		h.broadcast(remaining, core.KindUserLeft, core.UserLeftPayload{RoomID: roomID, IdentityID: id.ID})
	}
	if len(remaining) == 0 {
		return
	}
	members, err := h.members(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("room", string(roomID)).Msg("presence after leave")
		return
	}
	h.broadcast(remaining, core.KindUpdateUsers, core.UpdateUsersPayload{RoomID: roomID, Users: live.Presence(members.Members)})
}

// SetTyping records the typing state of cid's identity and tells the other
// members. Every call broadcasts.
func (h *Hub) SetTyping(_ context.Context, roomID domain.RoomID, cid core.ConnectionID, typing bool) error {
	conn, err := h.registry.Lookup(cid)
	if err != nil {
		return err
	}
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)
	live := slot.live

	if !live.Has(cid) {
		return domain.ErrNotInRoom
	}
	me := conn.Identity()
	live.SetTyping(me.ID, typing)
	kind := core.KindUserStoppedTyping
	if typing {
		kind = core.KindUserTyping
	}
	h.broadcast(live.Others(cid), kind, core.TypingPayload{RoomID: roomID, Username: me.Username})
	return nil
}

// PostMessage persists content from cid and fans it out to every live
// member, flagging the copies that go to the sender's own connections.
func (h *Hub) PostMessage(ctx context.Context, roomID domain.RoomID, cid core.ConnectionID, content string) (domain.Message, error) {
	conn, err := h.registry.Lookup(cid)
	if err != nil {
		return domain.Message{}, err
	}
	content, err = domain.NormalizeContent(content, h.maxContent)
	if err != nil {
		return domain.Message{}, err
	}
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)

	members, err := h.members(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	if members.Visibility == domain.Private && !slot.live.Has(cid) {
		return domain.Message{}, domain.ErrForbidden
	}
	return h.post(ctx, slot.live, conn.Identity(), conn, content)
}

// PostMessageAs is PostMessage for callers without a connection, such as
// the REST API. Private rooms require persisted membership.
func (h *Hub) PostMessageAs(ctx context.Context, roomID domain.RoomID, sender domain.Identity, content string) (domain.Message, error) {
	content, err := domain.NormalizeContent(content, h.maxContent)
	if err != nil {
		return domain.Message{}, err
	}
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)

	members, err := h.members(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	if members.Visibility == domain.Private && !members.Contains(sender.ID) {
		return domain.Message{}, domain.ErrForbidden
	}
	return h.post(ctx, slot.live, sender, nil, content)
}

func (h *Hub) post(ctx context.Context, live *core.LiveRoom, sender domain.Identity, from *core.Connection, content string) (domain.Message, error) {
	rec, err := h.store.CreateMessage(ctx, content, sender.ID, live.ID())
	if err != nil {
		return domain.Message{}, domain.Persistence("create message", err)
	}
	msg := domain.Message{
		ID:        rec.ID,
		RoomID:    live.ID(),
		SenderID:  sender.ID,
		Username:  sender.Username,
		Content:   content,
		Type:      domain.TextMessage,
		CreatedAt: rec.CreatedAt,
	}

	targets := live.Connections()
	if from != nil && !live.Has(from.ID()) {
		targets = append(targets, from)
	}
	h.dispatcher.DeliverEach(targets, func(c *core.Connection) (core.Frame, error) {
		return core.EncodeFrame(core.KindMessage, core.MessagePayload{
			ID:            msg.ID,
			RoomID:        msg.RoomID,
			Content:       msg.Content,
			Username:      msg.Username,
			Timestamp:     msg.CreatedAt,
			IsCurrentUser: c.Identity().ID == sender.ID,
			Type:          msg.Type,
		})
	})
	log.Debug().Str("module", "app.hub").Str("room", string(live.ID())).Str("msg", string(msg.ID)).Int("targets", len(targets)).Msg("message posted")
	return msg, nil
}

// JoinMember adds persisted membership for REST callers. Live members see
// the updated presence.
func (h *Hub) JoinMember(ctx context.Context, roomID domain.RoomID, who domain.Identity) (domain.PresenceSnapshot, error) {
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)
	live := slot.live

	members, err := h.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if members.Contains(who.ID) {
		return live.Presence(members.Members), nil
	}
	if members.Visibility == domain.Private {
		return nil, domain.ErrForbidden
	}
	if err := h.store.AddMember(ctx, roomID, who.ID); err != nil {
		return nil, domain.Persistence("add member", err)
	}
	members.Members = append(members.Members, who)
	snap := live.Presence(members.Members)
	h.broadcast(live.Connections(), core.KindUpdateUsers, core.UpdateUsersPayload{RoomID: roomID, Users: snap})
	return snap, nil
}

// LeaveMember drops persisted membership and detaches every live
// connection of who from the room.
func (h *Hub) LeaveMember(ctx context.Context, roomID domain.RoomID, who domain.Identity) error {
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)
	live := slot.live

	if _, err := h.members(ctx, roomID); err != nil {
		return err
	}
	if err := h.store.RemoveMember(ctx, roomID, who.ID); err != nil {
		return domain.Persistence("remove member", err)
	}
	var gone []*core.Connection
	for _, c := range live.Connections() {
		if c.Identity().ID == who.ID {
			live.Remove(c.ID())
			h.registry.UntrackRoom(c.ID(), roomID)
			gone = append(gone, c)
		}
	}
	if len(gone) > 0 {
		h.departed(ctx, live, gone)
		return nil
	}
	if !live.Empty() {
		if members, err := h.members(ctx, roomID); err == nil {
			h.broadcast(live.Connections(), core.KindUpdateUsers, core.UpdateUsersPayload{RoomID: roomID, Users: live.Presence(members.Members)})
		}
	}
	return nil
}

// Presence computes the snapshot for a room without changing it.
func (h *Hub) Presence(ctx context.Context, roomID domain.RoomID) (domain.PresenceSnapshot, error) {
	slot := h.acquire(roomID)
	defer h.release(roomID, slot)
	members, err := h.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return slot.live.Presence(members.Members), nil
}

// LiveCount returns the number of live connections in a room; zero when
// the room is not loaded.
func (h *Hub) LiveCount(roomID domain.RoomID) int {
	slot := h.acquireLoaded(roomID)
	if slot == nil {
		return 0
	}
	defer h.release(roomID, slot)
	return slot.live.Len()
}

// Members returns the live connection ids of a room.
func (h *Hub) Members(roomID domain.RoomID) []core.ConnectionID {
	slot := h.acquireLoaded(roomID)
	if slot == nil {
		return nil
	}
	defer h.release(roomID, slot)
	return lo.Map(slot.live.Connections(), func(c *core.Connection, _ int) core.ConnectionID { return c.ID() })
}

// Loaded lists rooms that currently hold live state.
func (h *Hub) Loaded() []core.RoomInfo {
	h.mu.Lock()
	ids := lo.Keys(h.rooms)
	h.mu.Unlock()

	out := make([]core.RoomInfo, 0, len(ids))
	for _, id := range ids {
		if n := h.LiveCount(id); n > 0 {
			out = append(out, core.RoomInfo{ID: id, Connections: n})
		}
	}
	return out
}

func (h *Hub) members(ctx context.Context, roomID domain.RoomID) (domain.RoomMembers, error) {
	members, err := h.store.GetRoomMembers(ctx, roomID)
	if err == nil {
		return members, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoomMembers{}, fmt.Errorf("room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return domain.RoomMembers{}, domain.Persistence("get room members", err)
}

func (h *Hub) broadcast(targets []*core.Connection, kind string, payload any) {
	if len(targets) == 0 {
		return
	}
	f, err := core.EncodeFrame(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("kind", kind).Msg("encode frame")
		return
	}
	h.dispatcher.Deliver(targets, f)
}
