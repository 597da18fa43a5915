package orch

import (
	"context"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Join(ctx context.Context, sid core.ConnectionID, roomID domain.RoomID) (domain.PresenceSnapshot, error) {
	snap, err := o.Rooms.Join(ctx, roomID, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(sid)).Str("room", string(roomID)).Msg("join rejected")
	}
	return snap, err
}

func (o *Orchestrator) Leave(ctx context.Context, sid core.ConnectionID, roomID domain.RoomID) bool {
	return o.Rooms.Leave(ctx, roomID, sid)
}

func (o *Orchestrator) Typing(ctx context.Context, sid core.ConnectionID, roomID domain.RoomID, typing bool) error {
	return o.Rooms.SetTyping(ctx, roomID, sid, typing)
}

func (o *Orchestrator) Send(ctx context.Context, sid core.ConnectionID, roomID domain.RoomID, content string) (domain.Message, error) {
	msg, err := o.Rooms.PostMessage(ctx, roomID, sid, content)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("cid", string(sid)).Str("room", string(roomID)).Msg("message rejected")
	}
	return msg, err
}
