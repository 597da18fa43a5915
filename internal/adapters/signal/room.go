package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type messagePayload struct {
	RoomID  string `json:"roomId" validate:"required,max=128"`
	Content string `json:"content"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, c *WsSignalConn, data json.RawMessage) {
	var p roomPayload
	if err := ctl.decode(data, &p); err != nil {
		ctl.replyError(c, err)
		return
	}
	roomID := domain.RoomID(p.RoomID)
	log.Info().Str("module", "signal").Str("cid", string(c.ID())).Str("room", p.RoomID).Msg("join")
	snap, err := ctl.Orch.Join(ctx, c.ID(), roomID)
	if err != nil {
		ctl.replyError(c, err)
		return
	}
	ctl.sendJSON(c, core.KindJoined, core.JoinedPayload{RoomID: roomID, Users: snap})
}

// handleLeave leaves one room; the socket stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, c *WsSignalConn, data json.RawMessage) {
	var p roomPayload
	if err := ctl.decode(data, &p); err != nil {
		ctl.replyError(c, err)
		return
	}
	roomID := domain.RoomID(p.RoomID)
	left := ctl.Orch.Leave(ctx, c.ID(), roomID)
	log.Info().Str("module", "signal").Str("cid", string(c.ID())).Str("room", p.RoomID).Bool("was_member", left).Msg("leave")
	ctl.sendJSON(c, core.KindLeft, core.LeftPayload{RoomID: roomID})
}

func (ctl *SignalWSController) handleTyping(ctx context.Context, c *WsSignalConn, data json.RawMessage, typing bool) {
	var p roomPayload
	if err := ctl.decode(data, &p); err != nil {
		ctl.replyError(c, err)
		return
	}
	if typing && !ctl.limiter.Allow(c.conn.Identity().ID) {
		ctl.replyError(c, domain.ErrRateLimited)
		return
	}
	if err := ctl.Orch.Typing(ctx, c.ID(), domain.RoomID(p.RoomID), typing); err != nil {
		ctl.replyError(c, err)
	}
}

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, c *WsSignalConn, data json.RawMessage) {
	var p messagePayload
	if err := ctl.decode(data, &p); err != nil {
		ctl.replyError(c, err)
		return
	}
	if !ctl.limiter.Allow(c.conn.Identity().ID) {
		ctl.replyError(c, domain.ErrRateLimited)
		return
	}
	if _, err := ctl.Orch.Send(ctx, c.ID(), domain.RoomID(p.RoomID), p.Content); err != nil {
		ctl.replyError(c, err)
	}
}
