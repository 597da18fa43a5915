package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump drains the connection's outbound queue onto the socket. It is
// the only writer of data frames.
func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		deadline := time.Now().Add(ctl.opts.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	}()
	for {
		f, ok := c.conn.Queue().Next(ctx)
		if !ok {
			log.Info().Str("module", "signal").Str("cid", string(c.ID())).Uint64("dropped", c.conn.Queue().Dropped()).Msg("writePump done")
			return
		}
		if err := c.ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, f.Data); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("cid", string(c.ID())).Msg("writePump write error")
			return
		}
	}
}

// pingLoop keeps the socket alive. WriteControl is safe alongside writePump.
func (ctl *SignalWSController) pingLoop(ctx context.Context, c *WsSignalConn) {
	t := time.NewTicker(ctl.opts.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(c.ID())).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	uid := c.conn.Identity().ID
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(c.ID())).Msg("readPump closing")
		ctl.Orch.Disconnect(context.Background(), c.ID())
		if len(ctl.Orch.Registry.ConnectionsOf(uid)) == 0 {
			ctl.limiter.Forget(uid)
		}
	}()

	_ = c.ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && ctx.Err() == nil {
				log.Error().Err(err).Str("module", "signal").Str("cid", string(c.ID())).Msg("readPump read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(ctx, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.replyError(c, fmt.Errorf("%w: bad json", domain.ErrMalformedEvent))
		return
	}

	switch env.Type {
	case "joinRoom":
		ctl.handleJoin(ctx, c, env.Data)
	case "leaveRoom":
		ctl.handleLeave(ctx, c, env.Data)
	case "typing":
		ctl.handleTyping(ctx, c, env.Data, true)
	case "stopTyping":
		ctl.handleTyping(ctx, c, env.Data, false)
	case "sendMessage":
		ctl.handleSendMessage(ctx, c, env.Data)
	case "ping":
		ctl.handlePing(c)
	case "auth":
		log.Debug().Str("module", "signal").Str("cid", string(c.ID())).Msg("auth after handshake ignored")
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.replyError(c, fmt.Errorf("%w: unknown event %q", domain.ErrMalformedEvent, env.Type))
	}
}

// decode unmarshals and validates an event payload.
func (ctl *SignalWSController) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if err := ctl.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is %s", domain.ErrMalformedEvent, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return nil
}

// reply queues f for c only, through the dispatcher so overflow follows the
// same policy as broadcasts.
func (ctl *SignalWSController) reply(c *WsSignalConn, f core.Frame) {
	ctl.Orch.Dispatcher.Deliver([]*core.Connection{c.conn}, f)
}

func (ctl *SignalWSController) replyError(c *WsSignalConn, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("cid", string(c.ID())).Msg("event rejected")
	ctl.reply(c, core.ErrorFrame(err))
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, kind string, payload any) {
	f, err := core.EncodeFrame(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	ctl.reply(c, f)
}
