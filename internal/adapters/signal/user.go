package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gorilla/websocket"
)

type authPayload struct {
	Token string `json:"token" validate:"required"`
}

// handshake resolves the identity of a new socket, from token when the
// upgrade request carried one, else from an auth event that must arrive
// within the handshake timeout.
func (ctl *SignalWSController) handshake(ctx context.Context, ws *websocket.Conn, token string) (domain.Identity, error) {
	if token == "" {
		var err error
		if token, err = ctl.readAuthFrame(ws); err != nil {
			return domain.Identity{}, err
		}
	}
	return ctl.Auth.ValidateToken(ctx, token)
}

func (ctl *SignalWSController) readAuthFrame(ws *websocket.Conn) (string, error) {
	if err := ws.SetReadDeadline(time.Now().Add(ctl.opts.HandshakeTimeout)); err != nil {
		return "", err
	}
	defer ws.SetReadDeadline(time.Time{})

	_, data, err := ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: no auth event: %v", domain.ErrTokenMissing, err)
	}
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != "auth" {
		return "", domain.ErrTokenMissing
	}
	var p authPayload
	if err := ctl.decode(env.Data, &p); err != nil {
		return "", domain.ErrTokenMissing
	}
	return p.Token, nil
}
