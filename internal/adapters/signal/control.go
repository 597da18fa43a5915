package signal

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	f, err := core.EncodeFrame(core.KindPong, struct{}{})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode pong")
		return
	}
	ctl.reply(conn, f)
}
