package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
	QueueSize        int
	AllowedOrigins   []string
	RateLimit        int
	RateInterval     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = core.DefaultQueueSize
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.RateInterval <= 0 {
		o.RateInterval = 10 * time.Second
	}
	return o
}

// SignalWSController is the session gateway: it authenticates sockets,
// registers them and translates inbound events into hub operations.
type SignalWSController struct {
	Orch *orch.Orchestrator
	Auth core.Authenticator

	opts     Options
	limiter  *RoomRateLimiter
	upgrader websocket.Upgrader
	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, auth core.Authenticator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	ctl := &SignalWSController{
		Orch:     o,
		Auth:     auth,
		opts:     opts,
		limiter:  NewRoomRateLimiter(opts.RateLimit, opts.RateInterval),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(ctl.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// WsSignalConn binds a websocket to its core connection.
type WsSignalConn struct {
	ws   *websocket.Conn
	conn *core.Connection
}

func (c *WsSignalConn) ID() core.ConnectionID { return c.conn.ID() }

// HandleSignal upgrades the request and runs the session until either side
// closes. token may be empty, in which case the first frame must be an auth
// event.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, token string) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := core.NewConnection(ctl.opts.QueueSize)
	identity, err := ctl.handshake(ctx, ws, token)
	if err != nil {
		ctl.reject(ws, err, "Authentication error")
		return
	}
	if err := conn.Authenticate(identity); err != nil {
		ctl.reject(ws, err, "Authentication error")
		return
	}
	cid, err := ctl.Orch.Connect(conn)
	if err != nil {
		ctl.reject(ws, err, err.Error())
		return
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("user", string(identity.ID)).Msg("new WS connection")

	sctx, cancel := context.WithCancel(ctx)
	conn.OnClose(cancel)
	wsc := &WsSignalConn{ws: ws, conn: conn}

	ready, err := core.EncodeFrame(core.KindReady, core.ReadyPayload{Identity: identity, ConnectionID: cid})
	if err == nil {
		ctl.reply(wsc, ready)
	}

	go ctl.pingLoop(sctx, wsc)
	go ctl.writePump(sctx, wsc)
	go ctl.readPump(sctx, wsc)
}

// reject sends err as the final frame and closes the socket before it was
// ever registered.
func (ctl *SignalWSController) reject(ws *websocket.Conn, err error, reason string) {
	log.Warn().Err(err).Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("connection rejected")
	deadline := time.Now().Add(ctl.opts.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.WriteMessage(websocket.TextMessage, core.ErrorFrame(err).Data)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	_ = ws.Close()
}
