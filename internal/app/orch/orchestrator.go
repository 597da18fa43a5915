package orch

import (
	"context"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

// Orchestrator sequences Registry and Hub calls so that neither ever calls
// the other while holding its own lock.
type Orchestrator struct {
	Registry   *app.Registry
	Rooms      *app.Hub
	Dispatcher *app.Dispatcher
}

func New(reg *app.Registry, rooms *app.Hub, disp *app.Dispatcher) *Orchestrator {
	o := &Orchestrator{Registry: reg, Rooms: rooms, Dispatcher: disp}
	disp.OnEvict(o.KickBySID)
	return o
}

// Connect registers an authenticated connection.
func (o *Orchestrator) Connect(conn *core.Connection) (core.ConnectionID, error) {
	return o.Registry.Register(conn)
}

// Disconnect unregisters cid, leaves every room it was in and closes the
// connection. Safe to call repeatedly and from any goroutine.
func (o *Orchestrator) Disconnect(ctx context.Context, cid core.ConnectionID) {
	conn, rooms, ok := o.Registry.Unregister(cid)
	if !ok {
		return
	}
	for _, room := range rooms {
		o.Rooms.Leave(ctx, room, cid)
	}
	conn.Close()
	log.Info().Str("module", "orch").Str("cid", string(cid)).Int("rooms", len(rooms)).Msg("disconnected")
}

// KickBySID force-closes a connection, e.g. after queue overflow.
func (o *Orchestrator) KickBySID(cid core.ConnectionID) {
	log.Warn().Str("module", "orch").Str("cid", string(cid)).Msg("evicting connection")
	o.Disconnect(context.Background(), cid)
}

// Shutdown disconnects every live connection.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	conns := o.Registry.All()
	for _, c := range conns {
		o.Disconnect(ctx, c.ID())
	}
	log.Info().Str("module", "orch").Int("closed", len(conns)).Msg("all connections closed")
}
