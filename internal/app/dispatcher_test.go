package app

import (
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/require"
)

func mustFrame(t *testing.T, kind string) core.Frame {
	t.Helper()
	f, err := core.EncodeFrame(kind, core.LeftPayload{RoomID: "general"})
	require.NoError(t, err)
	return f
}

func TestSimplePolicy(t *testing.T) {
	req := require.New(t)
	p := SimplePolicy{}
	req.Equal(KickMember, p.OnBackPressure(nil, core.Frame{}, domain.ErrQueueFull))
	req.Equal(DropFrame, p.OnBackPressure(nil, core.Frame{}, core.ErrFrameDropped))
	req.Equal(NoAction, p.OnBackPressure(nil, core.Frame{}, core.ErrQueueClosed))
	req.Equal("kick_member", KickMember.String())
}

func TestDispatcher_Deliver(t *testing.T) {
	t.Run("healthy consumers get the frame", func(t *testing.T) {
		req := require.New(t)
		d := NewDispatcher(nil)
		a := authed(t, alice)
		b := authed(t, bob)

		res := d.Deliver([]*core.Connection{a, b}, mustFrame(t, core.KindLeft))
		req.Equal(2, res.SentTo)
		req.Zero(res.Dropped)
		req.Empty(res.Evicted)
		req.Equal(1, a.Queue().Len())
	})

	t.Run("non-critical overflow is dropped without eviction", func(t *testing.T) {
		req := require.New(t)
		d := NewDispatcher(nil)
		c := core.NewConnection(1)
		req.NoError(c.Authenticate(alice))
		req.NoError(c.TrySend(mustFrame(t, core.KindMessage)))

		res := d.Deliver([]*core.Connection{c}, mustFrame(t, core.KindUserTyping))
		req.Equal(1, res.Dropped)
		req.Empty(res.Evicted)
		req.True(c.Alive())
	})

	t.Run("critical overflow evicts the slow consumer once", func(t *testing.T) {
		req := require.New(t)
		d := NewDispatcher(nil)
		evicted := make(chan core.ConnectionID, 4)
		d.OnEvict(func(cid core.ConnectionID) { evicted <- cid })

		slow := core.NewConnection(1)
		req.NoError(slow.Authenticate(bob))
		fast := authed(t, alice)
		req.NoError(slow.TrySend(mustFrame(t, core.KindMessage)))

		res := d.Deliver([]*core.Connection{fast, slow}, mustFrame(t, core.KindMessage))
		req.Equal(1, res.SentTo)
		req.Equal([]core.ConnectionID{slow.ID()}, res.Evicted)
		req.False(slow.Alive())

		res = d.Deliver([]*core.Connection{fast, slow}, mustFrame(t, core.KindMessage))
		req.Empty(res.Evicted)
		req.Equal(1, res.SentTo)

		select {
		case cid := <-evicted:
			req.Equal(slow.ID(), cid)
		case <-time.After(time.Second):
			t.Fatal("eviction hook not called")
		}
		req.Never(func() bool { return len(evicted) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("without a hook the connection is closed", func(t *testing.T) {
		req := require.New(t)
		d := NewDispatcher(nil)
		slow := core.NewConnection(1)
		req.NoError(slow.Authenticate(bob))
		req.NoError(slow.TrySend(mustFrame(t, core.KindMessage)))

		d.Deliver([]*core.Connection{slow}, mustFrame(t, core.KindMessage))
		req.Eventually(func() bool { return slow.State() == core.Closed }, time.Second, 5*time.Millisecond)
	})

	t.Run("per-recipient frames", func(t *testing.T) {
		req := require.New(t)
		d := NewDispatcher(nil)
		a := authed(t, alice)
		b := authed(t, bob)
		res := d.DeliverEach([]*core.Connection{a, b}, func(c *core.Connection) (core.Frame, error) {
			return core.EncodeFrame(core.KindLeft, core.LeftPayload{RoomID: domain.RoomID(c.Identity().Username)})
		})
		req.Equal(2, res.SentTo)
		got := drain(t, b)
		req.Equal("bob", got[0].Data["roomId"])
	})
}
