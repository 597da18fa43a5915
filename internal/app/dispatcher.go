package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
	Evicted []core.ConnectionID
}

// Dispatcher pushes frames onto target connections' outbound queues.
// It never blocks: overflow is resolved by the Policy.
type Dispatcher struct {
	policy Policy

	mu      sync.RWMutex
	onEvict func(core.ConnectionID)
}

func NewDispatcher(policy Policy) *Dispatcher {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Dispatcher{policy: policy}
}

// OnEvict sets the hook run (in its own goroutine) for kicked connections.
// Callers of Deliver usually hold a room's critical section, so the hook must
// not run inline.
func (d *Dispatcher) OnEvict(fn func(core.ConnectionID)) {
	d.mu.Lock()
	d.onEvict = fn
	d.mu.Unlock()
}

func (d *Dispatcher) Deliver(targets []*core.Connection, f core.Frame) PublishResult {
	res := PublishResult{}
	for _, c := range targets {
		d.push(c, f, &res)
	}
	log.Debug().Str("module", "app.dispatcher").Str("kind", f.Kind).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Int("evicted", len(res.Evicted)).Msg("broadcast result")
	return res
}

// DeliverEach builds a frame per recipient, for events whose payload depends
// on who receives them.
func (d *Dispatcher) DeliverEach(targets []*core.Connection, build func(*core.Connection) (core.Frame, error)) PublishResult {
	res := PublishResult{}
	kind := ""
	for _, c := range targets {
		f, err := build(c)
		if err != nil {
			log.Error().Err(err).Str("module", "app.dispatcher").Str("cid", string(c.ID())).Msg("encode frame")
			continue
		}
		kind = f.Kind
		d.push(c, f, &res)
	}
	log.Debug().Str("module", "app.dispatcher").Str("kind", kind).Int("sent_to", res.SentTo).Int("dropped", res.Dropped).Int("evicted", len(res.Evicted)).Msg("broadcast result")
	return res
}

func (d *Dispatcher) push(c *core.Connection, f core.Frame, res *PublishResult) {
	err := c.TrySend(f)
	if err == nil {
		res.SentTo++
		return
	}
	if errors.Is(err, core.ErrQueueClosed) {
		return
	}
	switch d.policy.OnBackPressure(c, f, err) {
	case KickMember:
		if d.kick(c) {
			res.Evicted = append(res.Evicted, c.ID())
		}
	case DropFrame, NoAction:
		res.Dropped++
	}
}

func (d *Dispatcher) kick(c *core.Connection) bool {
	if !c.MarkClosing() {
		return false
	}
	log.Warn().Str("module", "app.dispatcher").Str("cid", string(c.ID())).Int("queued", c.Queue().Len()).Msg("outbound queue overflow, evicting")
	d.mu.RLock()
	fn := d.onEvict
	d.mu.RUnlock()
	if fn != nil {
		go fn(c.ID())
	} else {
		go c.Close()
	}
	return true
}
