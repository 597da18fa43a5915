package core

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

type ConnectionID string

type ConnState int32

const (
	Connecting ConnState = iota
	Authenticated
	Active
	Closing
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrBadTransition = errors.New("invalid connection state transition")

// Connection is a live transport session. The transport adapter owns the
// socket; the Connection owns the outbound queue and the lifecycle state.
type Connection struct {
	id       ConnectionID
	identity domain.Identity
	state    atomic.Int32
	queue    *OutboundQueue

	closeOnce sync.Once
	mu        sync.Mutex
	onClose   func()
}

func NewConnection(queueSize int) *Connection {
	return &Connection{
		id:    ConnectionID(uuid.NewString()),
		queue: NewOutboundQueue(queueSize),
	}
}

func (c *Connection) ID() ConnectionID          { return c.id }
func (c *Connection) Identity() domain.Identity { return c.identity }
func (c *Connection) Queue() *OutboundQueue     { return c.queue }
func (c *Connection) State() ConnState          { return ConnState(c.state.Load()) }

// Authenticate attaches the identity. Only valid while Connecting.
func (c *Connection) Authenticate(id domain.Identity) error {
	if c.State() != Connecting {
		return ErrBadTransition
	}
	c.identity = id
	if !c.state.CompareAndSwap(int32(Connecting), int32(Authenticated)) {
		return ErrBadTransition
	}
	return nil
}

func (c *Connection) Activate() error {
	if !c.state.CompareAndSwap(int32(Authenticated), int32(Active)) {
		return ErrBadTransition
	}
	return nil
}

// MarkClosing reports whether this call moved the connection to Closing.
func (c *Connection) MarkClosing() bool {
	for {
		cur := c.state.Load()
		if ConnState(cur) >= Closing {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(Closing)) {
			return true
		}
	}
}

// Alive is false once the connection started closing.
func (c *Connection) Alive() bool { return c.State() < Closing }

// OnClose registers the transport teardown hook run once by Close.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Close is idempotent: it stops the queue and runs the transport hook.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(Closed))
		c.queue.Close()
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// TrySend enqueues f. Sending to a closing or closed connection is a no-op.
func (c *Connection) TrySend(f Frame) error {
	if !c.Alive() {
		return ErrQueueClosed
	}
	return c.queue.TrySend(f)
}
