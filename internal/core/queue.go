package core

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
)

const DefaultQueueSize = 256

var (
	ErrQueueClosed  = errors.New("queue closed")
	ErrFrameDropped = errors.New("non-critical frame dropped")
)

// OutboundQueue is a bounded per-connection FIFO.
//
// When full, a non-critical frame pushes out the oldest queued non-critical
// frame (or is itself discarded when none is queued). A critical frame gets
// the same treatment, except that with no non-critical frame to evict the
// push fails with domain.ErrQueueFull and the caller must disconnect the
// consumer.
type OutboundQueue struct {
	mu      sync.Mutex
	items   []Frame
	size    int
	closed  bool
	dropped uint64
	notify  chan struct{}
}

func NewOutboundQueue(size int) *OutboundQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &OutboundQueue{
		items:  make([]Frame, 0, size),
		size:   size,
		notify: make(chan struct{}, 1),
	}
}

func (q *OutboundQueue) TrySend(f Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.size {
		idx := q.oldestNonCritical()
		switch {
		case idx >= 0:
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			q.dropped++
		case !f.Critical:
			q.dropped++
			return ErrFrameDropped
		default:
			return domain.ErrQueueFull
		}
	}
	q.items = append(q.items, f)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *OutboundQueue) oldestNonCritical() int {
	for i, it := range q.items {
		if !it.Critical {
			return i
		}
	}
	return -1
}

// Next blocks until a frame is available. It returns false once the queue is
// closed or ctx is done.
func (q *OutboundQueue) Next(ctx context.Context) (Frame, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Frame{}, false
		}
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = Frame{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, false
		case <-q.notify:
		}
	}
}

func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped counts non-critical frames discarded on overflow.
func (q *OutboundQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close is idempotent and wakes a blocked Next.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.notify)
}
