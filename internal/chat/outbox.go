package chat

import (
	"context"
	"sync"
)

// Outbox is the outbound queue of one session. Any number of goroutines may
// Push; only the session's writer calls Next. The queue is unbounded so a slow
// reader never holds up a broadcaster.
type Outbox struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	ready  chan struct{}
}

// NewOutbox returns an empty, open Outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push queues frame for delivery. It never blocks and returns false when the
// outbox has been closed.
func (o *Outbox) Push(frame string) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, frame)
	o.mu.Unlock()

	o.wake()
	return true
}

// Next blocks until a frame is available. It returns false once the outbox is
// closed and drained, or when ctx is done.
func (o *Outbox) Next(ctx context.Context) (string, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			frame := o.queue[0]
			o.queue[0] = ""
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return frame, true
		}
		if o.closed {
			o.mu.Unlock()
			return "", false
		}
		o.mu.Unlock()

		select {
		case <-o.ready:
		case <-ctx.Done():
			return "", false
		}
	}
}

// Close stops further pushes. Frames already queued are still handed out by Next.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.wake()
}

// Len returns the number of frames waiting.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *Outbox) wake() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
