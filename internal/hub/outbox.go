package hub

import (
	"sync"

	"chatroom/pkg/types"
)

type delivery struct {
	to []string
	ev *types.OutboundEvent
}

// outbox is a FIFO of deliveries for one room stripe. Whichever sender
// finds it idle drains it; later senders only enqueue, so a recipient that
// is slow to accept frames delays delivery but never another sender.
type outbox struct {
	mu       sync.Mutex
	queue    []delivery
	draining bool
}

// push enqueues d and reports whether the caller must drain. Call it while
// holding the room lock so queue order matches store order.
func (o *outbox) push(d delivery) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, d)
	if o.draining {
		return false
	}
	o.draining = true
	return true
}

// drain delivers until the queue is empty, outside the room lock.
func (o *outbox) drain(send func(delivery)) {
	o.mu.Lock()
	for len(o.queue) > 0 {
		batch := o.queue
		o.queue = nil
		o.mu.Unlock()
		for _, d := range batch {
			send(d)
		}
		o.mu.Lock()
	}
	o.draining = false
	o.mu.Unlock()
}

func (h *Hub) outbox(room string) *outbox {
	return &h.outboxes[roomStripe(room)]
}
