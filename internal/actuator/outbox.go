package actuator

import (
	"context"
	"log"
	"sync"
)

// Outbox takes status publication off the controller's goroutine.
// PublishStatus only records the latest status per entity and returns;
// Run hands the recorded statuses to the transport. A slow broker
// therefore never delays a timeout or feedback event.
//
// Only the newest status of an entity is kept. The state topic is
// retained, so an overwritten status would have been superseded anyway.
type Outbox struct {
	pub Publisher

	mu      sync.Mutex
	pending map[string]Status
	order   []string

	wake chan struct{}
}

// NewOutbox returns an outbox that forwards to pub.
func NewOutbox(pub Publisher) *Outbox {
	return &Outbox{
		pub:     pub,
		pending: make(map[string]Status),
		wake:    make(chan struct{}, 1),
	}
}

// PublishStatus queues st for name. It never blocks and never fails.
func (o *Outbox) PublishStatus(name string, st Status) error {
	o.mu.Lock()
	if _, ok := o.pending[name]; !ok {
		o.order = append(o.order, name)
	}
	o.pending[name] = st
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of entities with an unsent status.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Run forwards queued statuses until ctx is cancelled, then makes one
// last attempt at anything still queued. It always returns nil.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.flush()
			return nil
		case <-o.wake:
			o.flush()
		}
	}
}

func (o *Outbox) flush() {
	for {
		name, st, ok := o.next()
		if !ok {
			return
		}
		if err := o.pub.PublishStatus(name, st); err != nil {
			log.Printf("actuator %s: publish status: %v", name, err)
		}
	}
}

func (o *Outbox) next() (string, Status, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.order) == 0 {
		return "", Status{}, false
	}
	name := o.order[0]
	o.order = o.order[1:]
	st := o.pending[name]
	delete(o.pending, name)
	return name, st, true
}
