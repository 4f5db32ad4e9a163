package actuator

import (
	"context"
)

type eventKind int

const (
	evCommand eventKind = iota
	evEdge
	evTimeout
	evBoot
	evRepublish
)

type event struct {
	kind eventKind
	text string // evCommand
	pin  int    // evEdge
	gen  uint64 // evTimeout
}

// DefaultQueueDepth is the event buffer used by NewLoop when depth <= 0.
const DefaultQueueDepth = 32

// Loop feeds every stimulus for one controller through a single goroutine:
// commands, feedback edges, timer expiry, boot and republish requests.
// Callers on any goroutine may post to it.
type Loop struct {
	ctrl    *Controller
	events  chan event
	done    chan struct{}
	observe func(Snapshot)
}

// NewLoop attaches a loop to c. From now on the controller's edge and timer
// callbacks are queued rather than handled inline. observe, if non-nil, is
// called on the loop goroutine after every handled event.
func NewLoop(c *Controller, depth int, observe func(Snapshot)) *Loop {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	l := &Loop{
		ctrl:    c,
		events:  make(chan event, depth),
		done:    make(chan struct{}),
		observe: observe,
	}
	c.post = l.enqueue
	return l
}

// Controller returns the controller driven by the loop.
func (l *Loop) Controller() *Controller { return l.ctrl }

func (l *Loop) enqueue(ev event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// HandleCommand queues a command payload ("ON"/"OFF").
func (l *Loop) HandleCommand(text string) {
	l.enqueue(event{kind: evCommand, text: text})
}

// OfferCommand queues a command payload without blocking. It reports
// false, dropping the command, when the queue is full or the loop has
// stopped.
func (l *Loop) OfferCommand(text string) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- event{kind: evCommand, text: text}:
		return true
	default:
		return false
	}
}

// Boot queues the boot-time move.
func (l *Loop) Boot() {
	l.enqueue(event{kind: evBoot})
}

// Republish queues a status publication.
func (l *Loop) Republish() {
	l.enqueue(event{kind: evRepublish})
}

// Run handles events until ctx is cancelled, then closes the controller so
// the motor is not left energized. It always returns nil.
func (l *Loop) Run(ctx context.Context) error {
	defer l.ctrl.Close()
	defer close(l.done)

	if l.observe != nil {
		l.observe(l.ctrl.Snapshot())
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.ctrl.handle(ev)
			if l.observe != nil {
				l.observe(l.ctrl.Snapshot())
			}
		}
	}
}
