package gpio

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sweeney/valve-actuator/internal/debounce"
)

// idlePoll bounds how long a watcher blocks in WaitForEdge when no debounce
// window is configured, so Unwatch can stop it promptly.
const idlePoll = 100 * time.Millisecond

var _ Chip = (*PeriphChip)(nil)

// PeriphChip drives GPIO lines through the periph.io host drivers.
// periph has no kernel debounce, so watched inputs are filtered in software.
type PeriphChip struct {
	mu      sync.Mutex
	outputs map[int]pgpio.PinIO
	inputs  map[int]*periphWatch
}

type periphWatch struct {
	pin    pgpio.PinIO
	offset int
	window time.Duration
	fn     EdgeHandler
	stop   chan struct{}
	done   chan struct{}
}

// NewPeriphChip initializes the periph host drivers.
func NewPeriphChip() (*PeriphChip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &PeriphChip{
		outputs: make(map[int]pgpio.PinIO),
		inputs:  make(map[int]*periphWatch),
	}, nil
}

func lookup(pin int) (pgpio.PinIO, error) {
	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, fmt.Errorf("gpio %d not found", pin)
	}
	return p, nil
}

// SetupOutput claims pin as an output driven to level.
func (c *PeriphChip) SetupOutput(pin int, level bool) error {
	p, err := lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("setup output pin %d: %w", pin, err)
	}
	c.mu.Lock()
	c.outputs[pin] = p
	c.mu.Unlock()
	return nil
}

// Write drives an output pin.
func (c *PeriphChip) Write(pin int, level bool) error {
	c.mu.Lock()
	p, ok := c.outputs[pin]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("write pin %d: not an output", pin)
	}
	if err := p.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the current level of a watched input.
func (c *PeriphChip) Read(pin int) (bool, error) {
	c.mu.Lock()
	w, ok := c.inputs[pin]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("read pin %d: not watched", pin)
	}
	return bool(w.pin.Read()), nil
}

// WatchEdges configures pin as an input with both-edge detection and starts
// a goroutine that reports debounced level changes to fn.
func (c *PeriphChip) WatchEdges(pin int, pull Pull, window time.Duration, fn EdgeHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inputs[pin]; ok {
		return fmt.Errorf("watch pin %d: already watched", pin)
	}
	p, err := lookup(pin)
	if err != nil {
		return err
	}
	if err := p.In(periphPull(pull), pgpio.BothEdges); err != nil {
		return fmt.Errorf("watch pin %d: %w", pin, err)
	}

	w := &periphWatch{
		pin:    p,
		offset: pin,
		window: window,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.inputs[pin] = w
	go w.run()
	return nil
}

func (w *periphWatch) run() {
	defer close(w.done)

	poll := w.window
	if poll <= 0 {
		poll = idlePoll
	}

	f := debounce.New(w.window)
	f.Sample(bool(w.pin.Read()), time.Now())
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		// Either an edge or the poll timeout; both are a reason to sample.
		w.pin.WaitForEdge(poll)
		if f.Sample(bool(w.pin.Read()), time.Now()) {
			w.fn(w.offset)
		}
	}
}

// Unwatch stops the watcher goroutine and returns the pin to input with
// pull-down.
func (c *PeriphChip) Unwatch(pin int) error {
	c.mu.Lock()
	w, ok := c.inputs[pin]
	delete(c.inputs, pin)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return w.release()
}

func (w *periphWatch) release() error {
	close(w.stop)
	var errs []error
	if err := w.pin.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt: %w", err))
	}
	<-w.done
	if err := w.pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("release pin %d: %v", w.offset, errs)
	}
	return nil
}

// Close stops all watchers. Outputs are left at their last level; the
// caller is expected to have driven them idle.
func (c *PeriphChip) Close() error {
	c.mu.Lock()
	inputs := c.inputs
	c.inputs = make(map[int]*periphWatch)
	c.outputs = make(map[int]pgpio.PinIO)
	c.mu.Unlock()

	var errs []error
	for _, w := range inputs {
		if err := w.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func periphPull(p Pull) pgpio.Pull {
	switch p {
	case PullUp:
		return pgpio.PullUp
	case PullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}
