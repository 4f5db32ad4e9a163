package gpio

import (
	"fmt"
	"time"
)

var _ Chip = (*FakeChip)(nil)

// FakeChip is a test double that records writes and lets tests drive inputs.
type FakeChip struct {
	// Outputs holds the last level written to each output pin.
	Outputs map[int]bool

	// Inputs holds the level returned by Read for each pin.
	Inputs map[int]bool

	// Writes records every SetupOutput and Write call in order.
	Writes []Write

	// Watches holds the registered edge handlers by pin.
	Watches map[int]Watch

	// Unwatched records pins passed to Unwatch, in order.
	Unwatched []int

	// WatchErrors, if set for a pin, is returned by WatchEdges for that pin.
	WatchErrors map[int]error

	// SetupError, if set, is returned by SetupOutput.
	SetupError error

	// ReadError, if set, is returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// Write is a single recorded output operation.
type Write struct {
	Pin   int
	Level bool
	Setup bool
}

// Watch is a registered edge handler with its requested line settings.
type Watch struct {
	Pull     Pull
	Debounce time.Duration
	Handler  EdgeHandler
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		Outputs:     make(map[int]bool),
		Inputs:      make(map[int]bool),
		Watches:     make(map[int]Watch),
		WatchErrors: make(map[int]error),
	}
}

// SetupOutput records the output and its idle level.
func (f *FakeChip) SetupOutput(pin int, level bool) error {
	if f.SetupError != nil {
		return f.SetupError
	}
	f.Outputs[pin] = level
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level, Setup: true})
	return nil
}

// Write records the level for a configured output.
func (f *FakeChip) Write(pin int, level bool) error {
	if _, ok := f.Outputs[pin]; !ok {
		return fmt.Errorf("pin %d not configured as output", pin)
	}
	f.Outputs[pin] = level
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	return nil
}

// Read returns the scripted input level.
func (f *FakeChip) Read(pin int) (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.Inputs[pin], nil
}

// WatchEdges records the handler unless an error is scripted for pin.
func (f *FakeChip) WatchEdges(pin int, pull Pull, debounce time.Duration, fn EdgeHandler) error {
	if err := f.WatchErrors[pin]; err != nil {
		return err
	}
	if _, ok := f.Watches[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}
	f.Watches[pin] = Watch{Pull: pull, Debounce: debounce, Handler: fn}
	return nil
}

// Unwatch drops the handler for pin.
func (f *FakeChip) Unwatch(pin int) error {
	delete(f.Watches, pin)
	f.Unwatched = append(f.Unwatched, pin)
	return nil
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.Closed = true
	return nil
}

// Set changes an input level and delivers an edge to the watcher, if any.
// Setting a level equal to the current one still delivers an edge, which
// mimics contact bounce.
func (f *FakeChip) Set(pin int, level bool) {
	f.Inputs[pin] = level
	if w, ok := f.Watches[pin]; ok && w.Handler != nil {
		w.Handler(pin)
	}
}

// Level returns the last level written to an output pin.
func (f *FakeChip) Level(pin int) bool {
	return f.Outputs[pin]
}

// Reset clears recorded writes without touching pin state.
func (f *FakeChip) Reset() {
	f.Writes = nil
	f.Unwatched = nil
}
