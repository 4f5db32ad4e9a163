//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

var _ Chip = (*GpiocdevChip)(nil)

// GpiocdevChip drives GPIO lines through the Linux GPIO character device.
// Debouncing of watched inputs is done by the kernel.
type GpiocdevChip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	outputs map[int]*gpiocdev.Line
	inputs  map[int]*gpiocdev.Line
}

// NewGpiocdevChip opens the named chip, e.g. "gpiochip0".
func NewGpiocdevChip(name string) (*GpiocdevChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &GpiocdevChip{
		chip:    chip,
		outputs: make(map[int]*gpiocdev.Line),
		inputs:  make(map[int]*gpiocdev.Line),
	}, nil
}

// SetupOutput requests pin as an output driven to level.
func (c *GpiocdevChip) SetupOutput(pin int, level bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.outputs[pin]; ok {
		return l.SetValue(toValue(level))
	}
	l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(toValue(level)))
	if err != nil {
		return fmt.Errorf("request output pin %d: %w", pin, err)
	}
	c.outputs[pin] = l
	return nil
}

// Write drives an output pin.
func (c *GpiocdevChip) Write(pin int, level bool) error {
	c.mu.Lock()
	l, ok := c.outputs[pin]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("write pin %d: not an output", pin)
	}
	if err := l.SetValue(toValue(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the level of a watched input.
func (c *GpiocdevChip) Read(pin int) (bool, error) {
	c.mu.Lock()
	l, ok := c.inputs[pin]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("read pin %d: not watched", pin)
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// WatchEdges requests pin as an input with both-edge detection.
func (c *GpiocdevChip) WatchEdges(pin int, pull Pull, debounce time.Duration, fn EdgeHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inputs[pin]; ok {
		return fmt.Errorf("watch pin %d: already watched", pin)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		biasOption(pull),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			fn(evt.Offset)
		}),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	l, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("watch pin %d: %w", pin, err)
	}
	c.inputs[pin] = l
	return nil
}

// Unwatch releases a watched input. The line is left as an input with
// pull-down, matching Pi boot defaults.
func (c *GpiocdevChip) Unwatch(pin int) error {
	c.mu.Lock()
	l, ok := c.inputs[pin]
	delete(c.inputs, pin)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseInput(l)
}

// Close releases all lines and the chip.
// Inputs are reconfigured to input with pull-down before closing so that
// external hardware sees the same state as after a reboot.
func (c *GpiocdevChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, l := range c.inputs {
		if err := releaseInput(l); err != nil {
			errs = append(errs, fmt.Errorf("release input pin %d: %w", pin, err))
		}
	}
	for pin, l := range c.outputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	c.inputs = make(map[int]*gpiocdev.Line)
	c.outputs = make(map[int]*gpiocdev.Line)

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func releaseInput(l *gpiocdev.Line) error {
	var errs []error
	if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure: %w", err))
	}
	if err := l.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}
	return nil
}

func biasOption(p Pull) gpiocdev.LineBias {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func toValue(level bool) int {
	if level {
		return 1
	}
	return 0
}
