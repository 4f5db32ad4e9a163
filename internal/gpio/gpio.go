// Package gpio provides GPIO line access with hardware abstraction.
// The real implementations use the Linux GPIO character device or the
// periph.io host drivers. The fake implementation allows testing without
// hardware.
package gpio

import "time"

// Pull selects the input bias applied to a watched line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// EdgeHandler is called with the line offset whenever a watched line
// changes level. It may be called from a goroutine owned by the chip.
type EdgeHandler func(pin int)

// Chip drives output lines and watches input lines.
// Levels are raw electrical levels: true = high.
type Chip interface {
	// SetupOutput claims pin as an output and drives it to level.
	SetupOutput(pin int, level bool) error

	// Write drives an output pin previously claimed with SetupOutput.
	Write(pin int, level bool) error

	// Read returns the current level of a watched input pin.
	Read(pin int) (bool, error)

	// WatchEdges claims pin as an input with the given bias and calls fn
	// on both rising and falling edges once the line has been stable for
	// the debounce window.
	WatchEdges(pin int, pull Pull, debounce time.Duration, fn EdgeHandler) error

	// Unwatch stops edge delivery for pin and releases the line.
	Unwatch(pin int) error

	// Close releases every line and the chip.
	Close() error
}

// Default chip and debounce window for the feedback switches.
const (
	DefaultChip     = "gpiochip0"
	DefaultDebounce = 50 * time.Millisecond
)
