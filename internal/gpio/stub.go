//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// GpiocdevChip is not available on non-Linux platforms.
type GpiocdevChip struct{}

// NewGpiocdevChip returns an error on non-Linux platforms.
func NewGpiocdevChip(name string) (*GpiocdevChip, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// SetupOutput is not implemented on non-Linux platforms.
func (c *GpiocdevChip) SetupOutput(pin int, level bool) error {
	return errors.New("gpio: not supported")
}

// Write is not implemented on non-Linux platforms.
func (c *GpiocdevChip) Write(pin int, level bool) error {
	return errors.New("gpio: not supported")
}

// Read is not implemented on non-Linux platforms.
func (c *GpiocdevChip) Read(pin int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// WatchEdges is not implemented on non-Linux platforms.
func (c *GpiocdevChip) WatchEdges(pin int, pull Pull, debounce time.Duration, fn EdgeHandler) error {
	return errors.New("gpio: not supported")
}

// Unwatch is not implemented on non-Linux platforms.
func (c *GpiocdevChip) Unwatch(pin int) error {
	return nil
}

// Close is not implemented on non-Linux platforms.
func (c *GpiocdevChip) Close() error {
	return nil
}
