package actuator

import (
	"fmt"
	"time"
)

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was stopped before it fired.
	Stop() bool
}

// Scheduler arms single-shot timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (Timer, error)
}

// ClockScheduler arms real timers with time.AfterFunc.
type ClockScheduler struct{}

// AfterFunc calls f in its own goroutine after d.
func (ClockScheduler) AfterFunc(d time.Duration, f func()) (Timer, error) {
	if d <= 0 {
		return nil, fmt.Errorf("non-positive duration %v", d)
	}
	return time.AfterFunc(d, f), nil
}
