package actuator

import (
	"errors"
	"time"
)

// FakeScheduler is a test double that fires timers on demand.
type FakeScheduler struct {
	// Timers contains every timer armed, in order.
	Timers []*FakeTimer

	// Err, if set, is returned by AfterFunc.
	Err error
}

// FakeTimer is a timer armed by FakeScheduler.
type FakeTimer struct {
	Duration time.Duration
	Stopped  bool
	Fired    bool
	f        func()
}

// NewFakeScheduler creates an empty FakeScheduler.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc records a new timer.
func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) (Timer, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	t := &FakeTimer{Duration: d, f: f}
	s.Timers = append(s.Timers, t)
	return t, nil
}

// Stop marks the timer stopped.
func (t *FakeTimer) Stop() bool {
	if t.Stopped || t.Fired {
		return false
	}
	t.Stopped = true
	return true
}

// Fire runs the callback, as a real timer would on expiry.
// Firing a stopped timer still runs the callback, which models a timer
// that expired just before it was stopped.
func (t *FakeTimer) Fire() {
	t.Fired = true
	t.f()
}

// Active returns the timers that have neither fired nor been stopped.
func (s *FakeScheduler) Active() []*FakeTimer {
	var out []*FakeTimer
	for _, t := range s.Timers {
		if !t.Stopped && !t.Fired {
			out = append(out, t)
		}
	}
	return out
}

// Fire fires the single active timer.
func (s *FakeScheduler) Fire() error {
	active := s.Active()
	if len(active) != 1 {
		return errors.New("fake scheduler: expected exactly one active timer")
	}
	active[0].Fire()
	return nil
}

// FakePublisher records published statuses.
type FakePublisher struct {
	Statuses []Status
	Names    []string

	// Err, if set, is returned by PublishStatus after recording.
	Err error
}

// PublishStatus records the status.
func (p *FakePublisher) PublishStatus(name string, st Status) error {
	p.Names = append(p.Names, name)
	p.Statuses = append(p.Statuses, st)
	return p.Err
}
