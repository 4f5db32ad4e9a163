// Package debounce filters contact bounce out of sampled switch levels.
// This package has NO external dependencies (no GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package debounce

import "time"

// Filter tracks the debounced level of a single input.
type Filter struct {
	window time.Duration

	// Current stable (debounced) level
	stable bool
	// Level observed but not yet stable for a full window
	pending    bool
	hasPending bool
	// Time when the pending level was first observed
	pendingSince time.Time
	// Whether a stable level has been established
	baselined bool

	transitions int
}

// New creates a filter that accepts a level once it has been observed
// unchanged for window.
func New(window time.Duration) *Filter {
	return &Filter{window: window}
}

// Sample feeds one observation of the raw level taken at now.
// It returns true when the stable level is first established and on
// every subsequent stable transition.
func (f *Filter) Sample(level bool, now time.Time) bool {
	// First time seeing this input
	if !f.baselined {
		if !f.hasPending || f.pending != level {
			// Start observing, or level changed during baseline: restart
			f.pending = level
			f.hasPending = true
			f.pendingSince = now
		}
		if now.Sub(f.pendingSince) >= f.window {
			f.stable = level
			f.baselined = true
			f.hasPending = false
			return true
		}
		return false
	}

	// Already baselined - detect transitions
	if level == f.stable {
		// No change from stable level, clear any pending
		f.hasPending = false
		return false
	}

	if !f.hasPending || f.pending != level {
		// New pending level
		f.pending = level
		f.hasPending = true
		f.pendingSince = now
	}

	if now.Sub(f.pendingSince) >= f.window {
		f.stable = level
		f.hasPending = false
		f.transitions++
		return true
	}
	return false
}

// Stable returns the debounced level and whether it has been established.
func (f *Filter) Stable() (level, ok bool) {
	return f.stable, f.baselined
}

// Transitions returns the number of stable transitions since the baseline.
func (f *Filter) Transitions() int {
	return f.transitions
}
