package actuator

import "errors"

var (
	// ErrConfigInvalid is returned when an actuator's wiring is incomplete
	// or inconsistent. No GPIO is touched when it is returned.
	ErrConfigInvalid = errors.New("invalid actuator config")

	// ErrScheduling is returned when the switch timeout could not be armed.
	// The command is rejected and the outputs are left as they were.
	ErrScheduling = errors.New("cannot arm switch timeout")

	// ErrInterruptRegistration is returned by Setup when a feedback input
	// could not be watched. Any watch already registered is released.
	ErrInterruptRegistration = errors.New("cannot register feedback interrupt")
)
