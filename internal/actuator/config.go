package actuator

import (
	"fmt"
	"time"

	"github.com/sweeney/valve-actuator/internal/gpio"
)

// NoPin marks an unconfigured pin.
const NoPin = -1

// Default entity names, by variant.
const (
	NameWithFeedback    = "cr703"
	NameWithoutFeedback = "cr303"
)

// Config is the immutable wiring of one actuator.
type Config struct {
	Name string

	// InputInvert inverts both feedback inputs; OutputInvert inverts both
	// the direction and the power output.
	InputInvert  bool
	OutputInvert bool

	// Feedback switches; both NoPin for a feedback-less actuator.
	FeedbackOpenPin int
	FeedbackShutPin int

	// DriveOpenPin selects the direction (active = towards open);
	// DrivePowerPin energizes the motor.
	DriveOpenPin  int
	DrivePowerPin int

	// MaxSwitch bounds how long the motor may be energized.
	MaxSwitch time.Duration

	// Debounce is the settle window requested for the feedback inputs.
	Debounce time.Duration

	// BootOn is the direction commanded at boot: Open, Shut, or Transient
	// for none. Required for a feedback-less actuator.
	BootOn Position
}

// HasFeedback reports whether the actuator has position feedback switches.
func (c Config) HasFeedback() bool {
	return c.FeedbackOpenPin >= 0 && c.FeedbackShutPin >= 0
}

// DisplayName returns Name, or the default name for the variant.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.HasFeedback() {
		return NameWithFeedback
	}
	return NameWithoutFeedback
}

// Validate checks the wiring. All errors wrap ErrConfigInvalid.
func (c Config) Validate() error {
	if (c.FeedbackOpenPin < 0) != (c.FeedbackShutPin < 0) {
		return fmt.Errorf("%w: need neither or both feedback pins (open=%d shut=%d)",
			ErrConfigInvalid, c.FeedbackOpenPin, c.FeedbackShutPin)
	}
	if c.DriveOpenPin < 0 || c.DrivePowerPin < 0 {
		return fmt.Errorf("%w: need both drive pins (open=%d power=%d)",
			ErrConfigInvalid, c.DriveOpenPin, c.DrivePowerPin)
	}
	switch c.BootOn {
	case Transient:
		if !c.HasFeedback() {
			return fmt.Errorf("%w: need a boot direction or both feedback pins", ErrConfigInvalid)
		}
	case Open, Shut:
	default:
		return fmt.Errorf("%w: boot direction %s", ErrConfigInvalid, c.BootOn)
	}
	if c.MaxSwitch <= 0 {
		return fmt.Errorf("%w: max switch duration must be positive, got %v", ErrConfigInvalid, c.MaxSwitch)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce %v", ErrConfigInvalid, c.Debounce)
	}

	seen := make(map[int]bool)
	for _, pin := range []int{c.FeedbackOpenPin, c.FeedbackShutPin, c.DriveOpenPin, c.DrivePowerPin} {
		if pin < 0 {
			continue
		}
		if seen[pin] {
			return fmt.Errorf("%w: pin %d used twice", ErrConfigInvalid, pin)
		}
		seen[pin] = true
	}
	return nil
}

// inputPull chooses a bias that holds an unconnected input at its
// inactive level.
func (c Config) inputPull() gpio.Pull {
	if c.InputInvert {
		return gpio.PullUp
	}
	return gpio.PullDown
}
