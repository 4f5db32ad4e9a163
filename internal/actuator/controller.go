package actuator

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sweeney/valve-actuator/internal/gpio"
)

// Counts tracks controller activity since startup.
type Counts struct {
	Commands int // accepted commands
	Timeouts int // moves ended by the switch timeout
	Settles  int // moves ended early by feedback
}

// Snapshot is a point-in-time view of a controller.
type Snapshot struct {
	Name        string
	Current     Position
	Target      Position
	Moving      bool
	HasFeedback bool
	MaxSwitch   time.Duration
	Counts      Counts
}

// Controller owns the state of one actuator.
//
// Its handlers are not safe for concurrent use. Run them from a single
// goroutine, normally via a Loop, which also serializes the edge and timer
// callbacks the controller registers.
type Controller struct {
	cfg   Config
	name  string
	chip  gpio.Chip
	sched Scheduler
	pub   Publisher

	// post delivers callback events. Without a Loop they are handled inline.
	post func(event)

	current Position
	target  Position

	// timer is set iff the motor is energized.
	timer Timer
	// gen identifies the armed timer; callbacks from older timers are stale.
	gen uint64

	watched []int
	counts  Counts
}

// NewController validates cfg and returns a controller for it. It performs
// no GPIO operations; call Setup for that.
func NewController(cfg Config, chip gpio.Chip, sched Scheduler, pub Publisher) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		name:    cfg.DisplayName(),
		chip:    chip,
		sched:   sched,
		pub:     pub,
		current: Transient,
		target:  cfg.BootOn,
	}
	if c.target == Transient {
		// Boot drives an unsettled actuator open.
		c.target = Open
	}
	c.post = c.handle
	return c, nil
}

// Name returns the entity name.
func (c *Controller) Name() string { return c.name }

// Config returns the controller's wiring.
func (c *Controller) Config() Config { return c.cfg }

// Setup watches the feedback inputs, senses the initial position and
// configures both outputs at their idle level. On failure nothing stays
// registered.
func (c *Controller) Setup() error {
	if err := c.setupInputs(); err != nil {
		return err
	}
	if err := c.setupOutputs(); err != nil {
		c.unwatchAll()
		return err
	}
	return nil
}

func (c *Controller) setupInputs() error {
	if !c.cfg.HasFeedback() {
		c.current = Transient
		return nil
	}

	onEdge := func(pin int) { c.post(event{kind: evEdge, pin: pin}) }
	for _, pin := range []int{c.cfg.FeedbackOpenPin, c.cfg.FeedbackShutPin} {
		if err := c.chip.WatchEdges(pin, c.cfg.inputPull(), c.cfg.Debounce, onEdge); err != nil {
			c.unwatchAll()
			return fmt.Errorf("%w: pin %d: %v", ErrInterruptRegistration, pin, err)
		}
		c.watched = append(c.watched, pin)
	}

	pos, err := sense(c.chip, c.cfg)
	if err != nil {
		c.unwatchAll()
		return fmt.Errorf("%w: %v", ErrInterruptRegistration, err)
	}
	c.current = pos
	if pos.Good() {
		c.target = pos
	}
	return nil
}

func (c *Controller) setupOutputs() error {
	for _, pin := range []int{c.cfg.DriveOpenPin, c.cfg.DrivePowerPin} {
		if err := c.chip.SetupOutput(pin, c.cfg.OutputInvert); err != nil {
			return fmt.Errorf("setup output pin %d: %w", pin, err)
		}
	}
	return nil
}

func (c *Controller) unwatchAll() {
	for _, pin := range c.watched {
		if err := c.chip.Unwatch(pin); err != nil {
			log.Printf("actuator %s: unwatch pin %d: %v", c.name, pin, err)
		}
	}
	c.watched = nil
}

// Boot applies the configured boot direction. Without one, an actuator
// whose sensed position is not settled is driven open.
func (c *Controller) Boot() error {
	switch {
	case c.cfg.BootOn != Transient:
		return c.Command(c.cfg.BootOn)
	case !c.current.Good():
		return c.Command(Open)
	}
	return nil
}

// Command starts driving the valve towards dir. A command issued while the
// valve is already moving restarts the timeout window. If the timeout
// cannot be armed the outputs are not touched.
func (c *Controller) Command(dir Position) error {
	if !dir.Good() {
		return fmt.Errorf("cannot drive towards %s", dir)
	}

	gen := c.gen + 1
	t, err := c.sched.AfterFunc(c.cfg.MaxSwitch, func() {
		c.post(event{kind: evTimeout, gen: gen})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScheduling, err)
	}
	// The replacement is armed before the old timer goes, so a failed
	// re-arm leaves the running timeout in force.
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer, c.gen = t, gen

	c.write(c.cfg.DriveOpenPin, c.cfg.OutputInvert != (dir == Open))
	c.write(c.cfg.DrivePowerPin, !c.cfg.OutputInvert)
	c.target = dir
	c.counts.Commands++
	return nil
}

// HandleCommand accepts "ON" (open) or "OFF" (shut), case-insensitively.
// Anything else is ignored.
func (c *Controller) HandleCommand(text string) error {
	switch {
	case strings.EqualFold(text, "ON"):
		return c.Command(Open)
	case strings.EqualFold(text, "OFF"):
		return c.Command(Shut)
	}
	return nil
}

// OnTimeout ends the current move: the motor is de-energized and the status
// republished. A feedback-less actuator is presumed to have arrived.
// It does nothing if no move is in progress.
func (c *Controller) OnTimeout() {
	if c.timer == nil {
		return
	}
	c.timer = nil
	c.counts.Timeouts++
	c.deenergize()
	if !c.cfg.HasFeedback() {
		c.current = c.target
	}
	c.publish()
}

func (c *Controller) onTimer(gen uint64) {
	if gen != c.gen {
		return
	}
	c.OnTimeout()
}

// OnFeedbackEdge re-reads a feedback input and updates the matching flag.
// Reaching the target while moving ends the move immediately.
func (c *Controller) OnFeedbackEdge(pin int) {
	if !c.cfg.HasFeedback() {
		return
	}
	var bit Position
	switch pin {
	case c.cfg.FeedbackOpenPin:
		bit = Open
	case c.cfg.FeedbackShutPin:
		bit = Shut
	default:
		return
	}

	level, err := c.chip.Read(pin)
	if err != nil {
		log.Printf("actuator %s: read feedback pin %d: %v", c.name, pin, err)
		return
	}
	c.current = c.current.with(bit, level != c.cfg.InputInvert)

	if c.current == c.target && c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.counts.Settles++
		c.deenergize()
		c.publish()
	}
}

// Republish publishes the current status.
func (c *Controller) Republish() {
	c.publish()
}

// Status returns the publishable status.
func (c *Controller) Status() Status {
	return Status{Position: c.current}
}

// Moving reports whether the motor is energized.
func (c *Controller) Moving() bool {
	return c.timer != nil
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Name:        c.name,
		Current:     c.current,
		Target:      c.target,
		Moving:      c.timer != nil,
		HasFeedback: c.cfg.HasFeedback(),
		MaxSwitch:   c.cfg.MaxSwitch,
		Counts:      c.counts,
	}
}

// Close stops any move in progress and releases the feedback inputs.
func (c *Controller) Close() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.deenergize()
	}
	c.unwatchAll()
}

func (c *Controller) deenergize() {
	c.write(c.cfg.DrivePowerPin, c.cfg.OutputInvert)
	c.write(c.cfg.DriveOpenPin, c.cfg.OutputInvert)
}

// GPIO writes are not expected to fail once the line is claimed.
func (c *Controller) write(pin int, level bool) {
	if err := c.chip.Write(pin, level); err != nil {
		log.Printf("actuator %s: write pin %d: %v", c.name, pin, err)
	}
}

func (c *Controller) publish() {
	if c.pub == nil {
		return
	}
	if err := c.pub.PublishStatus(c.name, c.Status()); err != nil {
		log.Printf("actuator %s: publish status: %v", c.name, err)
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evCommand:
		if err := c.HandleCommand(ev.text); err != nil {
			log.Printf("actuator %s: command %q: %v", c.name, ev.text, err)
		}
	case evEdge:
		c.OnFeedbackEdge(ev.pin)
	case evTimeout:
		c.onTimer(ev.gen)
	case evBoot:
		if err := c.Boot(); err != nil {
			log.Printf("actuator %s: boot: %v", c.name, err)
		}
	case evRepublish:
		c.Republish()
	}
}

// ReadPosition senses the position of a feedback-capable actuator once,
// without driving it. A feedback-less actuator reports Transient.
func ReadPosition(chip gpio.Chip, cfg Config) (Position, error) {
	if err := cfg.Validate(); err != nil {
		return Transient, err
	}
	if !cfg.HasFeedback() {
		return Transient, nil
	}
	for _, pin := range []int{cfg.FeedbackOpenPin, cfg.FeedbackShutPin} {
		if err := chip.WatchEdges(pin, cfg.inputPull(), 0, func(int) {}); err != nil {
			return Transient, fmt.Errorf("%w: pin %d: %v", ErrInterruptRegistration, pin, err)
		}
		defer chip.Unwatch(pin)
	}
	return sense(chip, cfg)
}

// sense reads both feedback inputs and composes the position.
func sense(chip gpio.Chip, cfg Config) (Position, error) {
	open, err := chip.Read(cfg.FeedbackOpenPin)
	if err != nil {
		return Transient, fmt.Errorf("read open pin: %w", err)
	}
	shut, err := chip.Read(cfg.FeedbackShutPin)
	if err != nil {
		return Transient, fmt.Errorf("read shut pin: %w", err)
	}
	return PositionOf(open != cfg.InputInvert, shut != cfg.InputInvert), nil
}
