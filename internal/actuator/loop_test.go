package actuator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/valve-actuator/internal/gpio"
)

type loopRig struct {
	chip   *gpio.FakeChip
	sched  *FakeScheduler
	pub    *FakePublisher
	loop   *Loop
	snaps  chan Snapshot
	cancel context.CancelFunc
	done   chan error
}

func startLoop(t *testing.T, cfg Config, open, shut bool) *loopRig {
	t.Helper()
	r := &loopRig{
		chip:  gpio.NewFakeChip(),
		sched: NewFakeScheduler(),
		pub:   &FakePublisher{},
		snaps: make(chan Snapshot, 64),
		done:  make(chan error, 1),
	}
	r.chip.Inputs[pinFbOpen] = open
	r.chip.Inputs[pinFbShut] = shut

	ctrl, err := NewController(cfg, r.chip, r.sched, r.pub)
	require.NoError(t, err)
	r.loop = NewLoop(ctrl, 0, func(s Snapshot) { r.snaps <- s })
	require.NoError(t, ctrl.Setup())

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.done <- r.loop.Run(ctx) }()
	t.Cleanup(func() { r.stop(t) })

	r.next(t) // initial snapshot
	return r
}

func (r *loopRig) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-r.snaps:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func (r *loopRig) stop(t *testing.T) {
	t.Helper()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopCommandAndTimeout(t *testing.T) {
	r := startLoop(t, blindConfig(), false, false)

	r.loop.HandleCommand("on")
	snap := r.next(t)
	assert.True(t, snap.Moving)
	assert.Equal(t, Open, snap.Target)

	require.NoError(t, r.sched.Fire())
	snap = r.next(t)
	assert.False(t, snap.Moving)
	assert.Equal(t, Open, snap.Current)
	require.Len(t, r.pub.Statuses, 1)
}

func TestLoopEdgesAreSerialized(t *testing.T) {
	r := startLoop(t, feedbackConfig(), false, true)

	r.loop.HandleCommand("ON")
	r.next(t)

	// Edge handlers run on the caller's goroutine but are only queued.
	r.chip.Inputs[pinFbShut] = false
	r.chip.Inputs[pinFbOpen] = true
	r.chip.Watches[pinFbShut].Handler(pinFbShut)
	r.chip.Watches[pinFbOpen].Handler(pinFbOpen)

	r.next(t)
	snap := r.next(t)
	assert.Equal(t, Open, snap.Current)
	assert.False(t, snap.Moving)
	assert.Equal(t, 1, snap.Counts.Settles)
	assert.Len(t, r.pub.Statuses, 1)
	assert.True(t, r.sched.Timers[0].Stopped)
}

func TestLoopStaleTimeoutIgnored(t *testing.T) {
	r := startLoop(t, feedbackConfig(), false, true)

	r.loop.HandleCommand("ON")
	r.next(t)
	r.loop.HandleCommand("ON")
	r.next(t)

	r.sched.Timers[0].Fire()
	snap := r.next(t)
	assert.True(t, snap.Moving, "stale expiry must not stop the motor")
	assert.Equal(t, 0, snap.Counts.Timeouts)
}

func TestLoopBootAndRepublish(t *testing.T) {
	r := startLoop(t, feedbackConfig(), false, false)

	r.loop.Boot()
	snap := r.next(t)
	assert.True(t, snap.Moving)
	assert.Equal(t, Open, snap.Target)

	r.loop.Republish()
	r.next(t)
	require.Len(t, r.pub.Statuses, 1)
	assert.Equal(t, Transient, r.pub.Statuses[0].Position)
}

func TestLoopStopDeenergizes(t *testing.T) {
	r := startLoop(t, feedbackConfig(), false, true)

	r.loop.HandleCommand("ON")
	r.next(t)
	require.True(t, r.chip.Level(pinPower))

	r.stop(t)
	assert.False(t, r.chip.Level(pinPower))
	assert.False(t, r.chip.Level(pinDir))
	assert.True(t, r.sched.Timers[0].Stopped)
	assert.Empty(t, r.chip.Watches)

	// Posting after the loop has stopped must not block.
	r.loop.HandleCommand("OFF")
	r.sched.Timers[0].Fire()
}

func TestLoopOfferCommandFullQueue(t *testing.T) {
	ctrl, err := NewController(blindConfig(), gpio.NewFakeChip(), NewFakeScheduler(), nil)
	require.NoError(t, err)
	l := NewLoop(ctrl, 2, nil)

	// Nothing drains the queue yet.
	assert.True(t, l.OfferCommand("ON"))
	assert.True(t, l.OfferCommand("OFF"))
	assert.False(t, l.OfferCommand("ON"), "full queue must drop, not block")
}
