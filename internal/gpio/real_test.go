//go:build linux

package gpio

import (
	"testing"
	"time"

	"github.com/warthog618/go-gpiosim"
)

// newSimChip opens a GpiocdevChip on a simulated chip. It skips when the
// gpio-sim kernel module or configfs is not available.
func newSimChip(t *testing.T) (*gpiosim.Simpleton, *GpiocdevChip) {
	t.Helper()
	sim, err := gpiosim.NewSimpleton(8)
	if err != nil {
		t.Skipf("gpio-sim not available: %v", err)
	}
	t.Cleanup(func() { sim.Close() })

	chip, err := NewGpiocdevChip(sim.ChipName())
	if err != nil {
		t.Fatalf("open sim chip: %v", err)
	}
	t.Cleanup(func() { chip.Close() })
	return sim, chip
}

func TestGpiocdevOutput(t *testing.T) {
	sim, chip := newSimChip(t)

	if err := chip.SetupOutput(3, true); err != nil {
		t.Fatalf("setup output: %v", err)
	}
	if v, err := sim.Level(3); err != nil || v != 1 {
		t.Fatalf("level after setup: got %d, %v; want 1", v, err)
	}

	if err := chip.Write(3, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, err := sim.Level(3); err != nil || v != 0 {
		t.Fatalf("level after write: got %d, %v; want 0", v, err)
	}

	// A second setup reuses the claimed line.
	if err := chip.SetupOutput(3, true); err != nil {
		t.Fatalf("re-setup output: %v", err)
	}
	if v, _ := sim.Level(3); v != 1 {
		t.Errorf("level after re-setup: got %d, want 1", v)
	}
}

func TestGpiocdevWriteUnclaimed(t *testing.T) {
	_, chip := newSimChip(t)

	if err := chip.Write(4, true); err == nil {
		t.Error("expected error writing a pin that is not an output")
	}
	if _, err := chip.Read(4); err == nil {
		t.Error("expected error reading a pin that is not watched")
	}
}

func TestGpiocdevWatchEdges(t *testing.T) {
	sim, chip := newSimChip(t)

	edges := make(chan int, 8)
	if err := chip.WatchEdges(1, PullDown, 0, func(pin int) { edges <- pin }); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := chip.WatchEdges(1, PullDown, 0, func(int) {}); err == nil {
		t.Error("expected error watching a pin twice")
	}

	if err := sim.SetPull(1, 1); err != nil {
		t.Fatalf("sim pull up: %v", err)
	}
	select {
	case pin := <-edges:
		if pin != 1 {
			t.Errorf("edge on pin %d, want 1", pin)
		}
	case <-time.After(time.Second):
		t.Fatal("no edge delivered")
	}

	level, err := chip.Read(1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !level {
		t.Error("expected pin 1 high")
	}

	if err := chip.Unwatch(1); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if _, err := chip.Read(1); err == nil {
		t.Error("expected error reading an unwatched pin")
	}
}

func TestGpiocdevWatchWithDebounce(t *testing.T) {
	_, chip := newSimChip(t)

	if err := chip.WatchEdges(2, PullUp, DefaultDebounce, func(int) {}); err != nil {
		t.Fatalf("watch with debounce: %v", err)
	}
	level, err := chip.Read(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !level {
		t.Error("expected pull-up to hold pin 2 high")
	}
}
