package main

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeDriver records every SetPulse call.
type fakeDriver struct {
	mu     sync.Mutex
	writes []pulseWrite
	err    error
	closed bool
}

type pulseWrite struct {
	Pin   int
	Width int
}

func (f *fakeDriver) SetPulse(pin int, widthUS int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, pulseWrite{Pin: pin, Width: widthUS})
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) snapshot() []pulseWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pulseWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// widthsFor returns the widths written to pin, in order.
func (f *fakeDriver) widthsFor(pin int) []int {
	var out []int
	for _, w := range f.snapshot() {
		if w.Pin == pin {
			out = append(out, w.Width)
		}
	}
	return out
}

var testPins = [numChannels]int{17, 27, 22, 23}

// newTestBank builds a bank at home 1500 on every channel with a no-op sleep
// that records requested durations.
func newTestBank(t *testing.T, step int) (*ActuatorBank, *fakeDriver, *[]time.Duration) {
	t.Helper()
	drv := &fakeDriver{}
	cfg := DefaultBankConfig()
	cfg.Step = step
	bank := NewActuatorBank(drv, testPins, [numChannels]int{1500, 1500, 1500, 1500}, cfg, slog.Default())
	var sleeps []time.Duration
	bank.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return bank, drv, &sleeps
}

func TestActuatorBank_MoveToInterpolatesInLockstep(t *testing.T) {
	bank, drv, sleeps := newTestBank(t, 25)

	if err := bank.MoveTo(Pose{100, 0, 0, -100}, 0, false); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}

	// max delta 100 / step 25 => 4 steps, every channel written each step.
	for i, pin := range testPins {
		got := drv.widthsFor(pin)
		if len(got) != 4 {
			t.Fatalf("channel %d: expected 4 writes, got %d (%v)", i, len(got), got)
		}
	}
	if got, want := drv.widthsFor(17), []int{1525, 1550, 1575, 1600}; !equalInts(got, want) {
		t.Errorf("channel 0 widths: expected %v, got %v", want, got)
	}
	if got, want := drv.widthsFor(23), []int{1475, 1450, 1425, 1400}; !equalInts(got, want) {
		t.Errorf("channel 3 widths: expected %v, got %v", want, got)
	}
	if got, want := drv.widthsFor(27), []int{1500, 1500, 1500, 1500}; !equalInts(got, want) {
		t.Errorf("channel 1 widths: expected %v, got %v", want, got)
	}

	if pos := bank.Position(); pos != (Pose{100, 0, 0, -100}) {
		t.Errorf("expected position [100 0 0 -100], got %v", pos)
	}

	// interval = 100/4 * 0.40ms = 10ms per step
	if len(*sleeps) != 4 {
		t.Fatalf("expected 4 sleeps, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 10*time.Millisecond {
			t.Errorf("expected 10ms step interval, got %v", d)
		}
	}
}

func TestActuatorBank_UnevenTravelArrivesTogether(t *testing.T) {
	bank, drv, _ := newTestBank(t, 22)

	if err := bank.MoveTo(Pose{650, 175, 0, 350}, 0, false); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}

	// ceil(650/22) = 30 steps for every channel.
	for i, pin := range testPins {
		got := drv.widthsFor(pin)
		if len(got) != 30 {
			t.Fatalf("channel %d: expected 30 writes, got %d", i, len(got))
		}
	}
	want := [numChannels]int{2150, 1675, 1500, 1850}
	for i, pin := range testPins {
		got := drv.widthsFor(pin)
		if last := got[len(got)-1]; last != want[i] {
			t.Errorf("channel %d: expected final %d, got %d", i, want[i], last)
		}
	}
}

func TestActuatorBank_ClampsOutOfRangeTargets(t *testing.T) {
	bank, drv, _ := newTestBank(t, 25)

	if err := bank.MoveTo(Pose{5000, -5000, 0, 0}, 0, false); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}

	for _, w := range drv.snapshot() {
		if w.Width < pulseMin || w.Width > pulseMax {
			t.Fatalf("write outside range: %+v", w)
		}
	}
	ch := bank.Channels()
	if ch[0].Current != pulseMax {
		t.Errorf("expected channel 0 clamped to %d, got %d", pulseMax, ch[0].Current)
	}
	if ch[1].Current != pulseMin {
		t.Errorf("expected channel 1 clamped to %d, got %d", pulseMin, ch[1].Current)
	}
	if pos := bank.Position(); pos != (Pose{1000, -1000, 0, 0}) {
		t.Errorf("expected clamped position [1000 -1000 0 0], got %v", pos)
	}
}

func TestActuatorBank_ZeroTravelWritesOnce(t *testing.T) {
	bank, drv, sleeps := newTestBank(t, 25)

	if err := bank.Home(0, false); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if n := len(drv.snapshot()); n != numChannels {
		t.Errorf("expected one write per channel, got %d", n)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", *sleeps)
	}
}

func TestActuatorBank_QuickModeWritesTargetsAtOnce(t *testing.T) {
	bank, drv, sleeps := newTestBank(t, 25)

	if err := bank.MoveTo(Pose{-200, 0, 0, 0}, 0.5, true); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if got := drv.widthsFor(17); !equalInts(got, []int{1300}) {
		t.Errorf("expected a single write of 1300, got %v", got)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 100*time.Millisecond {
		t.Errorf("expected one 100ms sleep, got %v", *sleeps)
	}
}

func TestActuatorBank_OffKeepsBookkeeping(t *testing.T) {
	bank, drv, _ := newTestBank(t, 25)

	if err := bank.MoveTo(Pose{50, 0, 0, 0}, 0, false); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if err := bank.Off(); err != nil {
		t.Fatalf("Off: %v", err)
	}
	for _, pin := range testPins {
		got := drv.widthsFor(pin)
		if got[len(got)-1] != pulseOff {
			t.Errorf("pin %d: expected last write 0, got %d", pin, got[len(got)-1])
		}
	}
	if pos := bank.Position(); pos != (Pose{50, 0, 0, 0}) {
		t.Errorf("expected position unchanged by Off, got %v", pos)
	}
}

func TestActuatorBank_SetHomeShiftsReference(t *testing.T) {
	bank, _, _ := newTestBank(t, 25)

	bank.SetHome([numChannels]int{1510, 1500, 1500, 1500})
	if pos := bank.Position(); pos[0] != -10 {
		t.Errorf("expected channel 0 offset -10 after home shift, got %d", pos[0])
	}
	if err := bank.Home(0, false); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if ch := bank.Channels(); ch[0].Current != 1510 {
		t.Errorf("expected channel 0 at new home 1510, got %d", ch[0].Current)
	}
}

func TestActuatorBank_DriverErrorPropagates(t *testing.T) {
	bank, drv, _ := newTestBank(t, 25)
	drv.err = errors.New("bus gone")

	if err := bank.MoveTo(Pose{100, 0, 0, 0}, 0, false); err == nil {
		t.Fatal("expected driver error from MoveTo")
	}
}

func TestPose_ScalesMotionUnits(t *testing.T) {
	got := pose(65, 17.5, 0, -35)
	want := Pose{650, 175, 0, -350}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
