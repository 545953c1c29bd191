package main

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

// fakeCalibration is an in-memory CalibrationStore.
type fakeCalibration struct {
	mu      sync.Mutex
	pins    [numChannels]int
	homes   [numChannels]int
	saves   int
	saveErr error
}

func (f *fakeCalibration) PinMap() [numChannels]int { return f.pins }

func (f *fakeCalibration) HomePulses() [numChannels]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.homes
}

func (f *fakeCalibration) SetHomePulses(h [numChannels]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homes = h
}

func (f *fakeCalibration) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return f.saveErr
}

func newTestGaits(t *testing.T, seed uint64) (*GaitLibrary, *ActuatorBank, *fakeDriver) {
	t.Helper()
	bank, drv, _ := newTestBank(t, defaultPulseStep)
	cal := &fakeCalibration{pins: testPins, homes: [numChannels]int{1500, 1500, 1500, 1500}}
	lib := NewGaitLibrary(bank, cal, rand.New(rand.NewPCG(seed, seed)), slog.Default())
	lib.sleep = func(time.Duration) {}
	return lib, bank, drv
}

func TestMotionTable_NamesResolve(t *testing.T) {
	for _, name := range MotionNames() {
		id, ok := LookupMotion(name)
		if !ok {
			t.Fatalf("expected %q to resolve", name)
		}
		if id.String() != name {
			t.Errorf("expected %q, got %q", name, id.String())
		}
	}
	if _, ok := LookupMotion("moonwalk"); ok {
		t.Error("expected unknown motion to miss")
	}

	loops := map[string]bool{"forward": true, "turn_left": true, "suriashi_fwd": true, "happy": false, "stop": false}
	for name, want := range loops {
		id, _ := LookupMotion(name)
		if id.Loop() != want {
			t.Errorf("%s: expected loop=%v", name, want)
		}
	}
}

// A stop raised mid-cycle lets the cycle finish, then the walk takes its end
// step: the result is exactly what a bounded walk of the same length writes.
func TestGaits_WalkStopsOnlyBetweenCycles(t *testing.T) {
	ref, refBank, refDrv := newTestGaits(t, 7)
	var refSleeps int
	refBank.sleep = func(time.Duration) { refSleeps++ }

	var checkpoints []int
	probe := func() bool {
		checkpoints = append(checkpoints, refSleeps)
		return false
	}
	if err := ref.Run(MotionForward, 2, 0, false, probe); err != nil {
		t.Fatalf("reference walk: %v", err)
	}
	if len(checkpoints) != 2 {
		t.Fatalf("expected 2 stop checks, got %d", len(checkpoints))
	}

	lib, bank, drv := newTestGaits(t, 7)
	var sleeps int
	var stop bool
	stopAt := checkpoints[1] + 2 // inside the second cycle's lift
	bank.sleep = func(time.Duration) {
		sleeps++
		if sleeps == stopAt {
			stop = true
		}
	}
	if err := lib.Run(MotionForward, 0, 0, false, func() bool { return stop }); err != nil {
		t.Fatalf("stopped walk: %v", err)
	}

	want, got := refDrv.snapshot(), drv.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if pos := bank.Position(); pos != (Pose{}) {
		t.Errorf("expected walk to end at home, got %v", pos)
	}
}

func TestGaits_FiniteMotionIgnoresStop(t *testing.T) {
	ref, _, refDrv := newTestGaits(t, 1)
	if err := ref.Run(MotionHappy, 1, 0, false, nil); err != nil {
		t.Fatalf("happy: %v", err)
	}

	lib, _, drv := newTestGaits(t, 1)
	if err := lib.Run(MotionHappy, 1, 0, false, func() bool { return true }); err != nil {
		t.Fatalf("happy: %v", err)
	}
	if len(drv.snapshot()) != len(refDrv.snapshot()) {
		t.Errorf("expected stop flag to be ignored: %d writes vs %d", len(drv.snapshot()), len(refDrv.snapshot()))
	}
}

func TestGaits_TurnReturnsHome(t *testing.T) {
	lib, bank, _ := newTestGaits(t, 1)
	if err := lib.Run(MotionTurnLeft, 2, 0, false, nil); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if pos := bank.Position(); pos != (Pose{}) {
		t.Errorf("expected turn to end at home, got %v", pos)
	}
}

func TestGaits_SurprisedSnapsQuick(t *testing.T) {
	lib, _, drv := newTestGaits(t, 1)
	if err := lib.Run(MotionSurprised, 1, 0, false, nil); err != nil {
		t.Fatalf("surprised: %v", err)
	}
	first := drv.widthsFor(testPins[0])
	if len(first) == 0 || first[0] != 1500-300 {
		t.Errorf("expected first write to jump straight to 1200, got %v", first)
	}
}

func TestGaits_MoveTrimIsRelativeToLivePosition(t *testing.T) {
	lib, bank, _ := newTestGaits(t, 1)
	if err := bank.MoveTo(Pose{0, 0, 100, 0}, 0, false); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if err := lib.Run(MotionMoveDown2, 1, 0, false, nil); err != nil {
		t.Fatalf("move_down2: %v", err)
	}
	if pos := bank.Position(); pos != (Pose{0, 0, 50, 0}) {
		t.Errorf("expected [0 0 50 0], got %v", pos)
	}
}

func TestGaits_HomeTrimPersists(t *testing.T) {
	lib, bank, _ := newTestGaits(t, 1)
	cal := lib.cal.(*fakeCalibration)

	if err := lib.Run(MotionHomeUp1, 1, 0, false, nil); err != nil {
		t.Fatalf("home_up1: %v", err)
	}
	if h := cal.HomePulses(); h[1] != 1505 {
		t.Errorf("expected stored home 1505, got %d", h[1])
	}
	if cal.saves != 1 {
		t.Errorf("expected one save, got %d", cal.saves)
	}
	ch := bank.Channels()
	if ch[1].Home != 1505 || ch[1].Current != 1505 {
		t.Errorf("expected bank settled at 1505, got home=%d current=%d", ch[1].Home, ch[1].Current)
	}
}

func TestGaits_HomeTrimSurvivesSaveError(t *testing.T) {
	lib, bank, _ := newTestGaits(t, 1)
	lib.cal.(*fakeCalibration).saveErr = errors.New("read-only")

	if err := lib.Run(MotionHomeDown0, 1, 0, false, nil); err != nil {
		t.Fatalf("expected save failure to be logged only, got %v", err)
	}
	if ch := bank.Channels(); ch[0].Home != 1495 {
		t.Errorf("expected home 1495, got %d", ch[0].Home)
	}
}
