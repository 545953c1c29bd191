package main

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestController(t *testing.T) (*Controller, *fakeRunner, *Autopilot) {
	t.Helper()
	runner := &fakeRunner{}
	sup := NewSupervisor(runner, &fakeParker{}, slog.Default())
	auto := NewAutopilot(&fakeSensor{dist: 1000}, sup, testParams(), RangingBetter, nil, slog.Default())
	if err := auto.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = auto.End()
		_ = sup.End()
	})
	bank, _, _ := newTestBank(t, defaultPulseStep)
	return NewController(sup, bank, auto, slog.Default()), runner, auto
}

func TestController_KeyDispatchesMotion(t *testing.T) {
	c, runner, _ := newTestController(t)

	got := c.HandleLine("1")
	want := []string{"#CMD happy", "#STAT active", "#AUTO false", "#OK"}
	if !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	waitUntil(t, time.Second, func() bool { return len(runner.names()) == 1 }, "happy did not run")
	if runner.names()[0] != "happy" {
		t.Errorf("expected happy, got %v", runner.names())
	}
}

func TestController_UnknownKeyStops(t *testing.T) {
	c, runner, _ := newTestController(t)

	got := c.HandleLine("z")
	if len(got) != 1 || !strings.HasPrefix(got[0], "#NG") || !strings.HasSuffix(got[0], ".. stop") {
		t.Fatalf("expected #NG .. stop, got %v", got)
	}
	waitUntil(t, time.Second, func() bool { return len(runner.names()) == 1 }, "stop did not run")
	if runner.names()[0] != "stop" {
		t.Errorf("expected stop, got %v", runner.names())
	}
}

func TestController_TextCommands(t *testing.T) {
	c, runner, _ := newTestController(t)

	if got := c.HandleLine(":forward 2\r\n"); got[0] != "#CMD forward" {
		t.Errorf("expected #CMD forward, got %v", got)
	}
	if got := c.HandleLine(":.happy"); got[0] != "#CMD happy" {
		t.Errorf("expected #CMD happy, got %v", got)
	}
	waitUntil(t, time.Second, func() bool { return len(runner.names()) == 2 }, "commands did not run")
	if r := runner.record(0); r.Name != "forward" || r.N != 2 {
		t.Errorf("expected forward n=2, got %+v", r)
	}

	if got := c.HandleLine(":forward lots"); !strings.HasPrefix(got[0], "#NG") {
		t.Errorf("expected #NG for bad repeat, got %v", got)
	}
}

func TestController_MultipleKeysInOneLine(t *testing.T) {
	c, _, _ := newTestController(t)

	got := c.HandleLine("0.")
	if len(got) != 8 || got[0] != "#CMD home" || got[4] != "#CMD null" {
		t.Errorf("expected two reply blocks, got %v", got)
	}
}

func TestController_AutopilotControl(t *testing.T) {
	c, runner, auto := newTestController(t)

	if got := c.HandleLine("@"); got[0] != "#CMD auto_on" {
		t.Fatalf("expected #CMD auto_on, got %v", got)
	}
	waitUntil(t, time.Second, func() bool { return auto.State().Engaged }, "autopilot did not engage")
	waitUntil(t, time.Second, func() bool { return len(runner.names()) > 0 }, "forward not dispatched")
	if runner.names()[0] != "forward" {
		t.Errorf("expected forward, got %v", runner.names())
	}

	if got := c.HandleLine("auto disable"); got[0] != "#CMD auto_disable" {
		t.Fatalf("expected #CMD auto_disable, got %v", got)
	}
	if st := auto.State(); st.Enabled || st.Engaged {
		t.Errorf("expected disabled synchronously, got %+v", st)
	}

	if got := c.HandleLine("auto sideways"); !strings.HasPrefix(got[0], "#NG") {
		t.Errorf("expected #NG for unknown op, got %v", got)
	}
}

func TestController_StatusSnapshot(t *testing.T) {
	c, _, _ := newTestController(t)

	st := c.Status()
	if !st.Active {
		t.Error("expected active dispatcher")
	}
	if st.Autopilot == nil {
		t.Fatal("expected autopilot state")
	}
	if st.Channels[0].Pin != testPins[0] {
		t.Errorf("expected channel pin %d, got %d", testPins[0], st.Channels[0].Pin)
	}
}

func TestStripControl(t *testing.T) {
	if got := stripControl("w\r\n"); got != "w" {
		t.Errorf("expected w, got %q", got)
	}
	if got := stripControl("\x1b:home\t"); got != ":home" {
		t.Errorf("expected :home, got %q", got)
	}
}
