package main

import (
	"fmt"
	"time"
)

// AutoLast is the distance band of the previous engaged sample.
type AutoLast int

const (
	LastNone AutoLast = iota
	LastTooNear
	LastNear
	LastFar
	LastYellow
	LastReady
)

func (l AutoLast) String() string {
	switch l {
	case LastTooNear:
		return "too_near"
	case LastNear:
		return "near"
	case LastFar:
		return "far"
	case LastYellow:
		return "yellow"
	case LastReady:
		return "ready"
	default:
		return "none"
	}
}

func (l AutoLast) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *AutoLast) UnmarshalText(b []byte) error {
	for v := LastNone; v <= LastReady; v++ {
		if v.String() == string(b) {
			*l = v
			return nil
		}
	}
	return fmt.Errorf("unknown autopilot band %q", b)
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	for _, v := range []Side{SideUnset, SideLeft, SideRight} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown side %q", b)
}

// AutopilotState is owned by the autopilot and only changed by ReduceAutopilot.
type AutopilotState struct {
	Enabled    bool     `json:"enabled"`
	Engaged    bool     `json:"engaged"`
	Last       AutoLast `json:"last"`
	TouchCount int      `json:"touch_count"`
	ReadyCount int      `json:"ready_count"`
	Side       Side     `json:"side"`
	Distance   int      `json:"distance_mm"`

	// Recovering is set while the walk is interrupted by an obstacle
	// reaction; the next clear sample resumes forward and clears it.
	Recovering bool `json:"recovering"`

	// Epoch increments on every disable so samples taken before it are void.
	Epoch uint64 `json:"epoch"`
}

// AutopilotParams are the reducer thresholds (mm) and worker timing.
type AutopilotParams struct {
	DTouch        int
	DTooNear      int
	DNear         int
	DYellowMargin int
	DFar          int
	DReadyMin     int
	DReadyMax     int

	ReadyCountCommit int
	TouchCountCommit int

	Poll          time.Duration
	ReactionPause time.Duration
}

// DefaultAutopilotParams matches DefaultConfig's autopilot section.
func DefaultAutopilotParams() AutopilotParams {
	return AutopilotParams{
		DTouch:           defaultDTouch,
		DTooNear:         defaultDTooNear,
		DNear:            defaultDNear,
		DYellowMargin:    defaultDYellowMargin,
		DFar:             defaultDFar,
		DReadyMin:        defaultDReadyMin,
		DReadyMax:        defaultDReadyMax,
		ReadyCountCommit: defaultReadyCountCommit,
		TouchCountCommit: defaultTouchCountCommit,
		Poll:             defaultAutoPollMS * time.Millisecond,
		ReactionPause:    defaultReactionPauseMS * time.Millisecond,
	}
}

// ==============================
// Events
// ==============================

// AutopilotEvent is the input to ReduceAutopilot.
type AutopilotEvent interface {
	autopilotEventMarker()
}

// Sample is one ranging reading. Fault marks a read error. Coin is drawn by
// the worker so the reducer stays deterministic.
type Sample struct {
	Distance int
	Fault    bool
	Coin     Side
	Epoch    uint64
}

func (Sample) autopilotEventMarker() {}

// ControlOp is a user-level autopilot command.
type ControlOp string

const (
	ControlOn      ControlOp = "on"
	ControlOff     ControlOp = "off"
	ControlEnable  ControlOp = "enable"
	ControlDisable ControlOp = "disable"
)

func parseControlOp(s string) (ControlOp, error) {
	switch op := ControlOp(s); op {
	case ControlOn, ControlOff, ControlEnable, ControlDisable:
		return op, nil
	}
	return "", fmt.Errorf("unknown autopilot command %q (want on, off, enable or disable)", s)
}

// Control applies a ControlOp.
type Control struct {
	Op ControlOp
}

func (Control) autopilotEventMarker() {}

// ==============================
// Emits (side effects)
// ==============================

// Emit is a command the reducer asks to be sent to the dispatcher.
type Emit struct {
	Cmd     Command
	Preempt bool
}

func (e Emit) String() string {
	if e.Preempt {
		return "!" + e.Cmd.String()
	}
	return e.Cmd.String()
}

// AutopilotResult is the output of ReduceAutopilot. Reaction asks the worker
// to let the emitted reaction play out before sampling again.
type AutopilotResult struct {
	State    AutopilotState
	Emits    []Emit
	Reaction bool
}
