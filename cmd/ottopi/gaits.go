package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Side is the leading foot or the direction of a lateral move.
type Side int

const (
	SideUnset Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unset"
	}
}

// Opposite returns the other side. Unset stays unset.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return SideUnset
	}
}

// walkStep selects one half of a walk cycle.
type walkStep int

const (
	stepForward walkStep = iota
	stepBackward
	stepEnd
)

// stride describes a walk cycle in motion units: lift is how far each ankle
// tilts to take the weight off the other foot, swing how far the hips turn.
type stride struct {
	lift  [2]float64
	swing float64
}

var (
	walkStride     = stride{lift: [2]float64{65, 35}, swing: 35}
	suriashiStride = stride{lift: [2]float64{30, 15}, swing: 25}
)

const (
	gaitInterval   = 0                       // default pause between poses
	liftSettle     = 20 * time.Millisecond   // let the weight shift before swinging
	walkLeadIn     = 500 * time.Millisecond  // pause at home before a walk
	gestureLeadIn  = 300 * time.Millisecond  // pause at home before a gesture
	bowHold        = 500 * time.Millisecond  // per-pose pause while bowing
	bowRest        = 1000 * time.Millisecond // rest after each bow
	surpriseHold   = 500 * time.Millisecond
	waveInterval   = 100 * time.Millisecond
	waveRepetition = 3
)

// GaitLibrary composes actuator bank moves into the named motions.
//
// It is driven by one dispatcher worker at a time; Run scopes the speed,
// quick flag and stop probe to a single invocation.
type GaitLibrary struct {
	bank   *ActuatorBank
	cal    CalibrationStore
	logger *slog.Logger
	rng    *rand.Rand

	// sleep is time.Sleep outside tests.
	sleep func(time.Duration)

	speed   float64
	quick   bool
	stopped func() bool
}

// NewGaitLibrary binds the gaits to a bank. cal may be nil, in which case
// home trims are applied to the bank only. rng may be nil.
func NewGaitLibrary(bank *ActuatorBank, cal CalibrationStore, rng *rand.Rand, logger *slog.Logger) *GaitLibrary {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &GaitLibrary{
		bank:   bank,
		cal:    cal,
		logger: componentLogger(logger, "gaits"),
		rng:    rng,
		sleep:  time.Sleep,
	}
}

// Run executes motion id for n repetitions. Looping gaits consult stopped
// between whole cycles; a nil stopped never stops.
func (g *GaitLibrary) Run(id MotionID, n int, speed float64, quick bool, stopped func() bool) error {
	if id < 0 || id >= motionCount {
		return fmt.Errorf("unknown motion id %d", id)
	}
	if stopped == nil {
		stopped = func() bool { return false }
	}
	g.speed, g.quick, g.stopped = speed, quick, stopped
	return motionTable[id].run(g, n)
}

// ============================================================================
// Primitives
// ============================================================================

func (g *GaitLibrary) moveTo(p Pose) error {
	return g.bank.MoveTo(p, g.speed, g.quick)
}

// moves visits each pose in order, pausing interval after each.
func (g *GaitLibrary) moves(interval time.Duration, poses ...Pose) error {
	for _, p := range poses {
		if err := g.moveTo(p); err != nil {
			return err
		}
		g.pause(interval)
	}
	return nil
}

func (g *GaitLibrary) pause(d time.Duration) {
	if d > 0 {
		g.sleep(d)
	}
}

func (g *GaitLibrary) goHome() error {
	return g.bank.Home(g.speed, g.quick)
}

func (g *GaitLibrary) coin() Side {
	if g.rng.IntN(2) == 0 {
		return SideLeft
	}
	return SideRight
}

func once(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// ============================================================================
// Control
// ============================================================================

func (g *GaitLibrary) null(int) error { return nil }

// stop leaves the robot where preemption left it: at a cycle boundary.
func (g *GaitLibrary) stop(int) error {
	g.logger.Debug("stop")
	return nil
}

func (g *GaitLibrary) home(int) error {
	return g.goHome()
}

// ============================================================================
// Walking
// ============================================================================

// walkHalf moves one foot forward or backward. stepEnd settles the feet and
// returns home.
func (g *GaitLibrary) walkHalf(s stride, step walkStep, side Side) error {
	l0, l1 := s.lift[0], s.lift[1]
	sw := s.swing

	var lift, swing Pose
	if side == SideRight {
		switch step {
		case stepBackward:
			lift = pose(l0, 0, 0, l1)
		default:
			lift = pose(l0, sw/2, 0, l1)
		}
		if step == stepBackward {
			swing = pose(0, -sw, -sw, 0)
		} else {
			swing = pose(0, sw, sw, 0)
		}
	} else {
		switch step {
		case stepBackward:
			lift = pose(-l1, 0, 0, -l0)
		default:
			lift = pose(-l1, 0, -sw/2, -l0)
		}
		if step == stepBackward {
			swing = pose(0, sw, sw, 0)
		} else {
			swing = pose(0, -sw, -sw, 0)
		}
	}

	if err := g.moveTo(lift); err != nil {
		return err
	}
	g.pause(liftSettle)

	if step == stepEnd {
		return g.goHome()
	}
	return g.moveTo(swing)
}

// walk runs n cycles alternating feet from a random side, checking the stop
// flag before each cycle, then takes the end step.
func (g *GaitLibrary) walk(s stride, n int, step walkStep) error {
	if n <= 0 {
		n = nContinuous
	}
	side := g.coin()

	if err := g.goHome(); err != nil {
		return err
	}
	g.pause(walkLeadIn)

	for i := 0; i < n; i++ {
		if g.stopped() {
			g.logger.Debug("walk stopped", "cycles", i)
			break
		}
		if err := g.walkHalf(s, step, side); err != nil {
			return err
		}
		side = side.Opposite()
	}
	return g.walkHalf(s, stepEnd, side)
}

func (g *GaitLibrary) forward(n int) error  { return g.walk(walkStride, n, stepForward) }
func (g *GaitLibrary) backward(n int) error { return g.walk(walkStride, n, stepBackward) }

func (g *GaitLibrary) suriashiForward(n int) error {
	return g.walk(suriashiStride, n, stepForward)
}

func (g *GaitLibrary) rightForward(n int) error {
	if err := g.turnStep(SideRight); err != nil {
		return err
	}
	return g.forward(n)
}

func (g *GaitLibrary) leftForward(n int) error {
	if err := g.turnStep(SideLeft); err != nil {
		return err
	}
	return g.forward(n)
}

// Backing up while turning right means pivoting left first, and vice versa.
func (g *GaitLibrary) rightBackward(n int) error {
	if err := g.turnStep(SideLeft); err != nil {
		return err
	}
	return g.backward(n)
}

func (g *GaitLibrary) leftBackward(n int) error {
	if err := g.turnStep(SideRight); err != nil {
		return err
	}
	return g.backward(n)
}

// ============================================================================
// Turning and sliding
// ============================================================================

// turnStep is one full five-pose pivot towards side.
func (g *GaitLibrary) turnStep(side Side) error {
	const l0, l1, sw = 65.0, 35.0, 30.0
	if side == SideLeft {
		return g.moves(gaitInterval,
			pose(l0, sw, sw, l1),
			pose(0, -sw, sw, l1/2),
			pose(0, -sw, sw, 0),
			pose(-l1, 0, 0, -l0),
			pose(0, 0, 0, 0),
		)
	}
	return g.moves(gaitInterval,
		pose(-l1, -sw, -sw, -l0),
		pose(-l1/2, -sw, sw, 0),
		pose(0, -sw, sw, 0),
		pose(l0, 0, 0, l1),
		pose(0, 0, 0, 0),
	)
}

func (g *GaitLibrary) turn(side Side, n int) error {
	if n <= 0 {
		n = nContinuous
	}
	for i := 0; i < n; i++ {
		if g.stopped() {
			break
		}
		if err := g.turnStep(side); err != nil {
			return err
		}
	}
	return nil
}

func (g *GaitLibrary) turnRight(n int) error { return g.turn(SideRight, n) }
func (g *GaitLibrary) turnLeft(n int) error  { return g.turn(SideLeft, n) }

func (g *GaitLibrary) slideStep(side Side) error {
	if side == SideLeft {
		return g.moves(gaitInterval,
			pose(80, 0, 0, 30),
			pose(-10, 0, 0, -60),
			pose(0, 0, 0, 0),
		)
	}
	return g.moves(gaitInterval,
		pose(-30, 0, 0, -80),
		pose(60, 0, 0, 10),
		pose(0, 0, 0, 0),
	)
}

func (g *GaitLibrary) slide(side Side, n int) error {
	if n <= 0 {
		n = nContinuous
	}
	if err := g.goHome(); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if g.stopped() {
			break
		}
		if err := g.slideStep(side); err != nil {
			return err
		}
	}
	return nil
}

func (g *GaitLibrary) slideRight(n int) error { return g.slide(SideRight, n) }
func (g *GaitLibrary) slideLeft(n int) error  { return g.slide(SideLeft, n) }

// ============================================================================
// Gestures
// ============================================================================

func (g *GaitLibrary) happy(n int) error {
	if err := g.goHome(); err != nil {
		return err
	}
	g.pause(gestureLeadIn)
	for i := 0; i < once(n); i++ {
		if err := g.moves(gaitInterval,
			pose(70, 0, 0, -10),
			pose(0, 0, 0, 0),
			pose(10, 0, 0, -70),
			pose(0, 0, 0, 0),
		); err != nil {
			return err
		}
	}
	return nil
}

// greet leans onto one foot and waves the other.
func (g *GaitLibrary) greet(side Side, n int) error {
	lean, up, down := pose(65, 0, 0, 35), pose(65, 0, 0, 60), pose(65, 0, 0, 20)
	if side == SideLeft {
		lean, up, down = pose(-35, 0, 0, -65), pose(-60, 0, 0, -65), pose(-20, 0, 0, -65)
	}

	if err := g.goHome(); err != nil {
		return err
	}
	g.pause(gestureLeadIn)
	for i := 0; i < once(n); i++ {
		if err := g.moves(gaitInterval, lean); err != nil {
			return err
		}
		for w := 0; w < waveRepetition; w++ {
			if err := g.moves(waveInterval, up, down); err != nil {
				return err
			}
		}
		if err := g.moves(gaitInterval, lean); err != nil {
			return err
		}
	}
	return g.goHome()
}

func (g *GaitLibrary) hiRight(n int) error { return g.greet(SideRight, n) }
func (g *GaitLibrary) hiLeft(n int) error  { return g.greet(SideLeft, n) }

// surprised snaps into a crouch regardless of the requested mode, then
// recovers at the normal pace.
func (g *GaitLibrary) surprised(n int) error {
	for i := 0; i < once(n); i++ {
		if err := g.bank.MoveTo(pose(-30, -40, 40, 30), g.speed, true); err != nil {
			return err
		}
		g.pause(surpriseHold)
		if err := g.bank.Home(g.speed, false); err != nil {
			return err
		}
	}
	return nil
}

func (g *GaitLibrary) ojigi(n int) error {
	if err := g.goHome(); err != nil {
		return err
	}
	g.pause(gestureLeadIn)
	for i := 0; i < once(n); i++ {
		if err := g.moves(gaitInterval,
			pose(-10, -85, 0, 0),
			pose(-10, -85, 85, 10),
		); err != nil {
			return err
		}
		if err := g.moves(bowHold,
			pose(-15, -85, 85, 15),
			pose(-15, -85, 85, 15),
		); err != nil {
			return err
		}
		if err := g.moves(gaitInterval,
			pose(-10, -85, 0, 0),
			pose(0, 0, 0, 0),
		); err != nil {
			return err
		}
		g.pause(bowRest)
	}
	return nil
}

func (g *GaitLibrary) ojigi2(n int) error {
	for i := 0; i < once(n); i++ {
		if err := g.moves(bowHold,
			pose(-10, -90, -30, -10),
			pose(-15, -90, -35, -15),
			pose(-10, -90, -30, -10),
			pose(0, 0, 0, 0),
		); err != nil {
			return err
		}
		g.pause(bowRest)
	}
	return nil
}

// ============================================================================
// Trims
// ============================================================================

// changePos nudges one joint relative to its live position.
func (g *GaitLibrary) changePos(ch, units, n int) error {
	for i := 0; i < once(n); i++ {
		p := g.bank.Position()
		p[ch] += units * poseScale
		if err := g.moveTo(p); err != nil {
			return err
		}
	}
	g.logger.Info("position trimmed", "channel", ch, "position", g.bank.Position())
	return nil
}

// adjustHome shifts one channel's home pulse, persists it and settles on it.
// A failed save is logged; the new home still applies until restart.
func (g *GaitLibrary) adjustHome(ch, pulses, n int) error {
	var homes [numChannels]int
	if g.cal != nil {
		homes = g.cal.HomePulses()
	} else {
		for i, c := range g.bank.Channels() {
			homes[i] = c.Home
		}
	}

	v := homes[ch] + pulses*once(n)
	if v < pulseMin {
		v = pulseMin
	}
	if v > pulseMax {
		v = pulseMax
	}
	homes[ch] = v

	if g.cal != nil {
		g.cal.SetHomePulses(homes)
		if err := g.cal.Save(); err != nil {
			g.logger.Error("save calibration failed", "error", err)
		}
	}
	g.bank.SetHome(homes)
	g.logger.Info("home trimmed", "channel", ch, "home", homes)
	return g.goHome()
}
