package main

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// CommandSink receives autopilot commands. *Supervisor implements it.
type CommandSink interface {
	Send(cmd Command, preempt bool)
}

var errAutopilotEnded = errors.New("autopilot ended")

// Autopilot polls the ranging sensor and steers the robot away from obstacles.
//
// The worker goroutine owns sensor reads and randomness. State changes go
// through ReduceAutopilot under mu, and emitted commands are sent while mu is
// still held, so once Disable returns no stale sample can reach the sink.
type Autopilot struct {
	sensor RangingSensor
	sink   CommandSink
	params AutopilotParams
	mode   RangingMode
	logger *slog.Logger
	rng    *rand.Rand

	ctrl chan ControlOp
	quit chan struct{}
	done chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	mu    sync.Mutex
	state AutopilotState
}

// NewAutopilot builds an idle autopilot. Call Start to begin sampling.
func NewAutopilot(sensor RangingSensor, sink CommandSink, params AutopilotParams, mode RangingMode, rng *rand.Rand, logger *slog.Logger) *Autopilot {
	if sensor == nil {
		sensor = NoSensor{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if params.Poll <= 0 {
		params.Poll = defaultAutoPollMS * time.Millisecond
	}
	return &Autopilot{
		sensor: sensor,
		sink:   sink,
		params: params,
		mode:   mode,
		logger: componentLogger(logger, "autopilot"),
		rng:    rng,
		ctrl:   make(chan ControlOp, 8),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins ranging and launches the worker.
func (a *Autopilot) Start() error {
	var err error
	a.startOnce.Do(func() {
		if err = a.sensor.StartRanging(a.mode); err != nil {
			close(a.done)
			return
		}
		go a.run()
	})
	return err
}

// Send queues a control command for the worker. disable is applied
// synchronously.
func (a *Autopilot) Send(op ControlOp) error {
	if op == ControlDisable {
		a.Disable()
		return nil
	}
	select {
	case <-a.quit:
		return errAutopilotEnded
	default:
	}
	select {
	case a.ctrl <- op:
		return nil
	case <-a.quit:
		return errAutopilotEnded
	}
}

// Disable stops any engagement, clears all counters and voids samples already
// in flight. It returns after the stop command, if any, has been sent.
func (a *Autopilot) Disable() {
	a.apply(Control{Op: ControlDisable})
}

// State returns a snapshot.
func (a *Autopilot) State() AutopilotState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// End disables the autopilot, stops the worker and the sensor.
func (a *Autopilot) End() error {
	var err error
	a.endOnce.Do(func() {
		a.Disable()
		// A never-started worker has nothing to join.
		a.startOnce.Do(func() { close(a.done) })
		close(a.quit)
		<-a.done
		err = a.sensor.StopRanging()
		a.logger.Info("autopilot ended")
	})
	return err
}

// apply reduces ev and sends its emits, all under mu.
func (a *Autopilot) apply(ev AutopilotEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.state
	res := ReduceAutopilot(a.state, ev, a.params)
	a.state = res.State

	if prev.Engaged != res.State.Engaged || prev.Enabled != res.State.Enabled || prev.Last != res.State.Last {
		a.logger.Info("autopilot state",
			"enabled", res.State.Enabled,
			"engaged", res.State.Engaged,
			"last", res.State.Last.String(),
			"distance", res.State.Distance)
	}
	for _, e := range res.Emits {
		a.logger.Debug("emit", "cmd", e.Cmd.String(), "preempt", e.Preempt)
		if a.sink != nil {
			a.sink.Send(e.Cmd, e.Preempt)
		}
	}
	return res.Reaction
}

func (a *Autopilot) coin() Side {
	if a.rng.IntN(2) == 0 {
		return SideLeft
	}
	return SideRight
}

func (a *Autopilot) run() {
	defer close(a.done)

	timer := time.NewTimer(a.params.Poll)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(a.params.Poll)

		select {
		case <-a.quit:
			return
		case op := <-a.ctrl:
			a.apply(Control{Op: op})
		case <-timer.C:
		}

		st := a.State()
		if !st.Enabled {
			continue
		}

		d, err := a.sensor.Distance()
		if err != nil {
			a.logger.Warn("sensor read failed, treating as far", "error", err)
		}
		reaction := a.apply(Sample{Distance: d, Fault: err != nil, Coin: a.coin(), Epoch: st.Epoch})
		if reaction && !a.pause(a.params.ReactionPause) {
			return
		}
	}
}

// pause waits d while still servicing control commands. It returns false
// when the autopilot is ending.
func (a *Autopilot) pause(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-a.quit:
			return false
		case op := <-a.ctrl:
			a.apply(Control{Op: op})
		case <-t.C:
			return true
		}
	}
}
