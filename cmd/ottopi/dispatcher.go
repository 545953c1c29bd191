package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Command Dispatcher
// ============================================================================
//
// One worker goroutine consumes a FIFO of entries:
//   - command: resolve the motion and run it
//   - resume:  clear the stop flag (under the queue lock, as it is popped)
//   - end:     exit the worker
//
// Preemption sets the stop flag and drops everything still queued. Looping
// gaits observe the flag between whole cycles, so the robot is always left at
// a clean boundary before the next command runs.
//
// ============================================================================

// MotionRunner executes one motion. *GaitLibrary implements it.
type MotionRunner interface {
	Run(id MotionID, n int, speed float64, quick bool, stopped func() bool) error
}

// Parker brings the actuators to rest on shutdown. *ActuatorBank implements it.
type Parker interface {
	Home(speed float64, quick bool) error
	Off() error
}

type entryKind int

const (
	entryCommand entryKind = iota
	entryResume
	entryEnd
)

type queueEntry struct {
	kind entryKind
	cmd  Command
}

// Dispatcher runs motions on a single worker goroutine.
type Dispatcher struct {
	runner MotionRunner
	parker Parker
	logger *slog.Logger

	stop    atomic.Bool
	running atomic.Bool

	mu     sync.Mutex
	queue  []queueEntry
	notify chan struct{}

	// current is the command being executed; err the reason the worker died.
	stateMu sync.Mutex
	current *Command
	err     error

	done    chan struct{}
	endOnce sync.Once
	endErr  error
}

// NewDispatcher starts a worker bound to runner. parker is used by End.
func NewDispatcher(runner MotionRunner, parker Parker, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		runner: runner,
		parker: parker,
		logger: componentLogger(logger, "dispatcher"),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.running.Store(true)
	go d.run()
	return d
}

// Send queues cmd. With preempt the in-flight motion is asked to stop at its
// next boundary and every queued command is discarded first.
func (d *Dispatcher) Send(cmd Command, preempt bool) {
	d.mu.Lock()
	if preempt {
		d.stop.Store(true)
		d.drainLocked()
		d.queue = append(d.queue, queueEntry{kind: entryResume})
	}
	d.queue = append(d.queue, queueEntry{kind: entryCommand, cmd: cmd})
	d.mu.Unlock()

	d.logger.Debug("command queued", "cmd", cmd.String(), "preempt", preempt)
	d.wake()
}

// drainLocked drops queued entries. Caller holds d.mu.
func (d *Dispatcher) drainLocked() {
	for _, e := range d.queue {
		if e.kind == entryCommand {
			d.logger.Info("discarding queued command", "cmd", e.cmd.String())
		}
	}
	d.queue = d.queue[:0]
}

func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// IsActive reports whether the worker is still running.
func (d *Dispatcher) IsActive() bool {
	return d.running.Load()
}

// Stopping reports whether a stop has been requested and not yet resumed.
func (d *Dispatcher) Stopping() bool {
	return d.stop.Load()
}

// Current returns the command being executed, if any.
func (d *Dispatcher) Current() (Command, bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.current == nil {
		return Command{}, false
	}
	return *d.current, true
}

// Pending counts queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.queue {
		if e.kind == entryCommand {
			n++
		}
	}
	return n
}

// Err returns why the worker died, or nil.
func (d *Dispatcher) Err() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.err
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// End stops the worker, waits for it and parks the actuators: home, then off.
// It is safe to call more than once and on a dead dispatcher.
func (d *Dispatcher) End() error {
	d.endOnce.Do(func() {
		d.mu.Lock()
		d.stop.Store(true)
		d.drainLocked()
		d.queue = append(d.queue, queueEntry{kind: entryEnd})
		d.mu.Unlock()
		d.wake()

		<-d.done

		if d.parker == nil {
			return
		}
		var errs []error
		if err := d.parker.Home(0, false); err != nil {
			errs = append(errs, fmt.Errorf("home: %w", err))
		}
		if err := d.parker.Off(); err != nil {
			errs = append(errs, fmt.Errorf("off: %w", err))
		}
		d.endErr = errors.Join(errs...)
		d.logger.Info("dispatcher ended")
	})
	return d.endErr
}

// pop blocks until an entry is available. A resume entry clears the stop flag
// while the queue lock is held so a concurrent preempt cannot be lost.
func (d *Dispatcher) pop() queueEntry {
	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			e := d.queue[0]
			d.queue = d.queue[1:]
			if e.kind == entryResume {
				d.stop.Store(false)
			}
			d.mu.Unlock()
			return e
		}
		d.mu.Unlock()
		<-d.notify
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	defer d.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			d.setErr(fmt.Errorf("worker panic: %v", r))
			d.logger.Error("worker panic", "panic", r)
		}
	}()

	d.logger.Info("worker started")
	for {
		e := d.pop()
		switch e.kind {
		case entryResume:
			continue
		case entryEnd:
			d.logger.Info("worker exiting")
			return
		}

		if err := d.execute(e.cmd); err != nil {
			d.setErr(err)
			d.logger.Error("motion failed, worker exiting", "cmd", e.cmd.String(), "error", err)
			return
		}
	}
}

func (d *Dispatcher) execute(cmd Command) error {
	id, ok := LookupMotion(cmd.Name)
	if !ok {
		d.logger.Warn("unknown command", "cmd", cmd.Name)
		return nil
	}
	n := effectiveRepeat(cmd.Repeat, id.Loop())

	d.stateMu.Lock()
	d.current = &cmd
	d.stateMu.Unlock()
	defer func() {
		d.stateMu.Lock()
		d.current = nil
		d.stateMu.Unlock()
	}()

	d.logger.Info("running", "cmd", cmd.Name, "n", n, "speed", cmd.Speed, "quick", cmd.Quick)
	if err := d.runner.Run(id, n, cmd.Speed, cmd.Quick, d.stop.Load); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func (d *Dispatcher) setErr(err error) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.err = err
}
