package main

import (
	"log/slog"
	"sync"
)

// Supervisor owns the replaceable dispatcher handle. Adapters and the
// autopilot talk to it rather than to a Dispatcher directly, so a worker
// that died on a driver error is replaced before the next command.
type Supervisor struct {
	runner MotionRunner
	parker Parker
	logger *slog.Logger

	mu       sync.Mutex
	current  *Dispatcher
	restarts int
	ended    bool
}

// NewSupervisor starts the first dispatcher.
func NewSupervisor(runner MotionRunner, parker Parker, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		runner: runner,
		parker: parker,
		logger: componentLogger(logger, "supervisor"),
	}
	s.current = NewDispatcher(runner, parker, logger)
	return s
}

// EnsureAlive replaces a dead dispatcher with a fresh one. It reports whether
// a replacement happened.
func (s *Supervisor) EnsureAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.current.IsActive() {
		return false
	}
	s.logger.Warn("dispatcher dead, restarting", "error", s.current.Err(), "restarts", s.restarts)
	s.current = NewDispatcher(s.runner, s.parker, s.logger)
	s.restarts++
	return true
}

// Send forwards cmd to the live dispatcher, reviving it first if needed.
func (s *Supervisor) Send(cmd Command, preempt bool) {
	s.EnsureAlive()
	s.dispatcher().Send(cmd, preempt)
}

// IsActive reports the current worker's liveness.
func (s *Supervisor) IsActive() bool {
	return s.dispatcher().IsActive()
}

// Current returns the command the live worker is executing.
func (s *Supervisor) Current() (Command, bool) {
	return s.dispatcher().Current()
}

// Pending counts commands queued on the live worker.
func (s *Supervisor) Pending() int {
	return s.dispatcher().Pending()
}

// Restarts counts dispatcher replacements.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// End stops the live dispatcher for good; later sends are dropped by the
// ended worker and EnsureAlive no longer revives it.
func (s *Supervisor) End() error {
	s.mu.Lock()
	s.ended = true
	d := s.current
	s.mu.Unlock()
	return d.End()
}

func (s *Supervisor) dispatcher() *Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
