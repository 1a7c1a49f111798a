package timer

import (
	"sync"
	"time"

	"github.com/hammamikhairi/tabkha/internal/logger"
)

// Option configures the supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock. Used by tests.
func WithClock(c Clock) Option {
	return func(s *Supervisor) {
		s.clock = c
	}
}

// WithIdleTimeout sets how long the session may sit without activity
// before the supervisor gives up on it. Zero disables the supervisor.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.timeout = d
	}
}

// Supervisor watches a session for inactivity and calls onIdle once when
// nothing has touched it for the configured timeout.
type Supervisor struct {
	clock   Clock
	timeout time.Duration
	onIdle  func()
	log     *logger.Logger

	mu       sync.Mutex
	running  bool
	fired    bool
	last     time.Time
	deadline Stopper
}

// New creates an inactivity supervisor.
func New(onIdle func(), log *logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		clock:  Real{},
		onIdle: onIdle,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a timeout is configured.
func (s *Supervisor) Enabled() bool {
	return s.timeout > 0
}

// Start arms the supervisor. Non-blocking; a no-op when disabled or
// already running.
func (s *Supervisor) Start() {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("inactivity supervisor already running")
		return
	}
	s.running = true
	s.fired = false
	s.last = s.clock.Now()
	s.deadline = s.clock.AfterFunc(s.timeout, s.check)

	s.log.Info("inactivity supervisor started (timeout=%s)", s.timeout)
}

// Touch records activity and pushes the deadline out.
func (s *Supervisor) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.last = s.clock.Now()
	}
}

// Stop disarms the supervisor.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	s.log.Info("inactivity supervisor stopped")
}

// check runs when the deadline passes. If activity happened in the
// meantime it re-arms for the remaining window instead of firing.
func (s *Supervisor) check() {
	s.mu.Lock()
	if !s.running || s.fired {
		s.mu.Unlock()
		return
	}

	idle := s.clock.Now().Sub(s.last)
	if idle < s.timeout {
		s.deadline = s.clock.AfterFunc(s.timeout-idle, s.check)
		s.mu.Unlock()
		return
	}

	s.fired = true
	s.running = false
	s.deadline = nil
	s.mu.Unlock()

	s.log.Warn("session idle for %s, giving up", idle)
	if s.onIdle != nil {
		s.onIdle()
	}
}
