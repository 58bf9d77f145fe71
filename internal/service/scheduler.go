package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrCycleInFlight is returned by RunNow when a cycle is already running
var ErrCycleInFlight = errors.New("monitoring cycle already in flight")

// Scheduler fires one registered callback on a cron schedule with a
// single-flight guarantee: a tick that arrives while the previous invocation
// is still running is skipped entirely, not queued.
type Scheduler struct {
	mu       sync.Mutex
	parser   cron.Parser
	expr     string
	callback func()
	cron     *cron.Cron
	running  bool

	inFlight atomic.Bool
	skipped  atomic.Int64

	log zerolog.Logger
}

// NewScheduler creates a scheduler bound to a cron expression and callback.
// The expression is validated by Start, not here.
func NewScheduler(expr string, callback func(), log zerolog.Logger) *Scheduler {
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		expr:     expr,
		callback: callback,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start validates the expression and arms the trigger. An invalid
// expression rejects the call with no side effects; the scheduler stays
// Stopped. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.parser.Parse(s.expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.expr, err)
	}

	s.armLocked()
	s.log.Info().Str("schedule", s.expr).Msg("scheduler started")
	return nil
}

// Stop disarms the trigger. In-flight work is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.disarmLocked()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow invokes the callback out-of-band under the same single-flight
// flag. Returns ErrCycleInFlight without doing any work when busy.
func (s *Scheduler) RunNow() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return ErrCycleInFlight
	}
	defer s.inFlight.Store(false)
	s.callback()
	return nil
}

// UpdateSchedule validates the new expression first; on success, a running
// scheduler atomically restarts on the new schedule. On failure the
// previous expression remains active.
func (s *Scheduler) UpdateSchedule(expr string) error {
	if _, err := s.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expr = expr
	if s.running {
		s.disarmLocked()
		s.armLocked()
		s.log.Info().Str("schedule", expr).Msg("schedule updated")
	}
	return nil
}

// Running reports whether the periodic trigger is armed
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// InFlight reports whether a callback invocation is currently running
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// SkippedTicks returns how many ticks or manual triggers were coalesced
// into no-ops because a cycle was already in flight
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

// Schedule returns the active cron expression
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

func (s *Scheduler) armLocked() {
	s.cron = cron.New(cron.WithParser(s.parser))
	// Expression already validated, AddFunc cannot fail here.
	_, _ = s.cron.AddFunc(s.expr, s.tick)
	s.cron.Start()
	s.running = true
}

func (s *Scheduler) disarmLocked() {
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
}

func (s *Scheduler) tick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.log.Warn().Int64("skipped_total", n).Msg("tick skipped, previous cycle still running")
		return
	}
	defer s.inFlight.Store(false)
	s.callback()
}
