package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"price-alerts/internal/metrics"
)

// TickFunc is invoked once per cycle.
type TickFunc func(ctx context.Context, at time.Time) error

// State is the single-flight state of the scheduler.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	// Cron is a standard 5-field expression; when set it replaces Interval.
	Cron         string
	RunOnStart   bool
	StartupDelay time.Duration
}

// Scheduler drives cycles so that no two ever overlap.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	state    atomic.Int32
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
	if opts.Cron != "" {
		schedule, err := cron.ParseStandard(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", opts.Cron, err)
		}
		s.schedule = schedule
		return s, nil
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	return s, nil
}

// State reports whether a cycle is in flight.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// TryRun executes tick if the scheduler is Idle and reports whether it ran.
// A tick arriving while Running is dropped.
func (s *Scheduler) TryRun(ctx context.Context, at time.Time, tick TickFunc) bool {
	if !s.claim(at) {
		return false
	}
	defer s.release()

	s.execute(ctx, at, tick)
	return true
}

func (s *Scheduler) claim(at time.Time) bool {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		metrics.SkippedTicks.Inc()
		s.logger.Warn().Time("tick", at).Msg("previous cycle still running; tick skipped")
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Scheduler) release() {
	s.state.Store(int32(Idle))
	s.inflight.Done()
}

func (s *Scheduler) execute(ctx context.Context, at time.Time, tick TickFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Time("tick", at).
				Msg("cycle panicked")
		}
	}()

	s.logger.Info().Time("tick", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
	}
}

// Run blocks, firing tick on schedule until ctx is cancelled. Ticks are started
// asynchronously so an overrunning cycle causes later ticks to be skipped.
// Run returns only after the in-flight cycle has finished.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	defer s.inflight.Wait()

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, time.Now().UTC(), tick)
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.fire(ctx, next, tick)
		next = s.nextTick(next)
	}
}

func (s *Scheduler) fire(ctx context.Context, at time.Time, tick TickFunc) {
	// Claimed synchronously so Run's Wait always observes the cycle.
	if !s.claim(at) {
		return
	}
	go func() {
		defer s.release()
		s.execute(ctx, at, tick)
	}()
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if s.schedule != nil {
		return s.schedule.Next(now)
	}
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
