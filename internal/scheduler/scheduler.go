package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled interval.
type TickFunc func(ctx context.Context, ts time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// RunOnStart fires one tick immediately before entering the interval
	// loop, so a fresh process does not wait a full interval for data.
	RunOnStart bool
}

// Scheduler drives serialized execution of periodic jobs. A tick runs to
// completion before the next trigger is armed, so ticks never overlap
// in-process; a slow tick simply delays its successor.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function on each interval until ctx is
// cancelled. Tick errors are logged, never fatal: the next scheduled tick
// always proceeds.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
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
		s.fire(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			// The previous tick overran this trigger; skip to the next
			// slot rather than queueing a burst of catch-up runs.
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
			timer.Stop()
		}

		s.fire(ctx, tick, s.tickStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, ts time.Time) {
	s.logger.Info().Time("tick", ts).Msg("executing scheduled tick")
	if err := tick(ctx, ts); err != nil {
		s.logger.Error().Err(err).Time("tick", ts).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	tick := now.Truncate(s.opts.Interval)
	if !tick.After(now) {
		tick = tick.Add(s.opts.Interval)
	}
	return tick
}

func (s *Scheduler) tickStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
