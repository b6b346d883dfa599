package schedule

import (
	"context"
	"time"
)

const defaultTick = 100 * time.Millisecond

// Scheduler samples a Plan against a clock and reports target changes.
type Scheduler struct {
	plan *Plan
	now  func() time.Time
	tick time.Duration
}

type Option func(*Scheduler)

// WithClock replaces time.Now as the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTick sets how often the plan is sampled.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func New(plan *Plan, opts ...Option) *Scheduler {
	s := &Scheduler{plan: plan, now: time.Now, tick: defaultTick}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Plan() *Plan {
	return s.plan
}

// Run calls apply with the initial target, again on every tick where the
// target changed, and finally with 0 once the plan ends. It returns nil when
// the plan completes and ctx.Err() when cancelled first; apply is not called
// with 0 on cancellation.
func (s *Scheduler) Run(ctx context.Context, apply func(target int)) error {
	start := s.now()
	current, ok := s.plan.TargetAt(0)
	if !ok {
		apply(0)
		return nil
	}
	apply(current)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			target, ok := s.plan.TargetAt(s.now().Sub(start))
			if !ok {
				apply(0)
				return nil
			}
			if target != current {
				current = target
				apply(current)
			}
		}
	}
}
