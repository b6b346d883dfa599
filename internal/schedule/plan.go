// Package schedule turns ramp stages into a time-varying target VU count.
package schedule

import (
	"math"
	"time"

	"github.com/vuramp/vuramp/internal/config"
)

// Plan is a compiled stage sequence. It is immutable and safe for concurrent use.
type Plan struct {
	segments  []segment
	duration  time.Duration
	maxTarget int
	stages    int
}

type segment struct {
	stage    int
	start    time.Duration
	duration time.Duration
	from     float64
	to       float64
}

// Compile builds a plan where each stage ramps linearly from the previous
// stage's target, starting at 0. Zero-duration stages jump to their target
// without occupying any time. It returns nil when the stages span no time.
func Compile(stages []config.Stage) *Plan {
	plan := &Plan{stages: len(stages)}
	var (
		offset time.Duration
		prev   float64
	)
	for idx, st := range stages {
		target := float64(st.Target)
		plan.maxTarget = max(plan.maxTarget, st.Target)
		if st.Duration <= 0 {
			prev = target
			continue
		}
		plan.segments = append(plan.segments, segment{
			stage:    idx,
			start:    offset,
			duration: st.Duration,
			from:     prev,
			to:       target,
		})
		offset += st.Duration
		prev = target
	}
	if len(plan.segments) == 0 {
		return nil
	}
	plan.duration = offset
	return plan
}

// Flat builds a plan holding vus constant for duration.
func Flat(vus int, duration time.Duration) *Plan {
	return Compile([]config.Stage{
		{Duration: 0, Target: vus},
		{Duration: duration, Target: vus},
	})
}

// FromConfig compiles the run shape configured in cfg.
func FromConfig(cfg config.Config) *Plan {
	if cfg.IsRamped() {
		return Compile(cfg.Stages)
	}
	return Flat(cfg.VUs, cfg.Duration)
}

// RawTargetAt returns the unrounded target at elapsed. ok is false once the
// plan has ended.
func (p *Plan) RawTargetAt(elapsed time.Duration) (float64, bool) {
	seg, ok := p.segmentAt(elapsed)
	if !ok {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if seg.from == seg.to {
		return seg.from, true
	}
	progress := float64(elapsed-seg.start) / float64(seg.duration)
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	return seg.from + (seg.to-seg.from)*progress, true
}

// TargetAt returns the target VU count at elapsed, rounded to the nearest
// integer with halves rounded away from zero.
func (p *Plan) TargetAt(elapsed time.Duration) (int, bool) {
	raw, ok := p.RawTargetAt(elapsed)
	if !ok {
		return 0, false
	}
	return int(math.Round(raw)), true
}

// StageAt returns the zero-based index of the configured stage active at
// elapsed, or -1 once the plan has ended.
func (p *Plan) StageAt(elapsed time.Duration) int {
	seg, ok := p.segmentAt(elapsed)
	if !ok {
		return -1
	}
	return seg.stage
}

func (p *Plan) segmentAt(elapsed time.Duration) (segment, bool) {
	if p == nil || len(p.segments) == 0 {
		return segment{}, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= p.duration {
		return segment{}, false
	}
	for _, seg := range p.segments {
		if elapsed < seg.start+seg.duration {
			return seg, true
		}
	}
	return segment{}, false
}

// Duration is the sum of all stage durations.
func (p *Plan) Duration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}

// MaxTarget is the highest target any stage reaches.
func (p *Plan) MaxTarget() int {
	if p == nil {
		return 0
	}
	return p.maxTarget
}

// Stages is the number of configured stages, including zero-duration ones.
func (p *Plan) Stages() int {
	if p == nil {
		return 0
	}
	return p.stages
}
