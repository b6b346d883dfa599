// Package pool runs virtual users. Each VU is a goroutine that repeats the
// scenario until it is retired by a shrink or the pool is stopped.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/scenario"
)

// Scenario is what a VU repeats. *scenario.Runner implements it.
type Scenario interface {
	RunIteration(ctx, reqCtx context.Context, report func(scenario.StepResult)) bool
}

// Options configure a Pool.
type Options struct {
	Scenario  Scenario
	Collector *metrics.Collector
	Logger    *zap.SugaredLogger
	// LogErrors logs every failed request and check at warn level.
	LogErrors bool
}

// Pool owns the VU goroutines. VUs occupy numbered slots; a VU keeps running
// while its slot number is below the target, so shrinking retires the most
// recently started VUs first and growing again reclaims a retiring VU instead
// of starting a second one in its slot.
type Pool struct {
	scenario  Scenario
	collector *metrics.Collector
	logger    *zap.SugaredLogger
	logErrors bool

	mu      sync.Mutex
	target  int
	slots   []bool // occupied by a live goroutine
	stopped bool

	running atomic.Int64
	peak    atomic.Int64

	// stopCtx interrupts iterations between steps and during pauses.
	// hardCtx is the request context and is only cancelled once the
	// graceful stop period runs out.
	stopCtx    context.Context
	stopCancel context.CancelFunc
	hardCtx    context.Context
	hardCancel context.CancelFunc

	wg sync.WaitGroup
}

func New(opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	stopCtx, stopCancel := context.WithCancel(context.Background())
	hardCtx, hardCancel := context.WithCancel(context.Background())
	return &Pool{
		scenario:   opts.Scenario,
		collector:  collector,
		logger:     logger,
		logErrors:  opts.LogErrors,
		stopCtx:    stopCtx,
		stopCancel: stopCancel,
		hardCtx:    hardCtx,
		hardCancel: hardCancel,
	}
}

// Resize sets the number of active VUs to target. Missing VUs start
// immediately. Surplus VUs retire once their current iteration completes.
// Negative targets count as zero and calls after Stop are ignored.
func (p *Pool) Resize(target int) {
	if target < 0 {
		target = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	p.target = target
	for len(p.slots) < target {
		p.slots = append(p.slots, false)
	}
	for id := 0; id < target; id++ {
		if !p.slots[id] {
			p.slots[id] = true
			p.spawn(id)
		}
	}
}

func (p *Pool) spawn(id int) {
	p.wg.Add(1)
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	go p.loop(id)
}

// keep reports whether VU id should start another iteration. When it should
// not, the slot is released under the same lock so a concurrent Resize can
// refill it.
func (p *Pool) keep(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped && id < p.target {
		return true
	}
	p.slots[id] = false
	return false
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	defer p.running.Add(-1)

	report := func(res scenario.StepResult) { p.report(id+1, res) }
	for p.keep(id) {
		if p.scenario.RunIteration(p.stopCtx, p.hardCtx, report) {
			p.collector.RecordIteration()
		}
	}
}

func (p *Pool) report(vu int, res scenario.StepResult) {
	resp := res.Response
	failure := resp.Failure()
	p.collector.RecordRequest(resp.Latency, failure, &metrics.RequestMetadata{
		Step:       resp.Step,
		Method:     resp.Method,
		StatusCode: resp.Status,
	})
	if failure != nil && p.logErrors {
		p.logger.Warnw("request failed",
			"vu", vu,
			"step", resp.Step,
			"url", resp.URL,
			"status", resp.Status,
			"latency", resp.Latency,
			"error", failure,
		)
	}

	for _, chk := range res.Checks {
		p.collector.RecordCheck(chk.Name, chk.Passed, chk.Err)
		if !chk.Passed && p.logErrors && resp.Err == nil {
			fields := []interface{}{"vu", vu, "step", resp.Step, "check", chk.Name}
			if chk.Err != nil {
				fields = append(fields, "error", chk.Err)
			}
			p.logger.Warnw("check failed", fields...)
		}
	}
}

// Active returns the number of live VUs that are not retiring.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id := 0; id < p.target && id < len(p.slots); id++ {
		if p.slots[id] {
			n++
		}
	}
	return n
}

// Target returns the last target passed to Resize.
func (p *Pool) Target() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Running returns the number of VU goroutines still alive, including retiring
// ones finishing their last iteration.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Peak returns the highest Running value observed.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Stop ends the run. VUs finish the request they have in flight and skip
// their remaining steps and pauses. Requests still running after grace are
// cancelled. Stop blocks until every VU has exited and reports whether they
// all did so within grace.
func (p *Pool) Stop(grace time.Duration) bool {
	p.mu.Lock()
	p.stopped = true
	p.target = 0
	p.mu.Unlock()

	p.stopCancel()
	defer p.hardCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		p.logger.Warnw("graceful stop period expired, cancelling in-flight requests",
			"grace", grace,
			"running", p.Running(),
		)
		p.hardCancel()
		<-done
		return false
	}
}
