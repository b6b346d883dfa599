package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/vuramp/vuramp/internal/metrics"
)

// ProgressReporter rewrites a single status line at a fixed interval.
type ProgressReporter struct {
	collector *metrics.Collector
	interval  time.Duration
	total     time.Duration
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. total is the scheduled run length; zero hides it.
func NewProgressReporter(collector *metrics.Collector, interval, total time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector: collector,
		interval:  interval,
		total:     total,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	wrote := false
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, "\r"+FormatProgress(p.collector.Stats(p.collector.Elapsed()), p.total))
			wrote = true
		case <-p.done:
			if wrote {
				fmt.Fprintln(p.writer)
			}
			return
		}
	}
}

// FormatProgress renders one status line from a stats snapshot.
func FormatProgress(stats metrics.Stats, total time.Duration) string {
	elapsed := stats.Duration.Truncate(time.Second)
	clock := elapsed.String()
	if total > 0 {
		clock = fmt.Sprintf("%s/%s", elapsed, total.Truncate(time.Second))
	}
	line := fmt.Sprintf("[%s] VUs: %d/%d | Requests: %d | Failures: %d | RPS: %.1f | Iterations: %d",
		clock, stats.VUs, stats.TargetVUs, stats.Total, stats.Failures, stats.RequestsPerSec, stats.Iterations)
	if n := stats.ChecksPassed + stats.ChecksFailed; n > 0 {
		line += fmt.Sprintf(" | Checks: %.1f%%", stats.CheckRate*100)
	}
	return line
}
