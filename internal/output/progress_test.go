package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vuramp/vuramp/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatProgress(t *testing.T) {
	stats := metrics.Stats{
		Duration:       12*time.Second + 400*time.Millisecond,
		VUs:            7,
		TargetVUs:      8,
		Total:          1234,
		Failures:       3,
		RequestsPerSec: 99.5,
		Iterations:     600,
	}
	got := FormatProgress(stats, 40*time.Second)
	want := "[12s/40s] VUs: 7/8 | Requests: 1234 | Failures: 3 | RPS: 99.5 | Iterations: 600"
	if got != want {
		t.Errorf("FormatProgress() = %q, want %q", got, want)
	}

	stats.ChecksPassed, stats.ChecksFailed, stats.CheckRate = 995, 5, 0.995
	if got := FormatProgress(stats, 0); !strings.HasPrefix(got, "[12s] ") || !strings.HasSuffix(got, "| Checks: 99.5%") {
		t.Errorf("FormatProgress() = %q", got)
	}
}

func TestProgressReporterWritesLines(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	for i := 0; i < 5; i++ {
		collector.RecordRequest(30*time.Millisecond, nil, nil)
	}

	var buf syncBuffer
	reporter := NewProgressReporter(collector, 10*time.Millisecond, time.Minute, &buf)
	reporter.Start()
	reporter.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "Requests: 5") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	if !strings.Contains(out, "\r[") || !strings.Contains(out, "Requests: 5") {
		t.Fatalf("unexpected progress output %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Stop should terminate the status line")
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewCollector(), time.Second, 0, nil)
	reporter.Stop()
}
