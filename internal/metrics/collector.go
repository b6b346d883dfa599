package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata describes the request behind a recorded latency.
type RequestMetadata struct {
	Step       string
	Method     string
	StatusCode int
}

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	successes   int64
	failures    int64
	minLatency  time.Duration
	maxLatency  time.Duration
	sumLatency  time.Duration
	errorsByKey map[string]int64
	statusCodes map[string]int64

	steps     map[string]*stepStats
	stepOrder []string

	checks     map[string]*checkStats
	checkOrder []string

	iterations int64
	vus        int
	vusMax     int
	target     int

	start time.Time
}

type stepStats struct {
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	sumLatency time.Duration
	maxLatency time.Duration
}

type checkStats struct {
	passes int64
	fails  int64
	errors map[string]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	FailureRate    float64       `json:"failure_rate"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P95Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	Errors      map[string]int `json:"errors,omitempty"`
	StatusCodes map[string]int `json:"status_codes,omitempty"`

	Iterations       int64   `json:"iterations"`
	IterationsPerSec float64 `json:"iterations_per_sec"`
	VUs              int     `json:"vus"`
	VUsMax           int     `json:"vus_max"`
	TargetVUs        int     `json:"target_vus"`

	Checks       []CheckStats    `json:"checks,omitempty"`
	ChecksPassed int64           `json:"checks_passed"`
	ChecksFailed int64           `json:"checks_failed"`
	CheckRate    float64         `json:"check_rate"`
	Steps        []EndpointStats `json:"steps,omitempty"`
}

// CheckStats is the pass/fail tally of one named check across all responses.
type CheckStats struct {
	Name   string         `json:"name"`
	Passes int64          `json:"passes"`
	Fails  int64          `json:"fails"`
	Rate   float64        `json:"rate"`
	Errors map[string]int `json:"errors,omitempty"`
}

// EndpointStats breaks requests down by scenario step.
type EndpointStats struct {
	Name          string        `json:"name"`
	Total         int64         `json:"total"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	MeanLatency   time.Duration `json:"-"`
	P95Latency    time.Duration `json:"-"`
	MaxLatency    time.Duration `json:"-"`
	MeanLatencyMs float64       `json:"mean_latency_ms"`
	P95LatencyMs  float64       `json:"p95_latency_ms"`
	MaxLatencyMs  float64       `json:"max_latency_ms"`
}

func NewCollector() *Collector {
	return &Collector{
		hist:        newHistogram(),
		errorsByKey: make(map[string]int64),
		statusCodes: make(map[string]int64),
		steps:       make(map[string]*stepStats),
		checks:      make(map[string]*checkStats),
		start:       time.Now(),
	}
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

// Start resets the clock used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Register declares scenario steps and check names up front so that reports
// list them in declaration order, including ones that never ran.
func (c *Collector) Register(steps []string, checks []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range steps {
		c.step(name)
	}
	for _, name := range checks {
		c.check(name)
	}
}

// RecordRequest records a single request's latency and error state. A nil
// err is a success.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordLatency(c.hist, latency)
	c.sumLatency += latency

	if c.successes+c.failures == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err == nil {
		c.successes++
	} else {
		c.failures++
		c.errorsByKey[ErrorKind(err)]++
	}

	if meta == nil {
		return
	}
	if meta.StatusCode > 0 {
		c.statusCodes[strconv.Itoa(meta.StatusCode)]++
	} else if err != nil {
		c.statusCodes[KindNetwork]++
	}
	if meta.Step != "" {
		st := c.step(meta.Step)
		recordLatency(st.hist, latency)
		st.sumLatency += latency
		if latency > st.maxLatency {
			st.maxLatency = latency
		}
		if err == nil {
			st.successes++
		} else {
			st.failures++
		}
	}
}

// RecordCheck records one evaluation of the named check. err carries the
// failure reason when passed is false and may be nil.
func (c *Collector) RecordCheck(name string, passed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chk := c.check(name)
	if passed {
		chk.passes++
		return
	}
	chk.fails++
	if err != nil {
		kind := ErrorKind(err)
		chk.errors[kind]++
		if kind == KindCheckEvaluation {
			c.errorsByKey[kind]++
		}
	}
}

func (c *Collector) RecordIteration() {
	c.mu.Lock()
	c.iterations++
	c.mu.Unlock()
}

// SetVUs records the current number of active VUs and the scheduler target.
func (c *Collector) SetVUs(active, target int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vus = active
	c.target = target
	if active > c.vusMax {
		c.vusMax = active
	}
}

func (c *Collector) step(name string) *stepStats {
	st, ok := c.steps[name]
	if !ok {
		st = &stepStats{hist: newHistogram()}
		c.steps[name] = st
		c.stepOrder = append(c.stepOrder, name)
	}
	return st
}

func (c *Collector) check(name string) *checkStats {
	chk, ok := c.checks[name]
	if !ok {
		chk = &checkStats{errors: make(map[string]int64)}
		c.checks[name] = chk
		c.checkOrder = append(c.checkOrder, name)
	}
	return chk
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		Iterations: c.iterations,
		VUs:        c.vus,
		VUsMax:     c.vusMax,
		TargetVUs:  c.target,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		stats.FailureRate = float64(c.failures) / float64(total)
	}

	stats.P50Latency = quantile(c.hist, 50)
	stats.P90Latency = quantile(c.hist, 90)
	stats.P95Latency = quantile(c.hist, 95)
	stats.P99Latency = quantile(c.hist, 99)

	stats.MinLatencyMs = toMs(stats.MinLatency)
	stats.MaxLatencyMs = toMs(stats.MaxLatency)
	stats.MeanLatencyMs = toMs(stats.MeanLatency)
	stats.P50LatencyMs = toMs(stats.P50Latency)
	stats.P90LatencyMs = toMs(stats.P90Latency)
	stats.P95LatencyMs = toMs(stats.P95Latency)
	stats.P99LatencyMs = toMs(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMs(elapsed)
	if elapsed > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
		stats.IterationsPerSec = float64(c.iterations) / elapsed.Seconds()
	}

	stats.Errors = copyCounts(c.errorsByKey)
	stats.StatusCodes = copyCounts(c.statusCodes)

	for _, name := range c.checkOrder {
		chk := c.checks[name]
		cs := CheckStats{
			Name:   name,
			Passes: chk.passes,
			Fails:  chk.fails,
			Errors: copyCounts(chk.errors),
		}
		if n := chk.passes + chk.fails; n > 0 {
			cs.Rate = float64(chk.passes) / float64(n)
		}
		stats.ChecksPassed += chk.passes
		stats.ChecksFailed += chk.fails
		stats.Checks = append(stats.Checks, cs)
	}
	if n := stats.ChecksPassed + stats.ChecksFailed; n > 0 {
		stats.CheckRate = float64(stats.ChecksPassed) / float64(n)
	}

	for _, name := range c.stepOrder {
		st := c.steps[name]
		es := EndpointStats{
			Name:       name,
			Total:      st.successes + st.failures,
			Successes:  st.successes,
			Failures:   st.failures,
			P95Latency: quantile(st.hist, 95),
			MaxLatency: st.maxLatency,
		}
		if es.Total > 0 {
			es.MeanLatency = time.Duration(int64(st.sumLatency) / es.Total)
		}
		es.MeanLatencyMs = toMs(es.MeanLatency)
		es.P95LatencyMs = toMs(es.P95Latency)
		es.MaxLatencyMs = toMs(es.MaxLatency)
		stats.Steps = append(stats.Steps, es)
	}

	return stats
}

func copyCounts(src map[string]int64) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = int(v)
	}
	return out
}
