// Package threshold evaluates pass/fail criteria against a run summary.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/vuramp/vuramp/internal/metrics"
)

// Threshold is one parsed criterion such as "http_req_duration:p95 < 500".
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type extractor func(metrics.Stats) float64

// catalog maps metric name to its supported aggregates. Latencies are in
// milliseconds and rates are fractions or per-second values depending on the
// metric.
var catalog = map[string]map[string]extractor{
	"http_req_duration": {
		"p50": func(s metrics.Stats) float64 { return s.P50LatencyMs },
		"p90": func(s metrics.Stats) float64 { return s.P90LatencyMs },
		"p95": func(s metrics.Stats) float64 { return s.P95LatencyMs },
		"p99": func(s metrics.Stats) float64 { return s.P99LatencyMs },
		"avg": func(s metrics.Stats) float64 { return s.MeanLatencyMs },
		"min": func(s metrics.Stats) float64 { return s.MinLatencyMs },
		"max": func(s metrics.Stats) float64 { return s.MaxLatencyMs },
	},
	"http_req_failed": {
		"rate":  func(s metrics.Stats) float64 { return s.FailureRate },
		"count": func(s metrics.Stats) float64 { return float64(s.Failures) },
	},
	"http_requests": {
		"rate":  func(s metrics.Stats) float64 { return s.RequestsPerSec },
		"count": func(s metrics.Stats) float64 { return float64(s.Total) },
	},
	"checks": {
		"rate":  func(s metrics.Stats) float64 { return s.CheckRate },
		"count": func(s metrics.Stats) float64 { return float64(s.ChecksPassed + s.ChecksFailed) },
		"fails": func(s metrics.Stats) float64 { return float64(s.ChecksFailed) },
	},
	"iterations": {
		"rate":  func(s metrics.Stats) float64 { return s.IterationsPerSec },
		"count": func(s metrics.Stats) float64 { return float64(s.Iterations) },
	},
	"vus": {
		"max": func(s metrics.Stats) float64 { return float64(s.VUsMax) },
	},
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*(\S+)$`)

var operators = []string{"<", "<=", ">", ">=", "=="}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against stats, in declaration order.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	extract, ok := catalog[t.Metric][t.Aggregate]
	if !ok {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("✗ %s: unsupported metric %s:%s", t.Raw, t.Metric, t.Aggregate),
		}
	}
	actual := extract(stats)
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %s %s %s", status, t.Raw, formatValue(actual), t.Operator, formatValue(t.Value)),
	}
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

// Parse parses a threshold expression of the form "metric:aggregate op value".
//
// Supported metrics and aggregates:
//   - http_req_duration: p50, p90, p95, p99, avg, min, max (milliseconds)
//   - http_req_failed: rate (0..1), count
//   - http_requests: rate (per second), count
//   - checks: rate (0..1), count, fails
//   - iterations: rate (per second), count
//   - vus: max
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'http_req_duration:p95 < 500')", s)
	}
	metric, aggregate, operator, raw := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Threshold{}, fmt.Errorf("invalid threshold value %q", raw)
	}

	aggregates, ok := catalog[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(sortedKeys(catalog), ", "))
	}
	if _, ok := aggregates[aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(sortedKeys(aggregates), ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every expression and reports all malformed ones at once.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(exprs))
	var problems []string
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isValidOperator(op string) bool {
	for _, v := range operators {
		if op == v {
			return true
		}
	}
	return false
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
