package threshold

import (
	"strings"
	"testing"

	"github.com/vuramp/vuramp/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError string
	}{
		{
			name:  "p95 latency",
			input: "http_req_duration:p95 < 500",
			want:  Threshold{Metric: "http_req_duration", Aggregate: "p95", Operator: "<", Value: 500, Raw: "http_req_duration:p95 < 500"},
		},
		{
			name:  "failure rate",
			input: "  http_req_failed:rate < 0.01 ",
			want:  Threshold{Metric: "http_req_failed", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "http_req_failed:rate < 0.01"},
		},
		{
			name:  "check rate without spaces",
			input: "checks:rate>=0.99",
			want:  Threshold{Metric: "checks", Aggregate: "rate", Operator: ">=", Value: 0.99, Raw: "checks:rate>=0.99"},
		},
		{
			name:  "iteration count",
			input: "iterations:count > 10",
			want:  Threshold{Metric: "iterations", Aggregate: "count", Operator: ">", Value: 10, Raw: "iterations:count > 10"},
		},
		{name: "empty", input: "", wantError: "empty threshold"},
		{name: "missing operator", input: "http_req_duration:p95 500", wantError: "invalid threshold format"},
		{name: "unknown metric", input: "grpc_duration:p95 < 500", wantError: "unsupported metric"},
		{name: "aggregate from another metric", input: "checks:p95 < 500", wantError: "unsupported aggregate"},
		{name: "bad operator", input: "http_req_duration:p95 << 500", wantError: "unsupported operator"},
		{name: "non-numeric value", input: "http_req_duration:p95 < abc", wantError: "invalid threshold value"},
		{name: "infinite value", input: "http_req_duration:p95 < Inf", wantError: "invalid threshold value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("Parse() error = %v, want containing %q", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultipleReportsEveryProblem(t *testing.T) {
	got, err := ParseMultiple([]string{"http_req_duration:p95 < 500", "bogus", "checks:rate > 0.9"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Fatalf("ParseMultiple() = %v, want nil on error", got)
	}
	if !strings.Contains(err.Error(), "threshold[1]") {
		t.Errorf("error %q should point at the bad entry", err)
	}

	got, err = ParseMultiple(nil)
	if err != nil || got != nil {
		t.Fatalf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Total:            1000,
		Successes:        980,
		Failures:         20,
		FailureRate:      0.02,
		MinLatencyMs:     10,
		MaxLatencyMs:     500,
		MeanLatencyMs:    100,
		P50LatencyMs:     80,
		P90LatencyMs:     200,
		P95LatencyMs:     300,
		P99LatencyMs:     400,
		RequestsPerSec:   100,
		Iterations:       500,
		IterationsPerSec: 50,
		VUsMax:           10,
		ChecksPassed:     1960,
		ChecksFailed:     40,
		CheckRate:        0.98,
	}
}

func TestEvaluator(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "request thresholds",
			thresholds: []string{"http_req_duration:p99 < 500", "http_req_failed:rate < 0.05", "http_requests:rate > 50"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "crossed thresholds",
			thresholds: []string{"http_req_duration:p95 < 300", "http_req_failed:rate < 0.01", "http_requests:count >= 1000"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "latency aggregates",
			thresholds: []string{"http_req_duration:p50 < 100", "http_req_duration:p90 <= 200", "http_req_duration:avg == 100", "http_req_duration:min > 5", "http_req_duration:max < 600"},
			wantPass:   []bool{true, true, true, true, true},
		},
		{
			name:       "checks",
			thresholds: []string{"checks:rate > 0.99", "checks:fails < 50", "checks:count == 2000"},
			wantPass:   []bool{false, true, true},
		},
		{
			name:       "iterations and vus",
			thresholds: []string{"iterations:count > 10", "iterations:rate >= 50", "vus:max <= 10"},
			wantPass:   []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}
			results := NewEvaluator(thresholds).Evaluate(stats)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			anyFailed := false
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: pass=%v, want %v (actual=%.2f)", i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
				anyFailed = anyFailed || !tt.wantPass[i]
			}
			if Failed(results) != anyFailed {
				t.Errorf("Failed() = %v, want %v", Failed(results), anyFailed)
			}
		})
	}
}

func TestResultMessage(t *testing.T) {
	th, err := Parse("http_req_failed:rate < 0.01")
	if err != nil {
		t.Fatal(err)
	}
	res := NewEvaluator([]Threshold{th}).Evaluate(sampleStats())[0]
	if want := "✗ http_req_failed:rate < 0.01: 0.0200 < 0.0100"; res.Message != want {
		t.Errorf("Message = %q, want %q", res.Message, want)
	}

	th, _ = Parse("vus:max <= 10")
	res = NewEvaluator([]Threshold{th}).Evaluate(sampleStats())[0]
	if want := "✓ vus:max <= 10: 10 <= 10"; res.Message != want {
		t.Errorf("Message = %q, want %q", res.Message, want)
	}
}

func TestEvaluateWithoutThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(sampleStats()); results != nil {
		t.Fatalf("Evaluate() = %v, want nil", results)
	}
	if Failed(nil) {
		t.Fatal("Failed(nil) should be false")
	}
}

func TestUnsupportedThresholdFails(t *testing.T) {
	res := NewEvaluator([]Threshold{{Metric: "checks", Aggregate: "p99", Operator: "<", Raw: "checks:p99 < 1"}}).Evaluate(sampleStats())
	if res[0].Pass {
		t.Fatal("hand-built unsupported threshold should fail")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareValues(tt.actual, tt.operator, tt.expected); got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v", tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
