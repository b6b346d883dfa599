package runner_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vuramp/vuramp/internal/config"
	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/runner"
)

func healthyServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func refusedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr
}

func baseConfig(url string) config.Config {
	return config.Config{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		GracefulStop: 2 * time.Second,
		MaxBodyBytes: 1 << 20,
		Quiet:        true,
	}
}

func run(t *testing.T, ctx context.Context, cfg config.Config) (runner.Result, string, error) {
	t.Helper()
	var stdout bytes.Buffer
	r, err := runner.New(cfg, runner.Options{Stdout: &stdout, Tick: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("runner.New() error = %v", err)
	}
	res, err := r.Run(ctx)
	return res, stdout.String(), err
}

func TestFlatRunAgainstHealthyTarget(t *testing.T) {
	srv := healthyServer(t, 10*time.Millisecond)
	cfg := baseConfig(srv.URL)
	cfg.VUs = 5
	cfg.Duration = 600 * time.Millisecond

	start := time.Now()
	res, out, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("run took %s", elapsed)
	}

	s := res.Stats
	if s.Total == 0 || s.Failures != 0 || s.FailureRate != 0 {
		t.Fatalf("requests total=%d failures=%d rate=%v", s.Total, s.Failures, s.FailureRate)
	}
	if s.ChecksFailed != 0 || s.ChecksPassed != s.Total || s.CheckRate != 1 {
		t.Fatalf("checks passed=%d failed=%d rate=%v", s.ChecksPassed, s.ChecksFailed, s.CheckRate)
	}
	if s.VUsMax != 5 {
		t.Errorf("VUsMax = %d, want 5", s.VUsMax)
	}
	if s.Iterations != s.Total {
		t.Errorf("iterations = %d, want one per request (%d)", s.Iterations, s.Total)
	}
	if res.Interrupted || !res.Drained || res.ThresholdsFailed() {
		t.Errorf("result = %+v", res)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if !strings.Contains(out, "✓ status is 200") {
		t.Errorf("report missing passing check:\n%s", out)
	}
}

func TestRampAgainstRefusedTarget(t *testing.T) {
	cfg := baseConfig(refusedURL(t))
	cfg.Stages = []config.Stage{
		{Duration: 300 * time.Millisecond, Target: 2},
		{Duration: 300 * time.Millisecond, Target: 0},
	}

	res, out, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("network failures must not fail the run: %v", err)
	}
	s := res.Stats
	if s.Failures == 0 || s.Successes != 0 {
		t.Fatalf("failures=%d successes=%d", s.Failures, s.Successes)
	}
	if s.Errors[metrics.KindNetwork] != int(s.Failures) {
		t.Errorf("errors = %v, want all network", s.Errors)
	}
	if s.ChecksFailed == 0 || s.ChecksPassed != 0 {
		t.Errorf("checks passed=%d failed=%d", s.ChecksPassed, s.ChecksFailed)
	}
	if s.VUsMax < 1 || s.VUsMax > 3 {
		t.Errorf("VUsMax = %d, want within one of the peak target 2", s.VUsMax)
	}
	if res.ThresholdsFailed() {
		t.Error("no thresholds configured, none can fail")
	}
	if !strings.Contains(out, "✗ status is 200") {
		t.Errorf("report missing failing check:\n%s", out)
	}
}

// everyNthFails answers 500 to every nth request and 200 otherwise.
func everyNthFails(t *testing.T, n int64) *httptest.Server {
	t.Helper()
	var count atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		if count.Add(1)%n == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFailureRateIsStableAcrossRuns(t *testing.T) {
	const want, tolerance = 0.25, 0.1

	for i := range 3 {
		srv := everyNthFails(t, 4)
		cfg := baseConfig(srv.URL)
		cfg.VUs, cfg.Duration = 2, 300*time.Millisecond

		res, _, err := run(t, context.Background(), cfg)
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
		s := res.Stats
		if s.Total < 20 {
			t.Fatalf("run %d: only %d requests", i, s.Total)
		}
		if math.Abs(s.FailureRate-want) > tolerance {
			t.Errorf("run %d: failure rate = %.3f (%d/%d), want %.2f±%.2f", i, s.FailureRate, s.Failures, s.Total, want, tolerance)
		}
		if s.StatusCodes["500"] != int(s.Failures) {
			t.Errorf("run %d: status codes = %v, failures = %d", i, s.StatusCodes, s.Failures)
		}
	}
}

func TestThresholdsCrossed(t *testing.T) {
	cfg := baseConfig(refusedURL(t))
	cfg.VUs = 1
	cfg.Duration = 200 * time.Millisecond
	cfg.Thresholds = []string{"http_req_failed:rate < 0.01", "iterations:count > 0"}

	res, out, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.ThresholdsFailed() {
		t.Fatal("failure-rate threshold should be crossed")
	}
	if len(res.Thresholds) != 2 || res.Thresholds[0].Pass || !res.Thresholds[1].Pass {
		t.Fatalf("thresholds = %+v", res.Thresholds)
	}
	if !strings.Contains(out, "Thresholds:") {
		t.Errorf("report missing thresholds:\n%s", out)
	}
}

func TestMalformedThresholdIsConfigError(t *testing.T) {
	cfg := baseConfig("http://localhost")
	cfg.VUs, cfg.Duration = 1, time.Second
	cfg.Thresholds = []string{"latency < fast"}

	_, err := runner.New(cfg, runner.Options{})
	var cfgErr config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() error = %v, want ConfigError", err)
	}
}

func TestEmptyScheduleIsConfigError(t *testing.T) {
	cfg := baseConfig("http://localhost")
	cfg.Stages = []config.Stage{{Duration: 0, Target: 3}}

	_, err := runner.New(cfg, runner.Options{})
	var cfgErr config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New() error = %v, want ConfigError", err)
	}
}

func TestPreflightUnreachable(t *testing.T) {
	cfg := baseConfig(refusedURL(t))
	cfg.VUs, cfg.Duration = 1, time.Second
	cfg.Preflight = true

	res, out, err := run(t, context.Background(), cfg)
	var pfErr *runner.PreflightError
	if !errors.As(err, &pfErr) {
		t.Fatalf("Run() error = %v, want PreflightError", err)
	}
	if res.Stats.Total != 0 || out != "" {
		t.Fatalf("no load should be generated after a failed preflight: total=%d out=%q", res.Stats.Total, out)
	}
}

func TestPreflightReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := baseConfig(srv.URL)
	cfg.VUs, cfg.Duration = 1, 100*time.Millisecond
	cfg.Preflight = true

	res, _, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("any HTTP response counts as reachable: %v", err)
	}
	if res.Stats.StatusCodes["404"] == 0 {
		t.Errorf("status codes = %v", res.Stats.StatusCodes)
	}
}

func TestCancelStopsRunEarly(t *testing.T) {
	srv := healthyServer(t, 5*time.Millisecond)
	cfg := baseConfig(srv.URL)
	cfg.VUs, cfg.Duration = 2, time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	res, out, err := run(t, ctx, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancelled run took %s", elapsed)
	}
	if !res.Interrupted || res.Stats.Total == 0 {
		t.Fatalf("result = interrupted %v total %d", res.Interrupted, res.Stats.Total)
	}
	if !strings.Contains(out, "interrupted") {
		t.Errorf("summary should still be printed:\n%s", out)
	}
}

func TestGraceExpiryCancelsRequests(t *testing.T) {
	srv := healthyServer(t, time.Minute)
	cfg := baseConfig(srv.URL)
	cfg.Timeout = 0
	cfg.VUs, cfg.Duration = 1, 100*time.Millisecond
	cfg.GracefulStop = 50 * time.Millisecond

	res, _, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Drained {
		t.Fatal("Drained = true, want false after grace expiry")
	}
	if res.Stats.Failures != 1 {
		t.Fatalf("failures = %d, want the cancelled request", res.Stats.Failures)
	}
}

func TestJSONOutputAndSummaryExport(t *testing.T) {
	srv := healthyServer(t, time.Millisecond)
	path := filepath.Join(t.TempDir(), "summary.json")
	cfg := baseConfig(srv.URL)
	cfg.VUs, cfg.Duration = 2, 200*time.Millisecond
	cfg.JSONOutput = true
	cfg.SummaryExport = path
	cfg.MetricsAddr = "127.0.0.1:0"

	res, out, err := run(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var printed struct {
		RunID   string `json:"run_id"`
		Metrics struct {
			Total int64 `json:"total"`
		} `json:"metrics"`
	}
	if err := jsoniter.Unmarshal([]byte(out), &printed); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, out)
	}
	if printed.RunID != res.RunID || printed.Metrics.Total != res.Stats.Total {
		t.Errorf("printed = %+v, result total %d", printed, res.Stats.Total)
	}

	exported, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("summary not exported: %v", err)
	}
	var saved struct {
		RunID   string `json:"run_id"`
		Metrics struct {
			Total int64 `json:"total"`
		} `json:"metrics"`
	}
	if err := jsoniter.Unmarshal(exported, &saved); err != nil {
		t.Fatalf("exported summary is not JSON: %v", err)
	}
	if saved != printed {
		t.Errorf("exported = %+v, printed = %+v", saved, printed)
	}
}
