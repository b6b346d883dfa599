package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vuramp/vuramp/internal/runner"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr
}

func TestRunExitCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	refused := closedAddr(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"unknown flag", []string{"--nope"}, exitConfigError},
		{"missing base url", []string{"--vus", "1", "--duration", "1s"}, exitConfigError},
		{"vus and stages", []string{"--base-url", srv.URL, "--vus", "1", "--duration", "1s", "--stage", "1s:2"}, exitConfigError},
		{"bad log format", []string{"--base-url", srv.URL, "--vus", "1", "--duration", "1s", "--log-format", "xml"}, exitConfigError},
		{"bad threshold", []string{"--base-url", srv.URL, "--vus", "1", "--duration", "1s", "--threshold", "latency fast"}, exitConfigError},
		{"print config", []string{"--base-url", srv.URL, "--stage", "1s:2", "--print-config"}, exitOK},
		{"healthy run", []string{"--base-url", srv.URL, "--vus", "2", "--duration", "200ms", "-q", "--log-level", "error"}, exitOK},
		{"failures are not an error", []string{"--base-url", refused, "--vus", "1", "--duration", "200ms", "-q", "--log-level", "error"}, exitOK},
		{"preflight unreachable", []string{"--base-url", refused, "--vus", "1", "--duration", "1s", "--preflight", "-q", "--log-level", "error"}, exitPreflightFailed},
		{"thresholds crossed", []string{"--base-url", refused, "--vus", "1", "--duration", "200ms", "-q", "--log-level", "error", "--threshold", "http_req_failed:rate < 0.01"}, exitThresholdsFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Fatalf("run(%v) = %d, want %d\nstderr: %s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}

func TestPrintConfigWritesYAML(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--base-url", "http://localhost:8080", "--stage", "30s:10", "--stage", "10s:0", "--print-config"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	for _, want := range []string{"base_url: http://localhost:8080", "target: 10"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("output missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestHighVUWarningGoesToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--base-url", "http://localhost:8080", "--stage", "30s:5000", "--stage", "10s:0", "--print-config"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "High VU count configured (5000)") {
		t.Errorf("stderr = %q, want high VU warning", stderr.String())
	}
	if strings.Contains(stdout.String(), "WARNING") {
		t.Errorf("warning leaked into stdout:\n%s", stdout.String())
	}
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	pf := &runner.PreflightError{URL: "http://x", Err: errors.New("refused")}
	if got := exitCode(fmt.Errorf("run: %w", pf), &stderr); got != exitPreflightFailed {
		t.Errorf("exitCode(preflight) = %d", got)
	}
	if got := exitCode(errors.New("boom"), &stderr); got != exitConfigError {
		t.Errorf("exitCode(other) = %d", got)
	}
}
