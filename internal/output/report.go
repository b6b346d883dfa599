package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"

	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/threshold"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	subtle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const labelWidth = 28

// Summary is everything reported at the end of a run.
type Summary struct {
	RunID      string
	Stats      metrics.Stats
	Thresholds []threshold.Result
	// Interrupted is set when the run was stopped by a signal.
	Interrupted bool
}

type jsonThreshold struct {
	Expression string  `json:"expression"`
	Actual     float64 `json:"actual"`
	Pass       bool    `json:"pass"`
}

type jsonSummary struct {
	RunID            string          `json:"run_id,omitempty"`
	Interrupted      bool            `json:"interrupted,omitempty"`
	Metrics          metrics.Stats   `json:"metrics"`
	Thresholds       []jsonThreshold `json:"thresholds,omitempty"`
	ThresholdsPassed bool            `json:"thresholds_passed"`
}

func (s Summary) toJSON() jsonSummary {
	out := jsonSummary{
		RunID:            s.RunID,
		Interrupted:      s.Interrupted,
		Metrics:          s.Stats,
		ThresholdsPassed: !threshold.Failed(s.Thresholds),
	}
	for _, r := range s.Thresholds {
		out.Thresholds = append(out.Thresholds, jsonThreshold{
			Expression: r.Threshold.Raw,
			Actual:     r.Actual,
			Pass:       r.Pass,
		})
	}
	return out
}

// PrintReport writes the human-readable end of run summary.
func PrintReport(w io.Writer, s Summary) {
	stats := s.Stats

	fmt.Fprintln(w)
	header := "--- Load Test Results ---"
	if s.RunID != "" {
		header += " " + subtle.Render("run "+s.RunID)
	}
	fmt.Fprintln(w, titleStyle.Render(header))
	if s.Interrupted {
		fmt.Fprintln(w, failStyle.Render("run interrupted before the schedule finished"))
	}

	if len(stats.Checks) > 0 {
		fmt.Fprintln(w)
		for _, chk := range stats.Checks {
			writeCheck(w, chk)
		}
	}

	fmt.Fprintln(w)
	writeMetric(w, "checks", fmt.Sprintf("%s %s %s",
		percent(stats.CheckRate, stats.ChecksPassed+stats.ChecksFailed),
		passStyle.Render(fmt.Sprintf("✓ %d", stats.ChecksPassed)),
		failStyle.Render(fmt.Sprintf("✗ %d", stats.ChecksFailed)),
	))
	writeMetric(w, "http_req_duration", fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
		formatLatency(stats.MeanLatency), formatLatency(stats.MinLatency), formatLatency(stats.P50Latency),
		formatLatency(stats.MaxLatency), formatLatency(stats.P90Latency), formatLatency(stats.P95Latency),
		formatLatency(stats.P99Latency)))
	writeMetric(w, "http_req_failed", fmt.Sprintf("%s ✓ %d ✗ %d",
		percent(stats.FailureRate, stats.Total), stats.Failures, stats.Successes))
	writeMetric(w, "http_reqs", fmt.Sprintf("%d %.2f/s", stats.Total, stats.RequestsPerSec))
	writeMetric(w, "iterations", fmt.Sprintf("%d %.2f/s", stats.Iterations, stats.IterationsPerSec))
	writeMetric(w, "vus", fmt.Sprintf("%d min=0 max=%d", stats.VUs, stats.VUsMax))
	writeMetric(w, "duration", stats.Duration.Round(time.Millisecond).String())

	if len(stats.Steps) > 1 {
		fmt.Fprintln(w, "\nSteps:")
		for _, st := range stats.Steps {
			fmt.Fprintf(w, "  - %s: total=%d, successes=%d, failures=%d, avg=%s, p95=%s, max=%s\n",
				st.Name, st.Total, st.Successes, st.Failures,
				formatLatency(st.MeanLatency), formatLatency(st.P95Latency), formatLatency(st.MaxLatency))
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, b := range metrics.FlattenCounts(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", b.Key, b.Count)
		}
	}

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, b := range metrics.FlattenCounts(stats.StatusCodes) {
			fmt.Fprintf(w, "  %s: %d\n", strings.ToUpper(b.Key), b.Count)
		}
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range s.Thresholds {
			style := passStyle
			if !r.Pass {
				style = failStyle
			}
			fmt.Fprintf(w, "  %s\n", style.Render(r.Message))
		}
	}
}

func writeCheck(w io.Writer, chk metrics.CheckStats) {
	total := chk.Passes + chk.Fails
	if chk.Fails == 0 {
		fmt.Fprintf(w, "  %s\n", passStyle.Render("✓ "+chk.Name))
		return
	}
	line := fmt.Sprintf("✗ %s", chk.Name)
	fmt.Fprintf(w, "  %s\n", failStyle.Render(line))
	fmt.Fprintf(w, "   %s %s / %s\n",
		subtle.Render("↳ "+percent(chk.Rate, total)),
		passStyle.Render(fmt.Sprintf("✓ %d", chk.Passes)),
		failStyle.Render(fmt.Sprintf("✗ %d", chk.Fails)),
	)
	if len(chk.Errors) > 0 {
		kinds := make([]string, 0, len(chk.Errors))
		for kind := range chk.Errors {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		parts := make([]string, len(kinds))
		for i, kind := range kinds {
			parts[i] = fmt.Sprintf("%s=%d", kind, chk.Errors[kind])
		}
		fmt.Fprintf(w, "     %s\n", subtle.Render("reasons: "+strings.Join(parts, " ")))
	}
}

func writeMetric(w io.Writer, name, value string) {
	dots := labelWidth - len(name)
	if dots < 2 {
		dots = 2
	}
	fmt.Fprintf(w, "  %s%s: %s\n", name, strings.Repeat(".", dots), value)
}

func percent(rate float64, total int64) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// PrintJSONReport writes the summary as indented JSON.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.toJSON())
}

// ExportSummary writes the JSON summary to path. An advisory lock on
// path+".lock" keeps concurrent runs exporting to the same file from
// interleaving their writes.
func ExportSummary(path string, s Summary) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock summary file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(s.toJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
