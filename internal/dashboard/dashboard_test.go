package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/vuramp/vuramp/internal/config"
	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/schedule"
)

func TestVUPercent(t *testing.T) {
	tests := []struct {
		name           string
		active, target int
		want           int
	}{
		{"idle", 0, 0, 0},
		{"draining after target reached zero", 2, 0, 100},
		{"half", 5, 10, 50},
		{"retiring above target", 12, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vuPercent(tt.active, tt.target); got != tt.want {
				t.Errorf("vuPercent(%d, %d) = %d, want %d", tt.active, tt.target, got, tt.want)
			}
		})
	}
}

func TestPushHistoryIsBounded(t *testing.T) {
	var h []float64
	for i := 0; i < historyLen+10; i++ {
		h = pushHistory(h, float64(i))
	}
	if len(h) != historyLen {
		t.Fatalf("len = %d, want %d", len(h), historyLen)
	}
	if h[0] != 10 || h[len(h)-1] != float64(historyLen+9) {
		t.Errorf("history kept wrong window: first=%v last=%v", h[0], h[len(h)-1])
	}
}

func TestFormatSummary(t *testing.T) {
	plan := schedule.Compile([]config.Stage{
		{Duration: 10 * time.Second, Target: 2},
		{Duration: 10 * time.Second, Target: 0},
	})
	info := RunInfo{BaseURL: "http://localhost:8080", Plan: plan, RPS: 50, Steps: 3, ConfigFile: "ramp.yaml"}

	got := formatSummary(info, metrics.Stats{Duration: 12 * time.Second})
	for _, want := range []string{"Target: http://localhost:8080", "Steps: 3", "Rate: 50/s", "Config: ramp.yaml", "12s / 20s", "Stage 2/2"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}

	done := formatSummary(info, metrics.Stats{Duration: 25 * time.Second})
	if !strings.Contains(done, "Schedule complete") {
		t.Errorf("summary after the plan ended:\n%s", done)
	}

	noPlan := formatSummary(RunInfo{BaseURL: "http://x"}, metrics.Stats{Duration: 3 * time.Second})
	if !strings.Contains(noPlan, "Rate: unlimited") || !strings.Contains(noPlan, "Elapsed: 3s") {
		t.Errorf("summary without plan:\n%s", noPlan)
	}
}

func TestFormatCheckRows(t *testing.T) {
	rows := formatCheckRows([]metrics.CheckStats{
		{Name: "status is 200", Passes: 10},
		{Name: "json id exists", Passes: 9, Fails: 1, Rate: 0.9},
		{Name: "never ran"},
	})
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if !strings.Contains(rows[0], "✓ status is 200") {
		t.Errorf("rows[0] = %q", rows[0])
	}
	if !strings.Contains(rows[1], "✗ json id exists") || !strings.Contains(rows[1], "90.0%") {
		t.Errorf("rows[1] = %q", rows[1])
	}
	if !strings.Contains(rows[2], "- never ran") {
		t.Errorf("rows[2] = %q", rows[2])
	}
	if got := formatCheckRows(nil); len(got) != 1 || !strings.Contains(got[0], "No checks") {
		t.Errorf("formatCheckRows(nil) = %v", got)
	}
}

func TestFormatErrorRows(t *testing.T) {
	rows := formatErrorRows(metrics.Stats{
		Errors:      map[string]int{"network": 4, "http": 1},
		StatusCodes: map[string]int{"200": 20, "network": 4, "503": 1},
	})
	want := []string{
		"[network](fg:red) 4",
		"[http](fg:red) 1",
		"[200](fg:green) 20",
		"[NETWORK](fg:red) 4",
		"[503](fg:red) 1",
	}
	if strings.Join(rows, "\n") != strings.Join(want, "\n") {
		t.Errorf("rows =\n%s\nwant\n%s", strings.Join(rows, "\n"), strings.Join(want, "\n"))
	}
	if got := formatErrorRows(metrics.Stats{}); len(got) != 1 || !strings.Contains(got[0], "No failures") {
		t.Errorf("empty rows = %v", got)
	}
}

func TestUpdatePopulatesWidgets(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Register([]string{"GET /"}, []string{"status is 200"})
	collector.RecordRequest(25*time.Millisecond, nil, &metrics.RequestMetadata{Step: "GET /", Method: "GET", StatusCode: 200})
	collector.RecordCheck("status is 200", true, nil)
	collector.SetVUs(3, 4)

	d := newDashboard(collector, RunInfo{BaseURL: "http://localhost"}, nil)
	d.update(collector.Stats(time.Second))
	d.update(collector.Stats(2 * time.Second))

	if d.vuGauge.Percent != 75 || !strings.Contains(d.vuGauge.Label, "3 / 4") {
		t.Errorf("gauge = %d %q", d.vuGauge.Percent, d.vuGauge.Label)
	}
	if len(d.vuPlot.Data) != 2 || len(d.vuPlot.Data[1]) != 2 {
		t.Errorf("plot data = %v", d.vuPlot.Data)
	}
	if len(d.latencyHistory) != 2 {
		t.Errorf("latency history = %v", d.latencyHistory)
	}
	if !strings.Contains(d.rpsPara.Text, "Total:       1") {
		t.Errorf("rps text = %q", d.rpsPara.Text)
	}
	if !strings.Contains(d.stepList.Rows[0], "GET /") {
		t.Errorf("step rows = %v", d.stepList.Rows)
	}
}
