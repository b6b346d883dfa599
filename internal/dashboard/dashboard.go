// Package dashboard renders a live terminal view of a running load test.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/schedule"
)

const historyLen = 120

// RunInfo holds run parameters for display.
type RunInfo struct {
	BaseURL    string
	Plan       *schedule.Plan
	RPS        int // 0 = unlimited
	Timeout    time.Duration
	Steps      int
	ConfigFile string
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	collector    *metrics.Collector
	info         RunInfo
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	vuGauge        *widgets.Gauge
	vuPlot         *widgets.Plot
	rpsPara        *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	checkList      *widgets.List
	stepList       *widgets.List
	errorList      *widgets.List

	latencyHistory []float64
	activeHistory  []float64
	targetHistory  []float64
}

// New initialises the terminal and creates a Dashboard. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(collector, info, shutdownFunc)

	termWidth, termHeight := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	return d, nil
}

func newDashboard(collector *metrics.Collector, info RunInfo, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		info:           info,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historyLen),
		activeHistory:  make([]float64, 0, historyLen),
		targetHistory:  make([]float64, 0, historyLen),
	}
	d.initWidgets()
	d.setupGrid()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.vuGauge = widgets.NewGauge()
	d.vuGauge.Title = "Active VUs / Target"
	d.vuGauge.BarColor = ui.ColorGreen
	d.vuGauge.BorderStyle.Fg = ui.ColorCyan
	d.vuGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.vuPlot = widgets.NewPlot()
	d.vuPlot.Title = "VUs (target yellow, active green)"
	d.vuPlot.Data = [][]float64{{0, 0}, {0, 0}}
	d.vuPlot.LineColors = []ui.Color{ui.ColorYellow, ui.ColorGreen}
	d.vuPlot.AxesColor = ui.ColorWhite
	d.vuPlot.BorderStyle.Fg = ui.ColorCyan

	d.rpsPara = widgets.NewParagraph()
	d.rpsPara.Title = "Requests"
	d.rpsPara.Text = "Waiting for data..."
	d.rpsPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.checkList = widgets.NewList()
	d.checkList.Title = "Checks"
	d.checkList.Rows = []string{"Awaiting data"}
	d.checkList.BorderStyle.Fg = ui.ColorCyan

	d.stepList = widgets.NewList()
	d.stepList.Title = "Steps"
	d.stepList.Rows = []string{"Awaiting data"}
	d.stepList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.stepList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors / Status Codes"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	d.grid = ui.NewGrid()
	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(0.6, d.summaryPara),
			ui.NewCol(0.4, d.vuGauge),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.5, d.vuPlot),
			ui.NewCol(0.5, d.latencySparkle),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.4, d.rpsPara),
			ui.NewCol(0.6, d.checkList),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.6, d.stepList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(d.collector.Stats(d.collector.Elapsed()))
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

// update refreshes widget data from a stats snapshot.
func (d *Dashboard) update(stats metrics.Stats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.summaryPara.Text = formatSummary(d.info, stats)

	d.vuGauge.Percent = vuPercent(stats.VUs, stats.TargetVUs)
	d.vuGauge.Label = fmt.Sprintf("%d / %d (max %d)", stats.VUs, stats.TargetVUs, stats.VUsMax)

	d.targetHistory = pushHistory(d.targetHistory, float64(stats.TargetVUs))
	d.activeHistory = pushHistory(d.activeHistory, float64(stats.VUs))
	if len(d.activeHistory) >= 2 {
		d.vuPlot.Data = [][]float64{d.targetHistory, d.activeHistory}
	}

	if stats.Total > 0 {
		d.latencyHistory = pushHistory(d.latencyHistory, stats.MeanLatencyMs)
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf("Latency | mean %.2fms | p95 %.2fms | max %.2fms",
			stats.MeanLatencyMs, stats.P95LatencyMs, stats.MaxLatencyMs)
	}

	d.rpsPara.Text = fmt.Sprintf(
		"Total:       %d\nFailed:      %d (%.1f%%)\nRPS:         %.2f\nIterations:  %d (%.2f/s)",
		stats.Total, stats.Failures, stats.FailureRate*100, stats.RequestsPerSec,
		stats.Iterations, stats.IterationsPerSec,
	)

	d.checkList.Rows = formatCheckRows(stats.Checks)
	d.stepList.Rows = formatStepRows(stats.Steps)
	d.errorList.Rows = formatErrorRows(stats)
}

func pushHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[1:]
	}
	return h
}

func vuPercent(active, target int) int {
	if target <= 0 {
		if active > 0 {
			return 100
		}
		return 0
	}
	pct := active * 100 / target
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatSummary(info RunInfo, stats metrics.Stats) string {
	elapsed := stats.Duration.Round(time.Second)
	clock := elapsed.String()
	stage := ""
	if info.Plan != nil {
		clock = fmt.Sprintf("%s / %s", elapsed, info.Plan.Duration())
		if n := info.Plan.Stages(); n > 0 {
			if idx := info.Plan.StageAt(stats.Duration); idx >= 0 {
				stage = fmt.Sprintf(" | Stage %d/%d", idx+1, n)
			} else {
				stage = " | Schedule complete"
			}
		}
	}

	var params []string
	if info.Steps > 0 {
		params = append(params, fmt.Sprintf("Steps: %d", info.Steps))
	}
	if info.RPS > 0 {
		params = append(params, fmt.Sprintf("Rate: %d/s", info.RPS))
	} else {
		params = append(params, "Rate: unlimited")
	}
	if info.Timeout > 0 {
		params = append(params, fmt.Sprintf("Timeout: %s", info.Timeout))
	}
	if info.ConfigFile != "" {
		params = append(params, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return fmt.Sprintf("Target: %s\n%s\nElapsed: %s%s", info.BaseURL, strings.Join(params, " | "), clock, stage)
}

func formatCheckRows(checks []metrics.CheckStats) []string {
	if len(checks) == 0 {
		return []string{"[No checks](fg:white)"}
	}
	rows := make([]string, 0, len(checks))
	for _, chk := range checks {
		total := chk.Passes + chk.Fails
		switch {
		case total == 0:
			rows = append(rows, fmt.Sprintf("[- %s](fg:white)", chk.Name))
		case chk.Fails == 0:
			rows = append(rows, fmt.Sprintf("[✓ %s](fg:green) %d", chk.Name, chk.Passes))
		default:
			rows = append(rows, fmt.Sprintf("[✗ %s](fg:red) %.1f%% ✓ %d ✗ %d", chk.Name, chk.Rate*100, chk.Passes, chk.Fails))
		}
	}
	return rows
}

func formatStepRows(steps []metrics.EndpointStats) []string {
	if len(steps) == 0 {
		return []string{"Awaiting data"}
	}
	rows := make([]string, 0, len(steps))
	for _, st := range steps {
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) | %d reqs | Err %d | avg %.1fms | p95 %.1fms",
			st.Name, st.Total, st.Failures, st.MeanLatencyMs, st.P95LatencyMs))
	}
	return rows
}

func formatErrorRows(stats metrics.Stats) []string {
	var rows []string
	for _, b := range metrics.FlattenCounts(stats.Errors) {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", b.Key, b.Count))
	}
	for _, b := range metrics.FlattenCounts(stats.StatusCodes) {
		color := "green"
		if b.Key == metrics.KindNetwork || strings.HasPrefix(b.Key, "4") || strings.HasPrefix(b.Key, "5") {
			color = "red"
		}
		rows = append(rows, fmt.Sprintf("[%s](fg:%s) %d", strings.ToUpper(b.Key), color, b.Count))
	}
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > 12 {
		rows = rows[:12]
	}
	return rows
}
