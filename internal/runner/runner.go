package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vuramp/vuramp/internal/config"
	"github.com/vuramp/vuramp/internal/dashboard"
	"github.com/vuramp/vuramp/internal/httpclient"
	"github.com/vuramp/vuramp/internal/metrics"
	"github.com/vuramp/vuramp/internal/output"
	"github.com/vuramp/vuramp/internal/pool"
	"github.com/vuramp/vuramp/internal/scenario"
	"github.com/vuramp/vuramp/internal/schedule"
	"github.com/vuramp/vuramp/internal/threshold"
	"github.com/vuramp/vuramp/internal/tracing"
)

const (
	monitorInterval  = 250 * time.Millisecond
	exportInterval   = time.Second
	shutdownDeadline = 5 * time.Second
)

// Result is the outcome of a completed run.
type Result struct {
	RunID      string
	Stats      metrics.Stats
	Thresholds []threshold.Result
	// Interrupted is set when ctx was cancelled before the schedule ended.
	Interrupted bool
	// Drained reports whether every VU exited within the graceful stop period.
	Drained bool
}

// ThresholdsFailed reports whether any configured threshold was crossed.
func (r Result) ThresholdsFailed() bool {
	return threshold.Failed(r.Thresholds)
}

func (r Result) summary() output.Summary {
	return output.Summary{
		RunID:       r.RunID,
		Stats:       r.Stats,
		Thresholds:  r.Thresholds,
		Interrupted: r.Interrupted,
	}
}

// Runner drives one load test: the scheduler resizes the VU pool along the
// stage plan while the collector aggregates every response.
type Runner struct {
	cfg        config.Config
	opt        Options
	plan       *schedule.Plan
	thresholds []threshold.Threshold
}

// New prepares a run. Malformed thresholds and an empty schedule are
// reported as config.ConfigError.
func New(cfg config.Config, opt Options) (*Runner, error) {
	opt.normalize()

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, config.NewConfigError(err.Error())
	}
	plan := schedule.FromConfig(cfg)
	if plan == nil {
		return nil, config.NewConfigError("the schedule spans no time")
	}
	return &Runner{cfg: cfg, opt: opt, plan: plan, thresholds: thresholds}, nil
}

func (r *Runner) Plan() *schedule.Plan {
	return r.plan
}

// Run executes the schedule and prints the summary. Cancelling ctx stops the
// run early; the summary still covers everything recorded until then.
// Request failures never make Run return an error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	cfg, log := r.cfg, r.opt.Logger
	res := Result{RunID: ulid.Make().String()}
	log = log.With("run_id", res.RunID)

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.WithRunID(res.RunID))
	if err != nil {
		return res, fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracing shutdown failed", "error", err)
		}
	}()

	client := r.opt.Client
	if client == nil {
		client = httpclient.NewClient(cfg.Timeout)
	}

	var tracer trace.Tracer
	if tp.Exporting() {
		tracer = tp.Tracer()
	}
	sc, err := scenario.New(cfg, scenario.Options{
		Client:       client,
		RPS:          cfg.RPS,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Tracer:       tracer,
		Propagate:    tp.ShouldPropagate(),
	})
	if err != nil {
		return res, config.NewConfigError(err.Error())
	}

	if cfg.Preflight {
		if err := preflight(ctx, client, preflightTarget(cfg)); err != nil {
			return res, err
		}
	}

	collector := metrics.NewCollector()
	collector.Register(sc.StepNames(), sc.CheckNames())

	var metricsListener net.Listener
	if cfg.MetricsAddr != "" {
		metricsListener, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return res, fmt.Errorf("metrics listener: %w", err)
		}
	}

	vus := pool.New(pool.Options{
		Scenario:  sc,
		Collector: collector,
		Logger:    log,
		LogErrors: cfg.LogErrors,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopLive := r.startLiveView(collector, len(sc.Steps()), cancelRun)

	log.Infow("run started",
		"base_url", cfg.BaseURL,
		"steps", len(sc.Steps()),
		"stages", r.plan.Stages(),
		"duration", r.plan.Duration(),
		"max_vus", r.plan.MaxTarget(),
	)
	collector.Start()

	var interrupted atomic.Bool
	g, gctx := errgroup.WithContext(runCtx)
	sched := schedule.New(r.plan, schedule.WithTick(r.opt.Tick))
	g.Go(func() error {
		defer cancelRun()
		err := sched.Run(gctx, func(target int) {
			vus.Resize(target)
			collector.SetVUs(vus.Running(), target)
		})
		if err != nil && gctx.Err() != nil {
			interrupted.Store(true)
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				collector.SetVUs(vus.Running(), vus.Target())
			}
		}
	})
	if metricsListener != nil {
		serveMetrics(gctx, g, metricsListener, collector, log)
	}

	groupErr := g.Wait()

	res.Drained = vus.Stop(cfg.GracefulStop)
	collector.SetVUs(0, 0)
	stopLive()

	res.Interrupted = interrupted.Load()
	res.Stats = collector.Stats(collector.Elapsed())
	res.Thresholds = threshold.NewEvaluator(r.thresholds).Evaluate(res.Stats)

	log.Infow("run finished",
		"requests", res.Stats.Total,
		"failures", res.Stats.Failures,
		"iterations", res.Stats.Iterations,
		"peak_vus", vus.Peak(),
		"interrupted", res.Interrupted,
		"drained", res.Drained,
	)

	if err := r.report(res); err != nil {
		return res, err
	}
	if groupErr != nil {
		return res, groupErr
	}
	return res, nil
}

// startLiveView starts the dashboard or the progress line and returns the
// function that stops it.
func (r *Runner) startLiveView(collector *metrics.Collector, steps int, cancel context.CancelFunc) func() {
	cfg := r.cfg
	if cfg.Dashboard {
		dash, err := dashboard.New(collector, dashboard.RunInfo{
			BaseURL:    cfg.BaseURL,
			Plan:       r.plan,
			RPS:        cfg.RPS,
			Timeout:    cfg.Timeout,
			Steps:      steps,
			ConfigFile: cfg.ConfigFile,
		}, cancel)
		if err == nil {
			dash.Start()
			return dash.Stop
		}
		r.opt.Logger.Warnw("dashboard unavailable, falling back to progress output", "error", err)
	}
	if cfg.Quiet {
		return func() {}
	}
	progress := output.NewProgressReporter(collector, r.opt.ProgressInterval, r.plan.Duration(), r.opt.Stderr)
	progress.Start()
	return progress.Stop
}

// serveMetrics exposes live gauges on ln until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, ln net.Listener, collector *metrics.Collector, log *zap.SugaredLogger) {
	exporter := metrics.NewExporter()
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Infow("serving prometheus metrics", "addr", ln.Addr().String())
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(exportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				exporter.Update(collector.Stats(collector.Elapsed()))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case <-ticker.C:
				exporter.Update(collector.Stats(collector.Elapsed()))
			}
		}
	})
}

func (r *Runner) report(res Result) error {
	summary := res.summary()
	if r.cfg.JSONOutput {
		if err := output.PrintJSONReport(r.opt.Stdout, summary); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	} else {
		output.PrintReport(r.opt.Stdout, summary)
	}
	if r.cfg.SummaryExport != "" {
		if err := output.ExportSummary(r.cfg.SummaryExport, summary); err != nil {
			return fmt.Errorf("export summary: %w", err)
		}
	}
	return nil
}

func preflightTarget(cfg config.Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	for _, st := range cfg.Scenario {
		if st.URL != "" {
			return st.URL
		}
	}
	return ""
}

// preflight issues a single GET to target. Any HTTP response, whatever its
// status, proves the host is reachable.
func preflight(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &PreflightError{URL: target, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &PreflightError{URL: target, Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return nil
}
