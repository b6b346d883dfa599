package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes Stats snapshots as Prometheus gauges. Each Exporter owns
// its registry so several can coexist in one process.
type Exporter struct {
	registry *prometheus.Registry

	vus         prometheus.Gauge
	vusTarget   prometheus.Gauge
	requests    *prometheus.GaugeVec
	errors      *prometheus.GaugeVec
	rps         prometheus.Gauge
	latency     *prometheus.GaugeVec
	failureRate prometheus.Gauge
	iterations  prometheus.Gauge
	checks      *prometheus.GaugeVec
	checkRate   prometheus.Gauge
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		vus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_vus",
			Help: "Active virtual users",
		}),
		vusTarget: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_vus_target",
			Help: "Scheduled target virtual users",
		}),
		requests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vuramp_requests",
			Help: "Requests completed so far by outcome",
		}, []string{"outcome"}),
		errors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vuramp_errors",
			Help: "Errors so far by kind",
		}, []string{"kind"}),
		rps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_requests_per_sec",
			Help: "Requests per second rate",
		}),
		latency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vuramp_latency_ms",
			Help: "Response time percentiles in milliseconds",
		}, []string{"quantile"}),
		failureRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_failure_rate",
			Help: "Failed requests ratio",
		}),
		iterations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_iterations",
			Help: "Completed scenario iterations",
		}),
		checks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vuramp_checks",
			Help: "Check evaluations by check name and result",
		}, []string{"check", "result"}),
		checkRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vuramp_check_rate",
			Help: "Passed checks ratio",
		}),
	}
}

func (e *Exporter) Update(s Stats) {
	e.vus.Set(float64(s.VUs))
	e.vusTarget.Set(float64(s.TargetVUs))
	e.requests.WithLabelValues("success").Set(float64(s.Successes))
	e.requests.WithLabelValues("failure").Set(float64(s.Failures))
	for kind, n := range s.Errors {
		e.errors.WithLabelValues(kind).Set(float64(n))
	}
	e.rps.Set(s.RequestsPerSec)
	e.latency.WithLabelValues("p50").Set(s.P50LatencyMs)
	e.latency.WithLabelValues("p90").Set(s.P90LatencyMs)
	e.latency.WithLabelValues("p95").Set(s.P95LatencyMs)
	e.latency.WithLabelValues("p99").Set(s.P99LatencyMs)
	e.latency.WithLabelValues("max").Set(s.MaxLatencyMs)
	e.failureRate.Set(s.FailureRate)
	e.iterations.Set(float64(s.Iterations))
	for _, chk := range s.Checks {
		e.checks.WithLabelValues(chk.Name, "pass").Set(float64(chk.Passes))
		e.checks.WithLabelValues(chk.Name, "fail").Set(float64(chk.Fails))
	}
	e.checkRate.Set(s.CheckRate)
}

// Handler serves the exporter's registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
