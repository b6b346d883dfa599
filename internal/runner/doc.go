// Package runner orchestrates a complete vuramp load test.
//
// A run wires together:
//   - a [schedule.Scheduler] that samples the stage plan every tick
//   - a [pool.Pool] of virtual users resized to each new target
//   - a [metrics.Collector] fed by every response and check result
//   - the live view (progress line or terminal dashboard)
//   - an optional Prometheus endpoint and OpenTelemetry tracing
//
// # Basic Usage
//
//	cfg, err := config.NewLoader().Load(os.Args[1:])
//	r, err := runner.New(*cfg, runner.Options{Stdout: os.Stdout, Stderr: os.Stderr, Logger: log})
//	res, err := r.Run(ctx)
//	if res.ThresholdsFailed() {
//		os.Exit(99)
//	}
//
// # Stopping
//
// When the plan ends, or ctx is cancelled, the pool is stopped with the
// configured graceful_stop period. VUs finish the request in flight, skip
// any remaining steps and pauses, and exit. Requests still running when the
// period expires are cancelled.
//
// # Errors
//
// Request failures are data, not errors: they are counted in
// [Result.Stats] and never abort the run. [New] returns a
// config.ConfigError for malformed thresholds, and [Runner.Run] returns a
// [PreflightError] when preflight is enabled and the target is unreachable.
package runner
