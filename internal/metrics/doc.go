// Package metrics aggregates request outcomes, check results and VU counts for a
// load run.
//
// # Collector
//
// A single [Collector] is shared by every VU:
//
//	collector := metrics.NewCollector()
//	collector.Register(stepNames, checkNames)
//
//	collector.RecordRequest(latency, err, &metrics.RequestMetadata{
//		Step:       "GET /",
//		Method:     "GET",
//		StatusCode: 200,
//	})
//	collector.RecordCheck("status is 200", true, nil)
//	collector.RecordIteration()
//
//	stats := collector.Stats(elapsed)
//
// A request with a non-nil error counts as failed. Errors that implement
// Kind() string are grouped by that kind ("network", "http",
// "check_evaluation"); other errors fall back to "timeout", "canceled",
// "network" or "other" through [ErrorKind].
//
// # Thread Safety
//
// All Collector methods serialize on one mutex. Counts and latency samples are
// commutative, so no ordering between VUs is preserved or required.
//
// # Prometheus
//
// [Exporter] mirrors Stats snapshots into Prometheus gauges served over HTTP.
package metrics
