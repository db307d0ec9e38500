// Package metrics tracks gateway counters and exposes them in Prometheus
// text exposition format at GET /metrics.
//
// Recorder methods are safe on a nil receiver, so packages under test can
// run without a live recorder. Counters are monotonically increasing except
// ws_connections_active, which is a gauge following connect/disconnect.
package metrics
