// Package prometheus renders shopauth engine metrics in the Prometheus text
// exposition format. Counters are named shopauth_*_total and latencies are
// shopauth_*_latency_seconds histograms. Nothing is registered globally:
// callers mount [PrometheusExporter.Handler] where they want it.
package prometheus
