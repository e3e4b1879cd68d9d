// Package prometheus exposes authcore engine metrics through
// github.com/prometheus/client_golang.
//
// [NewCollector] returns a prometheus.Collector that callers register on
// their own registry. [Handler] is a shortcut that serves a private
// registry. Counters are named authcore_*_total; the Authenticate latency
// histogram is authcore_authenticate_latency_seconds.
package prometheus
