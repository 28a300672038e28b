// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for plugin call metrics.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusNotLoaded     = "not_loaded"
	StatusMissingExport = "missing_export"
)

// Calls is the counter for guest entry point invocations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Calls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lumen_plugin_calls_total",
		Help: "Total number of plugin entry point calls",
	},
	[]string{"plugin", "entry", "status"},
)

// CallDuration is the histogram for guest call duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var CallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "lumen_plugin_call_duration_seconds",
		Help:    "Plugin entry point call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "entry"},
)

// HostOps is the counter for capability host operations invoked on behalf
// of plugins.
var HostOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lumen_plugin_host_ops_total",
		Help: "Total number of capability host operations by outcome",
	},
	[]string{"plugin", "op", "status"},
)

// RegisterMetrics registers plugin package metrics with the given Prometheus
// registry. This must be called at startup to make metrics available on
// /metrics. Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Calls)
	reg.MustRegister(CallDuration)
	reg.MustRegister(HostOps)
}

// RecordCall increments the plugin call counter.
func RecordCall(pluginID, entry, status string) {
	Calls.WithLabelValues(pluginID, entry, status).Inc()
}

// RecordCallDuration records the duration of a plugin call.
func RecordCallDuration(pluginID, entry string, d time.Duration) {
	CallDuration.WithLabelValues(pluginID, entry).Observe(d.Seconds())
}

// RecordHostOp increments the capability host operation counter.
func RecordHostOp(pluginID, op, status string) {
	HostOps.WithLabelValues(pluginID, op, status).Inc()
}
