// Package metrics exposes the Prometheus instruments the pipeline updates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conduit"

// Registry holds all conduit metrics; serve it with promhttp.
var Registry = prometheus.NewRegistry()

// RequestsTotal counts pipeline executions by method, route template, and
// final status code.
var RequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of requests executed by the endpoint pipeline",
	},
	[]string{"method", "route", "status"},
)

// RequestDuration records pipeline latency in seconds.
var RequestDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Endpoint pipeline latency in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	},
	[]string{"method", "route"},
)

// PipelineFailures counts requests that terminated in a pipeline phase,
// labeled by the phase that raised.
var PipelineFailures = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_failures_total",
		Help:      "Requests terminated by a pipeline phase error",
	},
	[]string{"route", "phase"},
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
