package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "api",
	Subsystem: "websockets",
	Name:      "conns_total",
})

var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "api",
	Subsystem: "sessions",
	Name:      "active_total",
})

var CompletionQueryTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "processor",
	Subsystem: "completion",
	Name:      "request_seconds",
}, []string{"backend"})
var CompletionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "processor",
	Subsystem: "completion",
	Name:      "errors_total",
}, []string{"backend", "kind"})

var ASRQueryTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "processor",
	Subsystem: "asr",
	Name:      "request_seconds",
}, []string{"provider"})
var ASRErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "processor",
	Subsystem: "asr",
	Name:      "errors_total",
}, []string{"provider"})

// Turns counts finished submissions by outcome: reply, error or noop.
var Turns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "processor",
	Subsystem: "conversation",
	Name:      "turns_total",
}, []string{"outcome"})

var Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "processor",
	Subsystem: "extract",
	Name:      "files_total",
}, []string{"content_type", "applicable"})
