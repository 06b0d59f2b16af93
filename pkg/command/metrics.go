package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_command_total",
		Help: "Commands dispatched by type and status.",
	}, []string{"type", "status"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "armis_command_duration_seconds",
		Help:    "Command dispatch latency by type.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"type"})

	listenerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_command_listener_failures_total",
		Help: "Registry listener errors and panics by event.",
	}, []string{"event"})
)
