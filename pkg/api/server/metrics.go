package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_api_requests_total",
		Help: "Dashboard API requests by action and HTTP status.",
	}, []string{"action", "code"})

	itemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_dashboard_item_failures_total",
		Help: "List items whose dispatch failed, by command type and applied policy.",
	}, []string{"type", "policy"})

	eventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "armis_event_streams",
		Help: "Open websocket event streams.",
	})
)
