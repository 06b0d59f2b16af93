package configstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_config_cache_lookups_total",
		Help: "Configuration cache lookups by result (hit, miss).",
	}, []string{"result"})

	backendReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_config_backend_reads_total",
		Help: "Configuration backend reads by outcome.",
	}, []string{"status"})

	writes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "armis_config_writes_total",
		Help: "Configuration writes by outcome (ok, conflict, error).",
	}, []string{"status"})
)
