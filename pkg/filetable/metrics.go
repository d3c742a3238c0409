package filetable

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "os161_filetable_entries",
		Help: "Occupied slots in the system-wide open file table",
	})

	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os161_filetable_exhausted_total",
		Help: "Opens refused because the open file table was full",
	})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "os161_filetable_bytes_total",
		Help: "Bytes transferred through open file entries by operation",
	}, []string{"op"})
)
