package process

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "os161_proc_forks_total",
		Help: "Fork attempts by result",
	}, []string{"result"})

	exitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os161_proc_exits_total",
		Help: "Processes that have exited",
	})

	reapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os161_proc_reaps_total",
		Help: "Exit statuses collected",
	})

	liveProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "os161_proc_live",
		Help: "Processes registered and not yet reaped",
	})
)
