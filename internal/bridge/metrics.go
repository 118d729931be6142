package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ltxd",
			Subsystem: "bridge",
			Name:      "generations_total",
			Help:      "Completed generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	workerCrashesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ltxd",
			Subsystem: "bridge",
			Name:      "worker_crashes_total",
			Help:      "Worker exits that occurred with an operation outstanding",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, workerCrashesTotal)
}
