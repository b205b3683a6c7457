package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(codesSweptTotal, sweepRunsTotal) }

var (
	codesSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redemption_codes_swept_total",
			Help: "Total number of expired redemption codes removed by the sweeper.",
		},
	)

	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_sweep_runs_total",
			Help: "Sweeper runs by status.",
		},
		[]string{"status"}, // 'ok', 'error', 'skipped'
	)
)

func IncCodesSwept(count int) {
	codesSweptTotal.Add(float64(count))
}

func IncSweepRun(status string) {
	sweepRunsTotal.WithLabelValues(norm(status)).Inc()
}
