package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConns) }

var dbPoolConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Connections held by the store pool, by state.",
	},
	[]string{"driver", "state"}, // state: 'total', 'idle', 'in_use'
)

func SetDBPoolStats(driver string, total, idle, inUse int32) {
	d := norm(driver)
	dbPoolConns.WithLabelValues(d, "total").Set(float64(total))
	dbPoolConns.WithLabelValues(d, "idle").Set(float64(idle))
	dbPoolConns.WithLabelValues(d, "in_use").Set(float64(inUse))
}
