package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "vip_entitlement_build_info",
		Help: "Constant 1, labelled with the running version and storage driver.",
	},
	[]string{"version", "driver"},
)

func SetBuildInfo(version, driver string) {
	buildInfo.WithLabelValues(version, norm(driver)).Set(1)
}
