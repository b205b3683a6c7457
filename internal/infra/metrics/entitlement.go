package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		codesMintedTotal,
		redemptionsTotal,
		redeemRetriesTotal,
		codeCollisionsTotal,
		entitlementChecksTotal,
	)
}

var (
	codesMintedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_codes_minted_total",
			Help: "Mint attempts by outcome reason (ok or a reason code).",
		},
		[]string{"outcome"},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redeem attempts by outcome reason (ok or a reason code).",
		},
		[]string{"outcome"},
	)

	redeemRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redemption_retries_total",
			Help: "Redeem transactions retried after a store write conflict.",
		},
	)

	codeCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redemption_code_collisions_total",
			Help: "Generated code candidates rejected because they already exist.",
		},
	)

	entitlementChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_checks_total",
			Help: "Entitlement reads by result.",
		},
		[]string{"entitled"},
	)
)

func IncMint(outcome string) { codesMintedTotal.WithLabelValues(norm(outcome)).Inc() }

func IncRedemption(outcome string) { redemptionsTotal.WithLabelValues(norm(outcome)).Inc() }

func IncRedeemRetry() { redeemRetriesTotal.Inc() }

func IncCodeCollision() { codeCollisionsTotal.Inc() }

func IncEntitlementCheck(entitled bool) {
	entitlementChecksTotal.WithLabelValues(strconv.FormatBool(entitled)).Inc()
}
