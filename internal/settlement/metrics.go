package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reconcile_outcomes_total",
		Help: "Reconcile passes by resulting transaction status",
	}, []string{"outcome"})

	reconcileRacesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_reconcile_races_lost_total",
		Help: "Reconcile passes that lost the terminal compare-and-swap to a concurrent caller",
	})

	walletCredits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_wallet_credits_total",
		Help: "Wallet credits applied by the coordinator",
	})

	walletInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_wallet_inconsistencies_total",
		Help: "Credits halted because the wallet history already held the reference; indicates a broken invariant",
	})

	flaggedForReview = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_flagged_for_review_total",
		Help: "Transactions flagged for manual reconciliation after the verification attempt cap",
	})

	gatewayVerifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_gateway_verify_duration_seconds",
		Help:    "Latency distribution of gateway verification calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
