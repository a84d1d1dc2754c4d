package cardpayment

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardledger",
			Subsystem: "payments",
			Name:      "operations_total",
			Help:      "Payment operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	cashbackRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardledger",
			Subsystem: "cashback",
			Name:      "requests_total",
			Help:      "Cashback distributor requests by kind and result.",
		},
		[]string{"kind", "result"},
	)

	unrecoveredCashbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardledger",
			Subsystem: "cashback",
			Name:      "unrecovered_total",
			Help:      "Cashback amount (minor units) the distributor failed to return.",
		},
	)

	escrowedBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cardledger",
			Subsystem: "payments",
			Name:      "escrowed_balance",
			Help:      "Ledger-wide escrowed net amount (minor units) by bucket.",
		},
		[]string{"bucket"},
	)
)

func init() {
	prometheus.MustRegister(
		operationsTotal,
		cashbackRequestsTotal,
		unrecoveredCashbackTotal,
		escrowedBalance,
	)
}

func observeOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
