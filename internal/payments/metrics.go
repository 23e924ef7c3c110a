package payments

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	invoicesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "invoices_created_total",
		Help:      "Total topup invoices created by method.",
	}, []string{"method"}) // "fiat", "eth", "sol", "btc", "xrp", "ltc"

	invoicesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "invoices_resolved_total",
		Help:      "Total invoices resolved by winning source.",
	}, []string{"source"}) // "check", "expiry", "watcher"

	invoicesExpired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "invoices_expired_total",
		Help:      "Total invoices expired by reason.",
	}, []string{"reason"}) // "deadline", "provider_failed", "bad_method"

	referralBonuses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "referral_bonuses_total",
		Help:      "Total referral bonuses paid.",
	})

	topupAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "topup_amount_eur",
		Help:      "Distribution of topup invoice amounts in EUR.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
	})

	pendingInvoices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "pending_invoices",
		Help:      "Number of currently pending invoices.",
	})

	auditUncredited = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "linemart",
		Subsystem: "payments",
		Name:      "audit_uncredited_invoices",
		Help:      "Resolved invoices with no matching ledger credit, per last audit.",
	})
)

func init() {
	prometheus.MustRegister(
		invoicesCreated,
		invoicesResolved,
		invoicesExpired,
		referralBonuses,
		topupAmount,
		pendingInvoices,
		auditUncredited,
	)
}
