package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_credits_total",
		Help: "Total number of ledger credit operations",
	})

	LedgerDebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_debits_total",
		Help: "Total number of ledger debit operations",
	})

	LedgerDebitsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_debits_rejected_total",
		Help: "Total number of rejected debits",
	}, []string{"reason"})

	TransfersSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_settled_total",
		Help: "Total number of completed gold transfers",
	})

	TransfersPendingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_pending_total",
		Help: "Total number of transfers parked for reconciliation",
	})

	TransfersReconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_reconciled_total",
		Help: "Total number of pending credits resolved by the reconcile worker",
	})

	ListingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_listings_created_total",
		Help: "Total number of auction listings created",
	})

	BidsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_bids_accepted_total",
		Help: "Total number of accepted bids",
	})

	BidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_settlements_total",
		Help: "Total number of buy-now settlements",
	})

	SettlementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_settlements_failed_total",
		Help: "Total number of failed buy-now attempts",
	}, []string{"reason"})

	ListingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_listings_cancelled_total",
		Help: "Total number of cancelled listings",
	})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_settlement_latency_seconds",
		Help:    "Latency of buy-now settlement",
		Buckets: prometheus.DefBuckets,
	})

	EnhanceAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhance_attempts_total",
		Help: "Total number of enhancement attempts by outcome",
	}, []string{"outcome"})

	EquipmentGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equipment_generated_total",
		Help: "Total number of equipment instances generated",
	}, []string{"rarity"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
