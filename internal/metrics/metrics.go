package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationRunDuration tracks the wall-clock latency of full verification runs.
	VerificationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verification_run_duration_seconds",
			Help:    "Duration of full rental verification runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// RentalsChecked counts per-rental verification outcomes.
	RentalsChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_rentals_total",
			Help: "Per-rental verification outcomes",
		},
		[]string{"outcome"}, // paid, failed, skipped, error
	)

	// PayoutIntents counts payout and refund intents recorded.
	PayoutIntents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_intents_total",
			Help: "Payout and refund intents recorded",
		},
		[]string{"kind"}, // daily_payout, refund
	)
)

// Outcome labels for RentalsChecked.
const (
	OutcomePaid    = "paid"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)
