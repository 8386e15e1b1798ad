package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_intents_total",
			Help: "Transaction intents by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	intentConfirmationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_intent_confirmation_seconds",
			Help:    "Time from submission to receipt",
			Buckets: []float64{1, 3, 5, 10, 15, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	intentsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_intents_in_flight",
			Help: "Intents submitted and awaiting a receipt",
		},
	)

	readCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_read_cache_total",
			Help: "Chain read cache lookups by part and result",
		},
		[]string{"part", "result"},
	)

	reconcilerResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_intents_resolved_total",
			Help: "Stale intents resolved by the reconciler",
		},
		[]string{"status"},
	)

	reconcilerErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_errors_total",
			Help: "Total number of reconciliation errors",
		},
	)

	reconcilerLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciler_last_run_timestamp_seconds",
			Help: "Unix time of the last completed reconciliation pass",
		},
	)
)
