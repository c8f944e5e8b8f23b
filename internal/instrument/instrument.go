// Package instrument holds the Prometheus collectors exported by the service.
package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Row outcomes for RowsNormalized.
const (
	OutcomeKept      = "kept"
	OutcomeDefaulted = "defaulted"
	OutcomeDropped   = "dropped"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPartial   = "partial"
)

var (
	RowsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redflag_rows_normalized_total",
		Help: "Source rows processed by normalization, labelled by outcome.",
	}, []string{"outcome"})

	TransactionsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redflag_ledger_merges_total",
		Help: "Transactions merged into case ledgers, labelled by inserted or updated.",
	}, []string{"kind"})

	AnalysesRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redflag_analyses_total",
		Help: "Analysis runs, labelled by overall status.",
	}, []string{"status"})

	DetectorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redflag_detector_runs_total",
		Help: "Rule evaluations, labelled by rule id and status.",
	}, []string{"rule_id", "status"})

	DetectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redflag_detector_duration_seconds",
		Help:    "Time spent evaluating a single rule.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"rule_id"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redflag_alerts_emitted_total",
		Help: "Alerts produced by analysis runs, labelled by rule id.",
	}, []string{"rule_id"})
)
