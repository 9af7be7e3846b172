package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	plansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_plans_total",
			Help: "Total number of query plans by outcome.",
		},
		[]string{"status"},
	)
	statementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_statements_total",
			Help: "Total number of executed statements by declared operation.",
		},
		[]string{"operation"},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_validation_rejections_total",
			Help: "Total number of statements rejected by the plan validator, by rule.",
		},
		[]string{"rule"},
	)
	rollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_rollbacks_total",
			Help: "Total number of bulk plans rolled back.",
		},
	)
	translationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlgate_translation_latency_seconds",
			Help:    "Latency of natural-language to SQL translation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	auditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlgate_audit_write_failures_total",
			Help: "Total number of failed audit record uploads.",
		},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlgate_auth_failures_total",
			Help: "Total number of rejected API requests by failure reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		plansTotal,
		statementsTotal,
		validationRejectionsTotal,
		rollbacksTotal,
		translationLatencySeconds,
		auditWriteFailuresTotal,
		authFailuresTotal,
	)
}

const (
	PlanExecuted = "executed"
	PlanRejected = "rejected"
	PlanFailed   = "failed"
)

func ObservePlan(status string, operations []string) {
	plansTotal.WithLabelValues(status).Inc()
	for _, operation := range operations {
		statementsTotal.WithLabelValues(operation).Inc()
	}
}

func ObserveValidationRejection(rule string) {
	validationRejectionsTotal.WithLabelValues(rule).Inc()
}

func IncrementRollbacks() {
	rollbacksTotal.Inc()
}

func ObserveTranslationLatency(elapsed time.Duration) {
	translationLatencySeconds.Observe(elapsed.Seconds())
}

func IncrementAuditWriteFailures() {
	auditWriteFailuresTotal.Inc()
}

func IncrementAuthFailures(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
