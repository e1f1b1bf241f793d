package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess labels a submission attempt that produced a transaction hash.
const OutcomeSuccess = "success"

// LedgerMetrics covers ledger submissions, wallet provisioning and catalog
// reconciliation. A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	attempts     *prometheus.CounterVec
	retryDelay   *prometheus.HistogramVec
	provisioning *prometheus.CounterVec
	reconcile    *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_submission_attempts_total",
		Help: "Ledger submission attempts by operation and outcome class.",
	}, []string{"operation", "outcome"})
	retryDelay := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_submission_retry_delay_seconds",
		Help:    "Backoff delays applied between ledger submission attempts.",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"operation"})
	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_provisioning_total",
		Help: "Wallet provisioning results by resulting wallet status.",
	}, []string{"status"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reconcile_total",
		Help: "Catalog reconciliations by id derivation path and outcome.",
	}, []string{"derivation", "outcome"})
	reg.MustRegister(attempts, retryDelay, provisioning, reconcile)
	return &LedgerMetrics{
		attempts:     attempts,
		retryDelay:   retryDelay,
		provisioning: provisioning,
		reconcile:    reconcile,
	}
}

// IncAttempt counts one submission; outcome is OutcomeSuccess or an error class.
func (m *LedgerMetrics) IncAttempt(operation, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) ObserveRetryDelay(operation string, delay time.Duration) {
	if m == nil || m.retryDelay == nil {
		return
	}
	m.retryDelay.WithLabelValues(normalizeLabel(operation)).Observe(delay.Seconds())
}

func (m *LedgerMetrics) IncProvisioning(status string) {
	if m == nil || m.provisioning == nil {
		return
	}
	m.provisioning.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *LedgerMetrics) IncReconcile(derivation, outcome string) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(derivation), normalizeLabel(outcome)).Inc()
}
