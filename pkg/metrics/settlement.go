package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts payout submissions and provider outcomes. A nil
// receiver is a no-op.
type SettlementMetrics struct {
	submitted  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	reconciled *prometheus.CounterVec
	amount     prometheus.Counter
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_submitted_total",
		Help: "Payout transfers accepted by the provider.",
	}, []string{"path"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_submission_failed_total",
		Help: "Payout transfers the provider did not accept.",
	}, []string{"path", "retryable"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_reconciled_total",
		Help: "Provider status updates applied to payouts.",
	}, []string{"source", "status"})
	amount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payouts_submitted_amount",
		Help: "Sum of seller amounts accepted by the provider.",
	})
	reg.MustRegister(submitted, failed, reconciled, amount)
	return &SettlementMetrics{
		submitted:  submitted,
		failed:     failed,
		reconciled: reconciled,
		amount:     amount,
	}
}

// ObserveSubmitted records count accepted transfers worth total.
func (m *SettlementMetrics) ObserveSubmitted(path string, count int, total float64) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.WithLabelValues(normalizeLabel(path)).Add(float64(count))
	m.amount.Add(total)
}

func (m *SettlementMetrics) ObserveFailed(path string, count int, retryable bool) {
	if m == nil || m.failed == nil {
		return
	}
	label := "false"
	if retryable {
		label = "true"
	}
	m.failed.WithLabelValues(normalizeLabel(path), label).Add(float64(count))
}

func (m *SettlementMetrics) ObserveReconciled(source, status string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(source), normalizeLabel(status)).Inc()
}
