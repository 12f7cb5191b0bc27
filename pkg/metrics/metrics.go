// Package metrics holds the swap client's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Transactions  *prometheus.CounterVec
	Confirmation  *prometheus.HistogramVec
	Quotes        *prometheus.CounterVec
	RemoteFailure *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bltm_swap",
			Name:      "transactions_total",
			Help:      "Transactions reaching a terminal state, by kind and status.",
		}, []string{"kind", "status"}),
		Confirmation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bltm_swap",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to confirmed receipt.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"kind"}),
		Quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bltm_swap",
			Name:      "quotes_total",
			Help:      "Quotes computed, by direction.",
		}, []string{"direction"}),
		RemoteFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bltm_swap",
			Name:      "remote_failures_total",
			Help:      "Failed ledger calls, by primitive.",
		}, []string{"call"}),
	}

	m.Registry.MustRegister(m.Transactions, m.Confirmation, m.Quotes, m.RemoteFailure)
	return m
}

// TxTerminal records a transaction reaching a terminal status
func (m *Metrics) TxTerminal(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(kind, status).Inc()
	if status == "confirmed" {
		m.Confirmation.WithLabelValues(kind).Observe(seconds)
	}
}

// Quote records a computed quote
func (m *Metrics) Quote(direction string) {
	if m == nil {
		return
	}
	m.Quotes.WithLabelValues(direction).Inc()
}

// Failure records a failed ledger call
func (m *Metrics) Failure(call string) {
	if m == nil {
		return
	}
	m.RemoteFailure.WithLabelValues(call).Inc()
}

// WriteFile dumps the registry in textfile-collector format
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
