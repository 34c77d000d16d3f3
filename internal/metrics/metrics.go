// Package metrics collects the provider's usage counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the provider's usage counter set on its own registry.
// A nil *Metrics is valid and counts nothing.
type Metrics struct {
	registry *prometheus.Registry

	delegationsPrepared prometheus.Counter
	delegationsIssued   prometheus.Counter
	pollAttempts        prometheus.Counter
	delegationFailures  *prometheus.CounterVec
	anchorOperations    *prometheus.CounterVec
}

// New creates the counter set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		delegationsPrepared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vouch",
			Name:      "delegations_prepared_total",
			Help:      "Prepare calls the signing authority accepted",
		}),
		delegationsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vouch",
			Name:      "delegations_issued_total",
			Help:      "Signed delegations handed to relying applications",
		}),
		pollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vouch",
			Name:      "delegation_poll_attempts_total",
			Help:      "Poll calls made while waiting for certification",
		}),
		delegationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vouch",
			Name:      "delegation_failures_total",
			Help:      "Failed delegation exchanges by cause",
		}, []string{"cause"}),
		anchorOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vouch",
			Name:      "anchor_operations_total",
			Help:      "Anchor ledger operations by kind",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.delegationsPrepared,
		m.delegationsIssued,
		m.pollAttempts,
		m.delegationFailures,
		m.anchorOperations,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DelegationPrepared counts an accepted prepare call.
func (m *Metrics) DelegationPrepared() {
	if m == nil {
		return
	}
	m.delegationsPrepared.Inc()
}

// DelegationIssued counts a completed delegation exchange.
func (m *Metrics) DelegationIssued() {
	if m == nil {
		return
	}
	m.delegationsIssued.Inc()
}

// PollAttempt counts one poll call against the signing authority.
func (m *Metrics) PollAttempt() {
	if m == nil {
		return
	}
	m.pollAttempts.Inc()
}

// DelegationFailed counts a failed exchange under its cause.
func (m *Metrics) DelegationFailed(cause string) {
	if m == nil {
		return
	}
	m.delegationFailures.WithLabelValues(cause).Inc()
}

// AnchorOperation counts a ledger operation under its kind.
func (m *Metrics) AnchorOperation(operation string) {
	if m == nil {
		return
	}
	m.anchorOperations.WithLabelValues(operation).Inc()
}
