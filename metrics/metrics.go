/*
Package metrics wires the engine's runtime behaviour into Prometheus,
grounded on daemon/maintenance/perfmetrics.go and
daemon/httpd/middleware/middleware.go in the teacher module, both of which
register GaugeVec/HistogramVec/CounterVec metrics against a component-
specific prometheus.Registry rather than the global default registry.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Registry holds every metric this module exposes. Callers obtain one from
// a client's Metrics method and may serve it however they like (promhttp.HandlerFor, a
// push gateway, …) — this module makes no assumption about transport.
type Registry struct {
	Registry *prometheus.Registry

	liveSessions    prometheus.Gauge
	commandLatency  *prometheus.HistogramVec
	errorsByKind    *prometheus.CounterVec
	bringUpOutcomes *prometheus.CounterVec
}

// NewRegistry builds and registers a fresh set of metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		Registry: reg,
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smtpclient",
			Name:      "live_sessions",
			Help:      "Number of sessions currently past bring-up and able to accept commands.",
		}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smtpclient",
			Name:      "command_duration_seconds",
			Help:      "Time from Session.Execute to the terminal response, by command kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smtpclient",
			Name:      "errors_total",
			Help:      "Errors raised by the engine, by failure kind.",
		}, []string{"kind"}),
		bringUpOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smtpclient",
			Name:      "bring_up_outcomes_total",
			Help:      "Session bring-up outcomes: ok for each established session, or the failure kind of a failed connect or unknown mode; other bring-up failures are not counted.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.liveSessions, m.commandLatency, m.errorsByKind, m.bringUpOutcomes)
	return m
}

// SessionEstablished increments the live session gauge.
func (m *Registry) SessionEstablished() { m.liveSessions.Inc() }

// SessionClosed decrements the live session gauge.
func (m *Registry) SessionClosed() { m.liveSessions.Dec() }

// ObserveCommand records how long a command took to complete.
func (m *Registry) ObserveCommand(commandKind string, elapsed time.Duration) {
	m.commandLatency.WithLabelValues(commandKind).Observe(elapsed.Seconds())
}

// ObserveError increments the counter for a failure kind.
func (m *Registry) ObserveError(kind smtperr.Kind) {
	m.errorsByKind.WithLabelValues(kind.String()).Inc()
}

// ObserveBringUpOutcome records a bring-up attempt's terminal outcome;
// pass "ok" on success or a failure kind's string on failure.
func (m *Registry) ObserveBringUpOutcome(outcome string) {
	m.bringUpOutcomes.WithLabelValues(outcome).Inc()
}
