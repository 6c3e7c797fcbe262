// Package metrics exposes recorder outcomes as Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/c360studio/proposals/recorder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proposals"

// Metrics counts recorded, overwritten and failed proposals.
type Metrics struct {
	registry    *prometheus.Registry
	recorded    *prometheus.CounterVec
	overwritten prometheus.Counter
	failures    *prometheus.CounterVec
}

// New creates Metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorded_total",
			Help:      "Proposals written, by term.",
		}, []string{"term"}),
		overwritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overwritten_total",
			Help:      "Proposals that replaced an existing input.json.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Failed record operations, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.recorded, m.overwritten, m.failures)

	// Reasons are known up front so they report zero before the first failure.
	for _, reason := range []string{recorder.ReasonSemester, recorder.ReasonLocation, recorder.ReasonValidation, recorder.ReasonFilesystem} {
		m.failures.WithLabelValues(reason)
	}
	return m
}

// Recorded implements recorder.Observer.
func (m *Metrics) Recorded(res *recorder.Result) {
	m.recorded.WithLabelValues(res.Location.Term()).Inc()
	if res.Overwrote {
		m.overwritten.Inc()
	}
}

// Failed implements recorder.Observer.
func (m *Metrics) Failed(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
