// Package observability provides Prometheus metrics for the simulator and the
// completion sweep.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Simulation metrics
	SimulationTransitions *prometheus.CounterVec
	SimulationErrors      prometheus.Counter
	SimulationsActive     prometheus.Gauge
	SimulationsStarted    prometheus.Counter
	OutcomesGenerated     *prometheus.CounterVec

	// Completion metrics
	EventsCompleted      *prometheus.CounterVec
	FightsForceCompleted prometheus.Counter
	SweepErrors          prometheus.Counter
	SweepDuration        prometheus.Histogram
	LastSuccessfulSweep  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics with reg. A nil reg uses a fresh registry,
// so tests can create independent instances.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "livecard"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SimulationTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "transitions_total",
			Help:      "Total number of simulation state transitions by resulting state",
		}, []string{"state"}),
		SimulationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "transition_errors_total",
			Help:      "Total number of simulation transitions that failed",
		}),
		SimulationsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "active_sessions",
			Help:      "Number of simulation sessions currently held",
		}),
		SimulationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "sessions_started_total",
			Help:      "Total number of simulation sessions started",
		}),
		OutcomesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "fight_outcomes_total",
			Help:      "Total number of simulated fight results by method",
		}, []string{"method"}),

		EventsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "events_completed_total",
			Help:      "Total number of events marked complete by completion method",
		}, []string{"method"}),
		FightsForceCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "fights_force_completed_total",
			Help:      "Total number of fights closed without a result by timeouts or manual completion",
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "sweep_errors_total",
			Help:      "Total number of errors encountered during completion sweeps",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "sweep_duration_seconds",
			Help:      "Completion sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccessfulSweep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "completion",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of the last sweep that finished without a load error",
		}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTransition records a successful transition into state.
func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.SimulationTransitions.WithLabelValues(state).Inc()
}

// ObserveTransitionError records a failed transition.
func (m *Metrics) ObserveTransitionError() {
	if m == nil {
		return
	}
	m.SimulationErrors.Inc()
}

// SessionStarted records a new simulation session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SimulationsStarted.Inc()
	m.SimulationsActive.Inc()
}

// SessionEnded records a session being destroyed.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SimulationsActive.Dec()
}

// ObserveOutcome records a simulated fight result.
func (m *Metrics) ObserveOutcome(method string) {
	if m == nil {
		return
	}
	m.OutcomesGenerated.WithLabelValues(method).Inc()
}

// ObserveCompletion records an event completion and the fights it closed.
func (m *Metrics) ObserveCompletion(method string, fightsClosed int) {
	if m == nil {
		return
	}
	m.EventsCompleted.WithLabelValues(method).Inc()
	m.FightsForceCompleted.Add(float64(fightsClosed))
}

// ObserveSweep records a finished sweep.
func (m *Metrics) ObserveSweep(started time.Time, errs int, loadFailed bool) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(started).Seconds())
	m.SweepErrors.Add(float64(errs))
	if !loadFailed {
		m.LastSuccessfulSweep.SetToCurrentTime()
	}
}
