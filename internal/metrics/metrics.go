package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Number of tabs registered for lazy restore.",
		},
	)
	removals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "registry",
			Name:      "removals_total",
			Help:      "Number of restore entries removed, by reason.",
		}, []string{"reason"},
	)
	entries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lazyrestore",
			Subsystem: "registry",
			Name:      "entries",
			Help:      "Current number of restore entries.",
		},
	)
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "registry",
			Name:      "store_errors_total",
			Help:      "Durable store failures absorbed by the registry.",
		}, []string{"op"},
	)
	discardsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "scheduler",
			Name:      "discards_scheduled_total",
			Help:      "Number of discard timers armed.",
		},
	)
	discardOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "scheduler",
			Name:      "discard_outcomes_total",
			Help:      "Discard results by outcome (discarded, failed, stale).",
		}, []string{"outcome"},
	)
	discardLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lazyrestore",
			Subsystem: "scheduler",
			Name:      "discard_latency_seconds",
			Help:      "Time from registration to a completed discard.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Host notifications processed, by type.",
		}, []string{"type"},
	)
	navigations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lazyrestore",
			Subsystem: "router",
			Name:      "navigations_total",
			Help:      "Navigate-to-target commands issued on activation.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{registrations, removals, entries, storeErrors, discardsScheduled, discardOutcomes, discardLatency, events, navigations}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRegistration() {
	if regOK.Load() {
		registrations.Inc()
	}
}

func IncRemoval(reason string) {
	if regOK.Load() {
		removals.WithLabelValues(reason).Inc()
	}
}

func SetEntries(n int) {
	if regOK.Load() {
		entries.Set(float64(n))
	}
}

func IncStoreError(op string) {
	if regOK.Load() {
		storeErrors.WithLabelValues(op).Inc()
	}
}

func IncDiscardScheduled() {
	if regOK.Load() {
		discardsScheduled.Inc()
	}
}

func IncDiscardOutcome(outcome string) {
	if regOK.Load() {
		discardOutcomes.WithLabelValues(outcome).Inc()
	}
}

func ObserveDiscardLatency(seconds float64) {
	if regOK.Load() {
		discardLatency.Observe(seconds)
	}
}

func IncEvent(kind string) {
	if regOK.Load() {
		events.WithLabelValues(kind).Inc()
	}
}

func IncNavigation() {
	if regOK.Load() {
		navigations.Inc()
	}
}
