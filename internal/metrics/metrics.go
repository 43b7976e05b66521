package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Modes mirrors the orchestrator's published modes; kept here to avoid an import cycle.
var Modes = []string{"IDLE", "STARTING", "RUNNING", "STOPPING", "ERROR"}

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	intents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Name:      "intents_total",
			Help:      "Inbound intents by classified type (dropped payloads count as \"dropped\").",
		}, []string{"type"},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "launches_total",
			Help:      "Launch attempts by game and result (ok, spawn_error, unhealthy, unknown).",
		}, []string{"game", "result"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "exits_total",
			Help:      "Process exits by game, split into expected stops and crashes.",
		}, []string{"game", "kind"},
	)
	healthDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchr",
			Subsystem: "healthcheck",
			Name:      "duration_seconds",
			Help:      "Time spent waiting for a game to become healthy.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"game", "result"},
	)
	stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchr",
			Subsystem: "game",
			Name:      "stop_duration_seconds",
			Help:      "Time taken by graceful-then-forced termination.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"game"},
	)
	currentMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchr",
			Name:      "mode",
			Help:      "Current orchestrator mode (1 = active, 0 = inactive).",
		}, []string{"mode"},
	)
	modeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Name:      "mode_transitions_total",
			Help:      "Published state changes between modes.",
		}, []string{"from", "to"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{intents, launches, exits, healthDuration, stopDuration, currentMode, modeTransitions}
	cs = append(cs, resourceCollectors()...)
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

func IncIntent(kind string) {
	if regOK.Load() {
		intents.WithLabelValues(kind).Inc()
	}
}

func IncLaunch(game, result string) {
	if regOK.Load() {
		launches.WithLabelValues(game, result).Inc()
	}
}

func IncExit(game string, expected bool) {
	if !regOK.Load() {
		return
	}
	kind := "crash"
	if expected {
		kind = "expected"
	}
	exits.WithLabelValues(game, kind).Inc()
}

func ObserveHealthCheck(game, result string, seconds float64) {
	if regOK.Load() {
		healthDuration.WithLabelValues(game, result).Observe(seconds)
	}
}

func ObserveStop(game string, seconds float64) {
	if regOK.Load() {
		stopDuration.WithLabelValues(game).Observe(seconds)
	}
}

// SetMode marks mode active and every other mode inactive, counting the transition.
func SetMode(from, to string) {
	if !regOK.Load() {
		return
	}
	for _, m := range Modes {
		v := 0.0
		if m == to {
			v = 1
		}
		currentMode.WithLabelValues(m).Set(v)
	}
	if from != "" {
		modeTransitions.WithLabelValues(from, to).Inc()
	}
}
