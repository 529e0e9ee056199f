// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes map widget counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	markerOps         *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	liveMarkers       prometheus.Gauge
	popupTransitions  *prometheus.CounterVec
	providerLoads     *prometheus.CounterVec
	cameraMoves       *prometheus.CounterVec
}

// New creates a fresh registry with the map widget metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	markerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Name:      "marker_operations_total",
		Help:      "Native marker operations issued by the reconciler",
	}, []string{"op"})

	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "propmap",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of marker reconciliation passes",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	})

	liveMarkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "propmap",
		Name:      "live_markers",
		Help:      "Markers currently held by the reconciler",
	})

	popupTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Name:      "popup_transitions_total",
		Help:      "Popup lifecycle transitions",
	}, []string{"phase"})

	providerLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Name:      "provider_loads_total",
		Help:      "Map SDK load attempts by outcome",
	}, []string{"provider", "outcome"})

	cameraMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "propmap",
		Name:      "camera_moves_total",
		Help:      "Camera fit and pan commands",
	}, []string{"kind"})

	registry.MustRegister(
		markerOps,
		reconcileDuration,
		liveMarkers,
		popupTransitions,
		providerLoads,
		cameraMoves,
	)

	return &Metrics{
		registry:          registry,
		markerOps:         markerOps,
		reconcileDuration: reconcileDuration,
		liveMarkers:       liveMarkers,
		popupTransitions:  popupTransitions,
		providerLoads:     providerLoads,
		cameraMoves:       cameraMoves,
	}
}

// MarkerOp counts one native marker operation (create, move, remove, fail).
func (m *Metrics) MarkerOp(op string) {
	if m == nil {
		return
	}

	m.markerOps.WithLabelValues(op).Inc()
}

// ObserveReconcile records a reconciliation pass.
func (m *Metrics) ObserveReconcile(duration time.Duration, live int) {
	if m == nil {
		return
	}

	m.reconcileDuration.Observe(duration.Seconds())
	m.liveMarkers.Set(float64(live))
}

// PopupTransition counts a popup entering phase.
func (m *Metrics) PopupTransition(phase string) {
	if m == nil {
		return
	}

	m.popupTransitions.WithLabelValues(phase).Inc()
}

// ProviderLoad counts an SDK load attempt.
func (m *Metrics) ProviderLoad(provider, outcome string) {
	if m == nil {
		return
	}

	m.providerLoads.WithLabelValues(provider, outcome).Inc()
}

// CameraMove counts a camera command (fit or pan).
func (m *Metrics) CameraMove(kind string) {
	if m == nil {
		return
	}

	m.cameraMoves.WithLabelValues(kind).Inc()
}

// Handler returns an HTTP handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}
